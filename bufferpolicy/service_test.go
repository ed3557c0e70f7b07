package bufferpolicy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panthuncia/openrendergraph/internal/ctxt"
	"github.com/panthuncia/openrendergraph/rhi/rhitest"
	"github.com/panthuncia/openrendergraph/upload"
)

func TestServiceRegisterUnregisterClient(t *testing.T) {
	svc := NewService()
	p := NewPolicy(nil)
	client := &Client{Policy: p}
	svc.RegisterClient(client)
	require.Equal(t, 1, svc.GetStats().RegisteredClients)

	svc.UnregisterClient(client)
	require.Equal(t, 0, svc.GetStats().RegisteredClients)
}

func TestServiceBeginFrameAndFlushAllDriveClients(t *testing.T) {
	dev := rhitest.NewDevice()
	rootCtx := ctxt.New(dev, nil)
	uploadSvc, err := upload.NewService(context.Background(), rootCtx, 2, nil)
	require.NoError(t, err)

	p := NewPolicy(nil)
	p.SetPolicy(Coalesced, 4)
	_, err = p.StageWrite([]byte{1, 2, 3, 4}, 0, nil)
	require.NoError(t, err)

	dst := rhitest.NewBufferFilled(make([]byte, 4))
	client := &Client{Policy: p, Target: upload.FromPinned(dst), Service: uploadSvc}

	svc := NewService()
	svc.RegisterClient(client)

	svc.BeginFrame()
	require.NoError(t, svc.FlushAll(context.Background()))

	stats := svc.GetStats()
	require.Equal(t, int64(1), stats.BeginFrameCalls)
	require.Equal(t, int64(1), stats.FlushCalls)
}

func TestServiceFlushAllSkipsClientsWithNothingStaged(t *testing.T) {
	// An Immediate-mode client (or one with an empty dirty set) must
	// flush as a no-op even with no upload.Service wired in, since
	// FlushToUploadService never dereferences svc in that case.
	p1 := NewPolicy(nil)
	client1 := &Client{Policy: p1}

	svc := NewService()
	svc.RegisterClient(client1)

	require.NoError(t, svc.FlushAll(context.Background()))
}
