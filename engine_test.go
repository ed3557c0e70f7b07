package openrendergraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panthuncia/openrendergraph/bufferpolicy"
	"github.com/panthuncia/openrendergraph/rhi"
	"github.com/panthuncia/openrendergraph/rhi/rhitest"
	"github.com/panthuncia/openrendergraph/upload"
)

func TestNewEngineAppliesNormalize(t *testing.T) {
	dev := rhitest.NewDevice()
	eng, err := New(context.Background(), dev, Settings{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, eng.Settings.NumFramesInFlight)
}

func TestEngineUploadAndEndFrameRoundTrip(t *testing.T) {
	dev := rhitest.NewDevice()
	eng, err := New(context.Background(), dev, DefaultSettings(), nil)
	require.NoError(t, err)

	dst := rhitest.NewBufferFilled(make([]byte, 8))
	target := upload.FromPinned(dst)
	require.NoError(t, eng.Upload.UploadData(context.Background(), []byte{1, 2, 3, 4}, target, 0, nil))

	cmd := dev.NewCmdList()
	require.NoError(t, eng.Upload.UploadPass().Flush(cmd))
	require.Equal(t, []byte{1, 2, 3, 4}, dst.Bytes()[:4])

	eng.BeginFrame()
	require.NoError(t, eng.EndFrame(context.Background(), 0))
}

func TestEngineBufferPolicyClientFlushesThroughEndFrame(t *testing.T) {
	dev := rhitest.NewDevice()
	eng, err := New(context.Background(), dev, DefaultSettings(), nil)
	require.NoError(t, err)

	dst := rhitest.NewBufferFilled(make([]byte, 8))
	policy := bufferpolicy.NewPolicy(nil)
	policy.SetPolicy(bufferpolicy.Coalesced, 8)
	_, err = policy.StageWrite([]byte{9, 9, 9, 9}, 0, nil)
	require.NoError(t, err)

	client := &bufferpolicy.Client{Policy: policy, Target: upload.FromPinned(dst), Service: eng.Upload}
	eng.BufferPolicy.RegisterClient(client)

	eng.BeginFrame()
	require.NoError(t, eng.EndFrame(context.Background(), 0))

	cmd := dev.NewCmdList()
	require.NoError(t, eng.Upload.UploadPass().Flush(cmd))
	require.Equal(t, []byte{9, 9, 9, 9}, dst.Bytes()[:4])
}

func TestEngineStatsServiceWiredToDevice(t *testing.T) {
	dev := rhitest.NewDevice()
	eng, err := New(context.Background(), dev, DefaultSettings(), nil)
	require.NoError(t, err)

	pass := eng.Stats.RegisterPass("main", false)
	require.NoError(t, eng.Stats.RegisterQueue(rhi.QueueGraphics))
	require.NoError(t, eng.Stats.SetupQueryHeap(context.Background()))

	eng.BeginFrame()
	cmd := dev.NewCmdList()
	eng.Stats.BeginQuery(pass, 0, rhi.QueueGraphics, cmd)
	eng.Stats.EndQuery(pass, 0, rhi.QueueGraphics, cmd)
	eng.Stats.ResolveQueries(0, rhi.QueueGraphics, cmd)
	require.NoError(t, eng.Stats.OnFrameComplete(0, rhi.QueueGraphics))
}
