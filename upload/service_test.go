package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panthuncia/openrendergraph/internal/ctxt"
	"github.com/panthuncia/openrendergraph/rhi"
	"github.com/panthuncia/openrendergraph/rhi/rhitest"
)

func TestServiceUploadAndFlushRoundTrip(t *testing.T) {
	dev := rhitest.NewDevice()
	rootCtx := ctxt.New(dev, nil)
	svc, err := NewService(context.Background(), rootCtx, 2, nil)
	require.NoError(t, err)

	dst := rhitest.NewBufferFilled(make([]byte, 8))
	target := FromPinned(dst)
	require.NoError(t, svc.UploadData(context.Background(), []byte{1, 2, 3, 4}, target, 0, nil))

	cmd := dev.NewCmdList()
	require.NoError(t, svc.UploadPass().Flush(cmd))
	require.Equal(t, []byte{1, 2, 3, 4}, dst.Bytes()[:4])
}

func TestServiceProcessDeferredReleasesRetiresPagerAndCapture(t *testing.T) {
	dev := rhitest.NewDevice()
	rootCtx := ctxt.New(dev, nil)
	svc, err := NewService(context.Background(), rootCtx, 2, nil)
	require.NoError(t, err)

	cmd := dev.NewCmdList()
	src := rhitest.NewBufferFilled([]byte{5})
	called := false
	require.NoError(t, svc.Capture().Capture(context.Background(), cmd, 0, CaptureRequest{
		Kind: KindBuffer, Buffer: src, ByteSize: 1, Callback: func([]byte) { called = true },
	}))

	require.NoError(t, svc.ProcessDeferredReleases(0))
	require.True(t, called)
	require.True(t, svc.Pager().NumPages() >= 1)
}

func TestServiceSetResolveContextInstallsOnRootCtx(t *testing.T) {
	dev := rhitest.NewDevice()
	rootCtx := ctxt.New(dev, nil)
	svc, err := NewService(context.Background(), rootCtx, 2, nil)
	require.NoError(t, err)

	reg := rhitest.NewRegistry()
	svc.SetResolveContext(ctxt.ResolveContext{Registry: reg, Epoch: 9})
	require.Equal(t, uint32(9), rootCtx.ResolveContext().Epoch)
}

func TestServiceQueueResourceCopyFlushesAheadOfUploads(t *testing.T) {
	dev := rhitest.NewDevice()
	rootCtx := ctxt.New(dev, nil)
	svc, err := NewService(context.Background(), rootCtx, 2, nil)
	require.NoError(t, err)

	dst := rhitest.NewBufferFilled(make([]byte, 4))
	copySrc := rhitest.NewBufferFilled([]byte{1, 1, 1, 1})
	svc.QueueResourceCopy(dst, copySrc, 4)

	cmd := dev.NewCmdList()
	require.NoError(t, svc.UploadPass().Flush(cmd))
	require.Equal(t, []byte{1, 1, 1, 1}, dst.Bytes())
}

func TestServiceUploadTextureSubresources(t *testing.T) {
	dev := rhitest.NewDevice()
	rootCtx := ctxt.New(dev, nil)
	svc, err := NewService(context.Background(), rootCtx, 2, nil)
	require.NoError(t, err)

	tex := &rhitest.Texture{}
	target := FromPinned(tex)
	srcs := []SourceSubresource{
		{Data: make([]byte, 4*4*4), SourceRowPitch: 16, SourceSlicePitch: 64},
	}
	require.NoError(t, svc.UploadTextureSubresources(context.Background(), target, rhi.FormatRGBA8, 4, 4, 1, 1, 1, srcs, nil))

	cmd := dev.NewCmdList()
	require.NoError(t, svc.UploadPass().Flush(cmd))
}
