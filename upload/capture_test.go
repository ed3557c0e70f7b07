package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panthuncia/openrendergraph/rhi"
	"github.com/panthuncia/openrendergraph/rhi/rhitest"
)

func TestCaptureBufferRoundTrip(t *testing.T) {
	dev := rhitest.NewDevice()
	cp := NewCapturePass(dev, nil)
	cmd := dev.NewCmdList()

	src := rhitest.NewBufferFilled([]byte{1, 2, 3, 4})
	var captured []byte
	req := CaptureRequest{
		Kind:     KindBuffer,
		Buffer:   src,
		ByteSize: 4,
		Callback: func(data []byte) { captured = data },
	}
	require.NoError(t, cp.Capture(context.Background(), cmd, 0, req))
	require.NoError(t, cp.OnFrameComplete(0))
	require.Equal(t, []byte{1, 2, 3, 4}, captured)
}

func TestCaptureBufferWithNilFails(t *testing.T) {
	dev := rhitest.NewDevice()
	cp := NewCapturePass(dev, nil)
	cmd := dev.NewCmdList()

	err := cp.Capture(context.Background(), cmd, 0, CaptureRequest{Kind: KindBuffer, ByteSize: 4})
	require.ErrorIs(t, err, ErrResourceTypeMismatch)
}

func TestCaptureTextureWithNilFails(t *testing.T) {
	dev := rhitest.NewDevice()
	cp := NewCapturePass(dev, nil)
	cmd := dev.NewCmdList()

	err := cp.Capture(context.Background(), cmd, 0, CaptureRequest{Kind: KindTexture, ByteSize: 4})
	require.ErrorIs(t, err, ErrResourceTypeMismatch)
}

func TestCaptureIsScopedPerFrameSlot(t *testing.T) {
	dev := rhitest.NewDevice()
	cp := NewCapturePass(dev, nil)
	cmd := dev.NewCmdList()

	src := rhitest.NewBufferFilled([]byte{9})
	called := false
	req := CaptureRequest{Kind: KindBuffer, Buffer: src, ByteSize: 1, Callback: func([]byte) { called = true }}
	require.NoError(t, cp.Capture(context.Background(), cmd, 1, req))

	// Completing a different frame slot must not trigger slot 1's callback.
	require.NoError(t, cp.OnFrameComplete(0))
	require.False(t, called)

	require.NoError(t, cp.OnFrameComplete(1))
	require.True(t, called)
}

func TestCaptureTextureRoundTrip(t *testing.T) {
	dev := rhitest.NewDevice()
	cp := NewCapturePass(dev, nil)
	cmd := dev.NewCmdList()

	tex := &rhitest.Texture{}
	fp := rhi.Footprint{RowPitch: 4, Width: 1, Height: 1, Depth: 1}
	req := CaptureRequest{Kind: KindTexture, Texture: tex, Footprint: fp, ByteSize: 4}
	require.NoError(t, cp.Capture(context.Background(), cmd, 0, req))
	require.NoError(t, cp.OnFrameComplete(0))
}
