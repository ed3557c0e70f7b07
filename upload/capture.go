package upload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/rhi"
)

// ErrResourceTypeMismatch is raised when a capture request's resource
// kind (buffer vs texture) does not match what was actually resolved.
var ErrResourceTypeMismatch = fmt.Errorf("upload: resource type mismatch")

// ResourceKind tags what a CaptureRequest's target actually is.
type ResourceKind int

const (
	KindBuffer ResourceKind = iota
	KindTexture
)

// CaptureCallback receives the bytes read back for a capture request,
// one frame after it was issued.
type CaptureCallback func(data []byte)

// CaptureRequest describes one resource to snapshot into a readback
// buffer, grounded on ReadbackCapturePass.h's ReadbackCaptureInputs +
// ReadbackCaptureRequest.
type CaptureRequest struct {
	Kind      ResourceKind
	Buffer    rhi.Buffer  // set when Kind == KindBuffer
	Texture   rhi.Texture // set when Kind == KindTexture
	Footprint rhi.Footprint
	ByteSize  int64
	Callback  CaptureCallback
}

type pendingCapture struct {
	readback rhi.Buffer
	byteSize int64
	callback CaptureCallback
}

// CapturePass is the Readback Capture Pass: given a resource, it
// records a copy into a per-request readback buffer on the command
// list passed to Capture and delivers the mapped bytes to the caller's
// callback one frame later, reusing the same "resolve now, read back
// next frame" discipline as the Query Heap Manager. It is grounded on
// RenderPasses/ReadbackCapturePass.h as a direct consumer of the
// Upload/Query machinery.
type CapturePass struct {
	device  rhi.Device
	log     *zap.Logger
	pending map[int][]pendingCapture // keyed by frame slot
}

// NewCapturePass creates a CapturePass allocating readback buffers
// from device.
func NewCapturePass(device rhi.Device, log *zap.Logger) *CapturePass {
	if log == nil {
		log = zap.NewNop()
	}
	return &CapturePass{device: device, log: log, pending: make(map[int][]pendingCapture)}
}

// Capture records req's copy onto cmd for frameSlot and remembers the
// readback buffer so OnFrameComplete can map it once the GPU work for
// frameSlot has finished.
func (c *CapturePass) Capture(ctx context.Context, cmd rhi.CmdList, frameSlot int, req CaptureRequest) error {
	switch req.Kind {
	case KindTexture:
		if req.Texture == nil {
			c.log.Warn("capture request dropped", zap.String("reason", "texture capture with nil texture"))
			return fmt.Errorf("%w: texture capture with nil texture", ErrResourceTypeMismatch)
		}
		readback, err := c.device.NewBuffer(ctx, req.ByteSize, true, rhi.UCopyDst)
		if err != nil {
			c.log.Warn("capture readback buffer allocation failed", zap.Int("frame_slot", frameSlot), zap.Error(err))
			return err
		}
		cmd.CopyTextureToBuffer(rhi.CopyTextureToBuffer{
			Src: req.Texture,
			Dst: readback,
			Mip: req.Footprint.Mip, Slice: req.Footprint.Slice,
			FP: req.Footprint,
		})
		c.pending[frameSlot] = append(c.pending[frameSlot], pendingCapture{readback, req.ByteSize, req.Callback})
	case KindBuffer:
		if req.Buffer == nil {
			c.log.Warn("capture request dropped", zap.String("reason", "buffer capture with nil buffer"))
			return fmt.Errorf("%w: buffer capture with nil buffer", ErrResourceTypeMismatch)
		}
		readback, err := c.device.NewBuffer(ctx, req.ByteSize, true, rhi.UCopyDst)
		if err != nil {
			c.log.Warn("capture readback buffer allocation failed", zap.Int("frame_slot", frameSlot), zap.Error(err))
			return err
		}
		cmd.CopyBufferRegion(rhi.CopyBufferRegion{Dst: readback, Src: req.Buffer, Size: req.ByteSize})
		c.pending[frameSlot] = append(c.pending[frameSlot], pendingCapture{readback, req.ByteSize, req.Callback})
	default:
		c.log.Warn("capture request dropped", zap.String("reason", "unknown resource kind"), zap.Int("kind", int(req.Kind)))
		return fmt.Errorf("%w: unknown resource kind %d", ErrResourceTypeMismatch, req.Kind)
	}
	return nil
}

// OnFrameComplete maps every capture recorded for frameSlot, invokes
// its callback with the resolved bytes, and releases the readback
// buffer.
func (c *CapturePass) OnFrameComplete(frameSlot int) error {
	captures := c.pending[frameSlot]
	delete(c.pending, frameSlot)
	for _, p := range captures {
		data, err := p.readback.Map(0, p.byteSize)
		if err != nil {
			c.log.Warn("capture readback map failed", zap.Int("frame_slot", frameSlot), zap.Error(err))
			return err
		}
		if p.callback != nil {
			cp := make([]byte, len(data))
			copy(cp, data)
			p.callback(cp)
		}
		p.readback.Unmap()
		p.readback.Destroy()
	}
	return nil
}
