package upload

import (
	"context"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/internal/ctxt"
	"github.com/panthuncia/openrendergraph/rhi"
)

// Service is the UploadService: the single entry point client code
// and render passes use to stage uploads, queue raw resource copies,
// and retire the Ring Pager at end of frame. It composes the Pager,
// Recorder, Pass, and CapturePass behind the root Context, mirroring
// how gviegas/scene's engine.Engine composes its staging/texture
// subsystems behind one struct rather than exposing them loose.
type Service struct {
	rootCtx *ctxt.Context
	pager   *Pager
	recorder *Recorder
	pass    *Pass
	capture *CapturePass
}

// NewService creates a Service bound to rootCtx's device, with a Ring
// Pager sized for framesInFlight frame slots.
func NewService(ctx context.Context, rootCtx *ctxt.Context, framesInFlight int, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pager, err := NewPager(ctx, rootCtx.Device(), framesInFlight, log)
	if err != nil {
		return nil, err
	}
	recorder := NewRecorder(pager, log)
	pass := NewPass(recorder, rootCtx, log)
	capture := NewCapturePass(rootCtx.Device(), log)
	return &Service{rootCtx: rootCtx, pager: pager, recorder: recorder, pass: pass, capture: capture}, nil
}

// UploadData stages data into target at dstOffset; see Recorder.UploadData.
func (s *Service) UploadData(ctx context.Context, data []byte, target Target, dstOffset int64, prov *Provenance) error {
	return s.recorder.UploadData(ctx, data, target, dstOffset, prov)
}

// UploadTextureSubresources stages a texture's subresources; see
// Recorder.UploadTextureSubresources.
func (s *Service) UploadTextureSubresources(
	ctx context.Context,
	target Target,
	format rhi.PixelFormat,
	baseWidth, baseHeight, depthOrLayers, mipLevels, arraySize int,
	srcs []SourceSubresource,
	prov *Provenance,
) error {
	return s.recorder.UploadTextureSubresources(ctx, target, format, baseWidth, baseHeight, depthOrLayers, mipLevels, arraySize, srcs, prov)
}

// QueueResourceCopy queues a raw GPU-to-GPU copy ahead of staged
// uploads; see Recorder.QueueResourceCopy.
func (s *Service) QueueResourceCopy(dst, src any, size int64) {
	s.recorder.QueueResourceCopy(dst, src, size)
}

// SetResolveContext installs the ResourceRegistry/epoch pair that
// registry-handle upload targets resolve against for the current
// frame.
func (s *Service) SetResolveContext(rc ctxt.ResolveContext) {
	s.rootCtx.SetResolveContext(rc)
}

// UploadPass returns the Upload Pass to schedule once per frame ahead
// of any pass reading staged data.
func (s *Service) UploadPass() *Pass { return s.pass }

// Capture returns the Readback Capture Pass, the supplemental
// resource-snapshot facility layered on top of the same recorder and
// device.
func (s *Service) Capture() *CapturePass { return s.capture }

// ProcessDeferredReleases retires the Ring Pager pages and resolves
// any pending capture requests for frameSlot, whose GPU work has now
// fully completed. It must run once per frame, after the device has
// confirmed frameSlot's prior submission is done.
func (s *Service) ProcessDeferredReleases(frameSlot int) error {
	s.pager.Retire(frameSlot)
	return s.capture.OnFrameComplete(frameSlot)
}

// Pager exposes the Ring Pager directly for diagnostics and tests.
func (s *Service) Pager() *Pager { return s.pager }
