package openrendergraph

import (
	"context"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/bufferpolicy"
	"github.com/panthuncia/openrendergraph/internal/ctxt"
	"github.com/panthuncia/openrendergraph/querystats"
	"github.com/panthuncia/openrendergraph/rhi"
	"github.com/panthuncia/openrendergraph/upload"
)

// Engine composes the upload, buffer-policy, and query/stats services
// behind one root context, the way gviegas/scene's engine.Engine
// composes its own subsystems behind a single struct rather than
// leaving them as loose globals. It is the one entry point an
// embedding render graph needs to construct.
type Engine struct {
	Settings Settings

	ctx *ctxt.Context

	Upload       *upload.Service
	BufferPolicy *bufferpolicy.Service
	Stats        *querystats.Service
}

// New creates an Engine bound to device, applying settings.Normalize.
// log may be nil, in which case a no-op logger is used throughout.
func New(ctx context.Context, device rhi.Device, settings Settings, log *zap.Logger) (*Engine, error) {
	settings = settings.Normalize()
	if log == nil {
		log = zap.NewNop()
	}

	rootCtx := ctxt.New(device, log)

	uploadSvc, err := upload.NewService(ctx, rootCtx, settings.NumFramesInFlight, log)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Settings:     settings,
		ctx:          rootCtx,
		Upload:       uploadSvc,
		BufferPolicy: bufferpolicy.NewService(),
		Stats:        querystats.NewService(device, settings.NumFramesInFlight, settings.CollectPipelineStatistics, log),
	}, nil
}

// SetResolveContext installs the ResourceRegistry/epoch pair that
// registry-handle upload targets resolve against for the current
// frame.
func (e *Engine) SetResolveContext(rc ctxt.ResolveContext) {
	e.Upload.SetResolveContext(rc)
}

// BeginFrame advances per-frame services that track a monotonic
// frame serial or sampled state: the buffer policy service and the
// stats aggregator. The Ring Pager has no BeginFrame step of its own
// it is driven entirely by Allocate and EndFrame/Retire.
func (e *Engine) BeginFrame() {
	e.BufferPolicy.BeginFrame()
	e.Stats.BeginFrame()
}

// EndFrame flushes every registered buffer-policy client, then
// retires the Ring Pager and resolves any pending readback captures
// for frameSlot, whose GPU work has fully completed.
func (e *Engine) EndFrame(ctx context.Context, frameSlot int) error {
	if err := e.BufferPolicy.FlushAll(ctx); err != nil {
		return err
	}
	return e.Upload.ProcessDeferredReleases(frameSlot)
}
