package upload

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/internal/ctxt"
	"github.com/panthuncia/openrendergraph/rhi"
)

// Pass is the Upload Pass: a single render-graph pass executed once
// per frame before any pass that reads staged data. Flush drains the
// Recorder's queued copies onto a command list in a fixed order:
// CopyRequests first, then buffer updates, then texture updates, all
// in recording order.
type Pass struct {
	recorder *Recorder
	rootCtx  *ctxt.Context
	log      *zap.Logger
}

// NewPass creates the Upload Pass bound to recorder and rootCtx.
func NewPass(recorder *Recorder, rootCtx *ctxt.Context, log *zap.Logger) *Pass {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pass{recorder: recorder, rootCtx: rootCtx, log: log}
}

// Flush executes the Upload Pass: it drains CopyRequests, then emits
// one copy_buffer_region per active BufferUpdate and one
// copy_buffer_to_texture per TextureUpdate, then clears both queues.
// CopyRequests must precede the staged uploads so raw client copies
// cannot clobber them.
func (p *Pass) Flush(cmd rhi.CmdList) error {
	registry := p.rootCtx.ResolveContext().Registry

	for _, cr := range p.recorder.copyRequests {
		dst, ok := cr.Destination.(rhi.Buffer)
		if !ok {
			p.log.Warn("queued resource copy destination is not a buffer")
			return fmt.Errorf("%w: queued resource copy destination is not a buffer", ErrDestinationMissing)
		}
		src, ok := cr.Source.(rhi.Buffer)
		if !ok {
			p.log.Warn("queued resource copy source is not a buffer")
			return fmt.Errorf("%w: queued resource copy source is not a buffer", ErrDestinationMissing)
		}
		cmd.CopyBufferRegion(rhi.CopyBufferRegion{Dst: dst, Src: src, Size: cr.Size})
	}

	for _, u := range p.recorder.bufferUpdates {
		if !u.Active {
			continue
		}
		dst, err := resolveTarget(u.Destination, registry, p.log)
		if err != nil {
			return err
		}
		if u.DestOff+u.Size > dst.Cap() {
			p.log.Warn("upload destination too small for staged write",
				zap.Int64("dest_offset", u.DestOff),
				zap.Int64("size", u.Size),
				zap.Int64("dest_cap", dst.Cap()))
			return fmt.Errorf("%w: dest=%s offset=%d size=%d cap=%d",
				ErrDestinationMissing, u.Destination, u.DestOff, u.Size, dst.Cap())
		}
		cmd.CopyBufferRegion(rhi.CopyBufferRegion{
			Dst: dst, DstOff: u.DestOff,
			Src: u.Page.Buf, SrcOff: u.UploadOff,
			Size: u.Size,
		})
	}

	for _, t := range p.recorder.textureUpdates {
		dst, err := resolveTexture(t.Target, registry, p.log)
		if err != nil {
			return err
		}
		cmd.CopyBufferToTexture(rhi.CopyBufferToTexture{
			Src:   t.Page.Buf,
			Dst:   dst,
			Mip:   t.Mip,
			Slice: t.ArraySlice,
			FP: rhi.Footprint{
				Offset:   t.Footprint.Offset,
				RowPitch: t.Footprint.RowPitch,
				Width:    t.Footprint.Width,
				Height:   t.Footprint.Height,
				Depth:    t.Footprint.Depth,
				Mip:      t.Mip,
				Slice:    t.ArraySlice,
				ZSlice:   t.ZSlice,
			},
			DstOff: rhi.Offset3D{Z: t.ZSlice},
		})
	}

	p.recorder.Clear()
	return nil
}
