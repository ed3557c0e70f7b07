package upload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/rhi"
)

// Recorder is the Upload Recorder: the public entry point for buffer
// and texture subresource uploads. It writes bytes into the Pager
// and records deferred copy commands, coalescing adjacent writes.
// Grounded on UploadManager::UploadData/UploadTextureSubresources.
type Recorder struct {
	pager *Pager
	log   *zap.Logger

	bufferUpdates  []*BufferUpdate
	textureUpdates []*TextureUpdate
	copyRequests   []CopyRequest
}

// NewRecorder creates a Recorder writing into pg.
func NewRecorder(pg *Pager, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{pager: pg, log: log}
}

// BufferUpdates returns the active buffer updates recorded so far.
func (r *Recorder) BufferUpdates() []*BufferUpdate { return r.bufferUpdates }

// TextureUpdates returns the texture updates recorded so far.
func (r *Recorder) TextureUpdates() []*TextureUpdate { return r.textureUpdates }

// CopyRequests returns the raw resource copies queued so far.
func (r *Recorder) CopyRequests() []CopyRequest { return r.copyRequests }

// QueueResourceCopy queues a raw GPU-to-GPU or staging-to-target copy
// for execution at the Upload Pass, ahead of all staged uploads.
func (r *Recorder) QueueResourceCopy(dst, src any, size int64) {
	r.copyRequests = append(r.copyRequests, CopyRequest{Destination: dst, Source: src, Size: size})
}

// UploadData stages size bytes from data into the destination target
// at dstOffset. Writes larger than a page are split into
// page-sized chunks and recursed. prov may be nil.
func (r *Recorder) UploadData(ctx context.Context, data []byte, target Target, dstOffset int64, prov *Provenance) error {
	size := int64(len(data))
	if size == 0 {
		return nil
	}
	if dstOffset < 0 {
		r.log.Warn("upload data rejected", zap.Int64("dest_offset", dstOffset), zap.Int64("size", size))
		return fmt.Errorf("%w: dest_offset=%d", ErrOutOfBounds, dstOffset)
	}
	if size > r.pager.pageSize {
		done := int64(0)
		for done < size {
			chunk := size - done
			if chunk > r.pager.pageSize {
				chunk = r.pager.pageSize
			}
			if err := r.UploadData(ctx, data[done:done+chunk], target, dstOffset+done, prov); err != nil {
				return err
			}
			done += chunk
		}
		return nil
	}

	page, off, err := r.pager.Allocate(ctx, size, 1)
	if err != nil {
		return err
	}
	mapped, err := page.Buf.Map(off, size)
	if err != nil {
		return err
	}
	copy(mapped, data)
	page.Buf.Unmap()

	update := &BufferUpdate{
		Destination: target,
		Page:        page,
		UploadOff:   off,
		DestOff:     dstOffset,
		Size:        size,
		Active:      true,
		Provenance:  prov,
	}

	// Contiguous-append coalescing: only the most recently appended
	// active update is ever examined.
	if n := len(r.bufferUpdates); n > 0 {
		last := r.bufferUpdates[n-1]
		if last.Active &&
			last.Destination.Equal(target) &&
			last.Page == page &&
			last.DestOff+last.Size == update.DestOff &&
			last.UploadOff+last.Size == update.UploadOff {
			last.Size += update.Size
			if update.Provenance != nil {
				last.Provenance = update.Provenance
			}
			return nil
		}
	}

	r.bufferUpdates = append(r.bufferUpdates, update)
	return nil
}

// UploadTextureSubresources stages a texture's subresources: plan a
// packed layout, allocate+map+write it once, then record one
// TextureUpdate per subresource sharing that one allocation.
//
// An empty srcs is not an error; it returns silently.
func (r *Recorder) UploadTextureSubresources(
	ctx context.Context,
	target Target,
	format rhi.PixelFormat,
	baseWidth, baseHeight, depthOrLayers, mipLevels, arraySize int,
	srcs []SourceSubresource,
	prov *Provenance,
) error {
	if len(srcs) == 0 {
		return nil
	}

	plan, err := PlanTextureFootprints(format, baseWidth, baseHeight, depthOrLayers, mipLevels, arraySize)
	if err != nil {
		return err
	}
	if plan.TotalBytes == 0 || len(plan.Footprints) == 0 {
		return nil
	}

	page, base, err := r.pager.Allocate(ctx, plan.TotalBytes, footprintAlign)
	if err != nil {
		return err
	}
	mapped, err := page.Buf.Map(base, plan.TotalBytes)
	if err != nil {
		return err
	}
	WriteTextureFootprints(plan, srcs, mapped, 0)
	page.Buf.Unmap()

	for _, fp := range plan.Footprints {
		placed := fp
		placed.Offset = base + fp.Offset
		r.textureUpdates = append(r.textureUpdates, &TextureUpdate{
			Target:     target,
			Mip:        fp.Mip,
			ArraySlice: fp.ArraySlice,
			ZSlice:     fp.ZSlice,
			Footprint:  placed,
			Page:       page,
			Provenance: prov,
		})
	}
	return nil
}

// Clear drops every recorded update and copy request, called once
// the Upload Pass has emitted its commands.
func (r *Recorder) Clear() {
	r.bufferUpdates = r.bufferUpdates[:0]
	r.textureUpdates = r.textureUpdates[:0]
	r.copyRequests = r.copyRequests[:0]
}

// resolveTarget dereferences t against registry when t is a registry
// handle, returning the pinned resource directly otherwise. It fails
// with ErrDestinationMissing if the registry cannot resolve the
// handle (the destination has been dropped or rebuilt under a
// mismatched epoch). Every failure is logged at warn level since a
// missing destination silently drops a queued upload.
func resolveTarget(t Target, registry rhi.ResourceRegistry, log *zap.Logger) (rhi.Buffer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if t.Kind == TargetPinned {
		buf, ok := t.Pinned.(rhi.Buffer)
		if !ok {
			log.Warn("upload destination unresolved", zap.String("reason", "pinned target is not a buffer"))
			return nil, fmt.Errorf("%w: pinned target is not a buffer", ErrDestinationMissing)
		}
		return buf, nil
	}
	if registry == nil {
		log.Warn("upload destination unresolved", zap.String("reason", "no resolve context installed"))
		return nil, fmt.Errorf("%w: no resolve context installed", ErrDestinationMissing)
	}
	rhiHandle := rhi.Handle{Idx: t.Handle.Idx, Generation: t.Handle.Generation, Epoch: t.Handle.Epoch}
	resource, err := registry.Resolve(rhiHandle)
	if err != nil {
		log.Warn("upload destination unresolved",
			zap.String("reason", "registry resolve failed"),
			zap.Uint32("handle_idx", t.Handle.Idx),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDestinationMissing, err)
	}
	buf, ok := resource.(rhi.Buffer)
	if !ok {
		log.Warn("upload destination unresolved", zap.String("reason", "resolved resource is not a buffer"))
		return nil, fmt.Errorf("%w: resolved resource is not a buffer", ErrDestinationMissing)
	}
	return buf, nil
}

func resolveTexture(t Target, registry rhi.ResourceRegistry, log *zap.Logger) (rhi.Texture, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if t.Kind == TargetPinned {
		tex, ok := t.Pinned.(rhi.Texture)
		if !ok {
			log.Warn("upload destination unresolved", zap.String("reason", "pinned target is not a texture"))
			return nil, fmt.Errorf("%w: pinned target is not a texture", ErrDestinationMissing)
		}
		return tex, nil
	}
	if registry == nil {
		log.Warn("upload destination unresolved", zap.String("reason", "no resolve context installed"))
		return nil, fmt.Errorf("%w: no resolve context installed", ErrDestinationMissing)
	}
	rhiHandle := rhi.Handle{Idx: t.Handle.Idx, Generation: t.Handle.Generation, Epoch: t.Handle.Epoch}
	resource, err := registry.Resolve(rhiHandle)
	if err != nil {
		log.Warn("upload destination unresolved",
			zap.String("reason", "registry resolve failed"),
			zap.Uint32("handle_idx", t.Handle.Idx),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDestinationMissing, err)
	}
	tex, ok := resource.(rhi.Texture)
	if !ok {
		log.Warn("upload destination unresolved", zap.String("reason", "resolved resource is not a texture"))
		return nil, fmt.Errorf("%w: resolved resource is not a texture", ErrDestinationMissing)
	}
	return tex, nil
}
