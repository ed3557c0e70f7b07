package bufferpolicy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/upload"
)

// ErrWriteOutOfBounds is raised synchronously when a staged write's
// `offset + size` exceeds the policy's current target size.
var ErrWriteOutOfBounds = errors.New("bufferpolicy: write out of bounds")

// Tag identifies a buffer's batching mode.
type Tag int

const (
	// Immediate stages nothing; StageWrite reports "not handled" so
	// the caller uploads directly through the Upload Recorder.
	Immediate Tag = iota
	// Coalesced maintains a CPU-side scratch array sized to the
	// buffer and a dirty-range list; flush merges and uploads from
	// scratch, then discards the staged state.
	Coalesced
	// CoalescedRetained adds a persistent shadow array alongside
	// scratch so the same merged ranges can be re-flushed after a
	// transient GPU-side invalidation.
	CoalescedRetained
)

// Stats reports one flush's coalescing effectiveness.
type Stats struct {
	StagedWrites  int64
	StagedBytes   int64
	FlushedWrites int64
	FlushedBytes  int64
	Merged        int64
}

// Policy is the Buffer Upload Policy state machine for one owning
// buffer.
type Policy struct {
	tag   Tag
	size  int64
	seq   int64
	scratch []byte
	shadow  []byte
	dirty   []DirtyRange
	log     *zap.Logger
	stats   Stats
}

// NewPolicy creates a Policy starting in Immediate mode.
func NewPolicy(log *zap.Logger) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{tag: Immediate, log: log}
}

// Tag returns the policy's current batching mode.
func (p *Policy) Tag() Tag { return p.tag }

// Stats returns the statistics recorded by the most recent flush.
func (p *Policy) Stats() Stats { return p.stats }

// SetPolicy reshapes the policy to tag, sized to currentSize. Any
// scratch/shadow/dirty state from the previous mode is discarded.
func (p *Policy) SetPolicy(tag Tag, currentSize int64) {
	if tag != p.tag {
		p.log.Warn("buffer upload policy switched",
			zap.Int("from_tag", int(p.tag)),
			zap.Int("to_tag", int(tag)),
			zap.Int64("size", currentSize),
			zap.Int64("discarded_dirty_ranges", int64(len(p.dirty))))
	}
	p.tag = tag
	p.size = currentSize
	p.dirty = nil
	switch tag {
	case Immediate:
		p.scratch = nil
		p.shadow = nil
	case Coalesced:
		p.scratch = make([]byte, currentSize)
		p.shadow = nil
	case CoalescedRetained:
		p.scratch = make([]byte, currentSize)
		p.shadow = make([]byte, currentSize)
	}
}

// OnBufferResized grows or shrinks scratch and (for
// CoalescedRetained) shadow to newSize, preserving existing bytes and
// pending dirty ranges.
func (p *Policy) OnBufferResized(newSize int64) {
	p.size = newSize
	if p.tag == Immediate {
		return
	}
	p.scratch = resize(p.scratch, newSize)
	if p.tag == CoalescedRetained {
		p.shadow = resize(p.shadow, newSize)
	}
}

func resize(buf []byte, newSize int64) []byte {
	next := make([]byte, newSize)
	copy(next, buf)
	return next
}

// BeginFrame is a no-op: staged writes must survive until the next
// Flush, since writes may be staged during initialization before any
// frame has begun.
func (p *Policy) BeginFrame() {}

// StageWrite stages data at offset per the policy's current tag.
// handled is false for Immediate, meaning the caller must upload data
// directly through the Upload Recorder instead.
func (p *Policy) StageWrite(data []byte, offset int64, prov *upload.Provenance) (handled bool, err error) {
	if p.tag == Immediate {
		return false, nil
	}
	size := int64(len(data))
	if offset+size > p.size {
		p.log.Warn("staged write out of bounds",
			zap.Int64("offset", offset),
			zap.Int64("size", size),
			zap.Int64("buffer_size", p.size))
		return true, fmt.Errorf("%w: offset=%d size=%d buffer_size=%d", ErrWriteOutOfBounds, offset, size, p.size)
	}

	copy(p.scratch[offset:offset+size], data)
	if p.tag == CoalescedRetained {
		copy(p.shadow[offset:offset+size], data)
	}

	p.seq++
	p.dirty = append(p.dirty, DirtyRange{Begin: offset, End: offset + size, Seq: p.seq, Provenance: prov})
	p.stats.StagedWrites++
	p.stats.StagedBytes += size
	return true, nil
}

// FlushToUploadService merges the dirty-range set and uploads each
// merged range through svc. Coalesced resets all staged
// state after flushing; CoalescedRetained keeps the shadow array
// alive and only clears the dirty list, so a caller may re-flush the
// same merged ranges later.
func (p *Policy) FlushToUploadService(ctx context.Context, target upload.Target, svc *upload.Service) error {
	if p.tag == Immediate || len(p.dirty) == 0 {
		return nil
	}

	merged := mergeDirtyRanges(p.dirty)
	src := p.scratch
	if p.tag == CoalescedRetained {
		src = p.shadow
	}

	flushedBytes := int64(0)
	for _, r := range merged {
		if err := svc.UploadData(ctx, src[r.Begin:r.End], target, r.Begin, r.Provenance); err != nil {
			return err
		}
		flushedBytes += r.End - r.Begin
	}

	p.stats.FlushedWrites = int64(len(merged))
	p.stats.FlushedBytes = flushedBytes
	p.stats.Merged = p.stats.StagedWrites - p.stats.FlushedWrites

	p.dirty = nil
	p.stats.StagedWrites = 0
	p.stats.StagedBytes = 0
	return nil
}
