// Package upload implements the Ring Pager, Upload Recorder, Overlap
// Resolver, and Texture Footprint Planner: the CPU-to-GPU upload
// staging and coalescing engine described by this repository's
// upload spec. It is grounded on gviegas/scene's engine/staging.go
// and engine/texture/staging.go (a growable, bitmap-tracked staging
// ring with deferred copy commands) and on the original
// DefaultUploadService/UploadManager implementation for the exact
// coalescing and retirement algorithms.
package upload

import (
	"errors"
	"fmt"
)

// Error kinds raised synchronously by this package.
var (
	ErrOutOfBounds        = errors.New("upload: write out of bounds")
	ErrOutOfHostMemory    = errors.New("upload: out of host memory")
	ErrDestinationMissing = errors.New("upload: destination out of bounds at flush time")
	ErrFormatUnsupported  = errors.New("upload: format unsupported")
)

const pkgPrefix = "upload: "

// TargetKind tags the two forms an UploadTarget may take, mirroring
// the original UploadTarget::Kind enum.
type TargetKind uint8

const (
	// TargetRegistryHandle resolves through a ResourceRegistry
	// installed per-frame via ctxt.Context.SetResolveContext.
	TargetRegistryHandle TargetKind = iota
	// TargetPinned references a shared resource directly, with no
	// registry indirection.
	TargetPinned
)

// Handle identifies a destination inside a resource registry: a key,
// generation, and epoch, matching rhi.Handle.
type Handle struct {
	Idx        uint32
	Generation uint32
	Epoch      uint32
}

// Target is the tagged union destination of a buffer or texture
// upload: either a registry handle or a pinned shared resource,
// mirroring UploadTypes.h's UploadTarget. Equality is defined by
// (Idx, Generation, Epoch) for registry handles, or pointer identity
// for pinned resources; see Target.Equal.
type Target struct {
	Kind   TargetKind
	Handle Handle
	Pinned any // holds an rhi.Buffer or rhi.Texture; compared by identity
}

// FromHandle builds a registry-handle Target.
func FromHandle(h Handle) Target {
	return Target{Kind: TargetRegistryHandle, Handle: h}
}

// FromPinned builds a pinned-resource Target.
func FromPinned(resource any) Target {
	return Target{Kind: TargetPinned, Pinned: resource}
}

// Equal reports whether t and other identify the same destination.
func (t Target) Equal(other Target) bool {
	if t.Kind != other.Kind {
		return false
	}
	if t.Kind == TargetRegistryHandle {
		return t.Handle == other.Handle
	}
	return t.Pinned == other.Pinned
}

func (t Target) String() string {
	if t.Kind == TargetPinned {
		return fmt.Sprintf("pinned(%p)", t.Pinned)
	}
	return fmt.Sprintf("handle(idx=%d gen=%d epoch=%d)", t.Handle.Idx, t.Handle.Generation, t.Handle.Epoch)
}

// Provenance records the call site of an upload, captured only when
// the caller supplies it: an optional struct rather than a build-time
// gated macro.
type Provenance struct {
	File string
	Line int
}

// BufferUpdate is a pending or coalesced buffer upload.
type BufferUpdate struct {
	Destination Target
	Page        *Page
	UploadOff   int64
	DestOff     int64
	Size        int64
	Active      bool
	Provenance  *Provenance
}

// TextureUpdate is one pending subresource upload.
type TextureUpdate struct {
	Target     Target
	Mip        int
	ArraySlice int
	ZSlice     int
	Footprint  PlacedFootprint
	Page       *Page
	Provenance *Provenance
}

// CopyRequest is a raw GPU-to-GPU or staging-to-target copy queued by
// the client for execution at the Upload Pass, preceding all staged
// uploads.
type CopyRequest struct {
	Destination any // rhi.Buffer
	Source      any // rhi.Buffer
	Size        int64
}
