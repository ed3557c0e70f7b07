// Package rhi defines the opaque GPU abstraction consumed by the
// upload, buffer-policy, and query/stats subsystems: command lists,
// host-visible buffers, devices, and query pools. It mirrors the
// shape of gviegas/scene's driver package (GPU, CmdBuffer, Buffer,
// Usage, Transition) extended with the query-pool and resource-copy
// surface this spec's runtime requires. Concrete backends (Vulkan,
// D3D12, Metal) are external collaborators; this package ships only
// the contract plus, under rhi/rhitest, an in-memory fake used by
// this repository's own tests.
package rhi

import (
	"context"
	"errors"
)

// ErrNoHostMemory means the device refused to allocate a host-visible
// resource. It corresponds to driver.ErrNoDeviceMemory's sibling in
// gviegas/scene, renamed for the host-visible staging path this spec
// exercises.
var ErrNoHostMemory = errors.New("rhi: out of host memory")

// ErrFormatUnsupported means the device has no block layout for a
// requested PixelFormat.
var ErrFormatUnsupported = errors.New("rhi: format unsupported")

// Usage is a mask indicating valid uses for a Buffer or Texture,
// following driver.Usage's bitmask convention.
type Usage int

const (
	UCopySrc Usage = 1 << iota
	UCopyDst
	UShaderRead
	UShaderWrite
)

// PixelFormat identifies a texture's pixel or block layout.
type PixelFormat int

const (
	FormatRGBA8 PixelFormat = iota
	FormatBGRA8
	FormatRGBA16F
	FormatRGBA32F
	FormatR8
	FormatBC1
	FormatBC3
	FormatBC7
)

// formatInfo describes how a PixelFormat is laid out on disk/in a
// staging buffer: bytes per block, and block extent in pixels (1x1
// for uncompressed formats, 4x4 for the BCn families).
type formatInfo struct {
	bytesPerBlock int
	blockW, blockH int
}

var formatTable = map[PixelFormat]formatInfo{
	FormatRGBA8:   {4, 1, 1},
	FormatBGRA8:   {4, 1, 1},
	FormatRGBA16F: {8, 1, 1},
	FormatRGBA32F: {16, 1, 1},
	FormatR8:      {1, 1, 1},
	FormatBC1:     {8, 4, 4},
	FormatBC3:     {16, 4, 4},
	FormatBC7:     {16, 4, 4},
}

// BlockInfo returns the bytes-per-block and block extent for f.
// It fails with ErrFormatUnsupported if f has no known layout.
func BlockInfo(f PixelFormat) (bytesPerBlock, blockW, blockH int, err error) {
	info, ok := formatTable[f]
	if !ok {
		return 0, 0, 0, ErrFormatUnsupported
	}
	return info.bytesPerBlock, info.blockW, info.blockH, nil
}

// Extent3D is a three-dimensional size, mirroring driver.Dim3D.
type Extent3D struct {
	Width, Height, Depth int
}

// Offset3D is a three-dimensional offset, mirroring driver.Off3D.
type Offset3D struct {
	X, Y, Z int
}

// Destroyer is the interface wrapping the Destroy method, mirroring
// driver.Destroyer: types backed by external (non-GC) memory must be
// destroyed explicitly.
type Destroyer interface {
	Destroy()
}

// Buffer is a GPU buffer resource. Host-visible buffers expose their
// bytes directly through Map/Unmap, following driver.Buffer's
// "fixed-size, recreate to grow" model.
type Buffer interface {
	Destroyer

	// Cap returns the buffer's capacity in bytes. Immutable.
	Cap() int64

	// Visible reports whether the buffer can be mapped for CPU access.
	Visible() bool

	// Map returns a byte slice of length size starting at offset
	// within the buffer, valid until the matching Unmap. Fails with
	// ErrNoHostMemory if the buffer is not host-visible.
	Map(offset, size int64) ([]byte, error)

	// Unmap invalidates the slice(s) returned by Map.
	Unmap()
}

// Texture is a GPU image resource. Direct CPU access is never
// provided; writing texture contents requires a staging Buffer and a
// copy command, as in driver.Image.
type Texture interface {
	Destroyer
}

// CopyBufferRegion describes a buffer-to-buffer copy.
type CopyBufferRegion struct {
	Dst, Src         Buffer
	DstOff, SrcOff   int64
	Size             int64
}

// Footprint describes one subresource's layout inside a staging
// buffer.
type Footprint struct {
	Offset   int64
	RowPitch int
	Width    int
	Height   int
	Depth    int
	Mip      int
	Slice    int
	ZSlice   int
}

// CopyBufferToTexture describes a staging-buffer-to-texture copy.
type CopyBufferToTexture struct {
	Src    Buffer
	Dst    Texture
	Mip    int
	Slice  int
	FP     Footprint
	DstOff Offset3D
}

// CopyTextureToBuffer describes a texture-to-readback-buffer copy,
// the inverse of CopyBufferToTexture, used by the readback capture
// pass and by round-trip tests.
type CopyTextureToBuffer struct {
	Src    Texture
	Dst    Buffer
	Mip    int
	Slice  int
	FP     Footprint
	SrcOff Offset3D
}

// Stage identifies a pipeline stage at which a timestamp is captured,
// mirroring the top-of-pipe/bottom-of-pipe pair used to bracket a
// pass's GPU execution.
type Stage int

const (
	StageTop Stage = iota
	StageBottom
)

// QueryType identifies the kind of query a QueryPool resolves.
type QueryType int

const (
	QueryTimestamp QueryType = iota
	QueryPipelineStatistics
)

// PipelineStatField identifies one counter published by a
// pipeline-statistics QueryPool, restricted to the mesh-shader
// counters this runtime collects.
type PipelineStatField int

const (
	StatMeshInvocations PipelineStatField = iota
	StatMeshPrimitives
)

// QueryPoolDesc describes a QueryPool to be created via
// Device.CreateQueryPool.
type QueryPoolDesc struct {
	Type  QueryType
	Count int
	// StatsMask selects which PipelineStatField values a
	// QueryPipelineStatistics pool publishes; unused for
	// QueryTimestamp pools.
	StatsMask []PipelineStatField
}

// QueryPool is an opaque handle to a pool of GPU queries.
type QueryPool interface {
	Destroyer

	// ElementSize returns the byte size of one resolved query
	// element (8 for a timestamp tick, backend-defined for
	// pipeline-statistics elements).
	ElementSize() int

	// StatOffset returns the byte offset of field within one
	// resolved pipeline-statistics element. It is only valid for
	// pools created with Type == QueryPipelineStatistics.
	StatOffset(field PipelineStatField) (offset int, ok bool)
}

// QueueKind identifies one of the device's command queues.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
	QueueCopy
)

// CmdList is a command list recording copies and queries. It mirrors
// the copy/query subset of driver.CmdBuffer's BeginBlit/.../EndBlit
// recording discipline; the render/compute recording surface belongs
// to the render-pass framework and is out of scope here.
type CmdList interface {
	CopyBufferRegion(c CopyBufferRegion)
	CopyBufferToTexture(c CopyBufferToTexture)
	CopyTextureToBuffer(c CopyTextureToBuffer)

	WriteTimestamp(pool QueryPool, index int, stage Stage)
	BeginQuery(pool QueryPool, index int)
	EndQuery(pool QueryPool, index int)
	ResolveQueryData(pool QueryPool, first, count int, dst Buffer, dstOff int64)
}

// TimestampCalibration reports a queue's timestamp tick frequency.
type TimestampCalibration struct {
	TicksPerSecond uint64
}

// Device creates GPU resources. It mirrors driver.GPU's New* surface,
// narrowed to what the upload/query subsystems need; pipeline,
// render-pass, and descriptor creation belong to the render-pass
// framework and are out of scope.
type Device interface {
	// NewBuffer creates a buffer of the given capacity. visible
	// requests a host-visible (mappable) allocation; uploads and
	// readbacks both require visible buffers.
	NewBuffer(ctx context.Context, size int64, visible bool, usage Usage) (Buffer, error)

	// CreateQueryPool creates a pool of GPU queries per desc.
	CreateQueryPool(desc QueryPoolDesc) (QueryPool, error)

	// TimestampCalibration returns the tick frequency for the given
	// queue, sampled once at initialization.
	TimestampCalibration(queue QueueKind) (TimestampCalibration, error)
}

// Handle identifies a resource inside a ResourceRegistry: an index
// plus a generation and epoch used to detect stale references across
// resource rebuilds.
type Handle struct {
	Idx        uint32
	Generation uint32
	Epoch      uint32
}

// ResourceRegistry resolves a Handle to a live resource (a Buffer or
// a Texture, depending on what the handle was registered against).
// Registry implementations, descriptor heaps, and the render-pass
// framework are external collaborators consumed only through this
// interface.
type ResourceRegistry interface {
	Resolve(h Handle) (any, error)
}
