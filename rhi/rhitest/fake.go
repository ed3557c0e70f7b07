// Package rhitest provides an in-memory fake of the rhi package's
// interfaces for use in this repository's own tests. There is no real
// backend in scope here (the device implementation is an external
// collaborator), so unlike gviegas/scene's driver/vk package, a
// genuine Vulkan backend, this fake is the only implementation
// shipped; it exists purely to make the upload/bufferpolicy/querystats
// packages testable without a GPU.
package rhitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/panthuncia/openrendergraph/rhi"
)

// Buffer is an in-memory rhi.Buffer backed by a plain byte slice.
type Buffer struct {
	mu      sync.Mutex
	bytes   []byte
	visible bool
	mapped  bool
	name    string
	destroyed bool
}

func (b *Buffer) Cap() int64      { return int64(len(b.bytes)) }
func (b *Buffer) Visible() bool   { return b.visible }
func (b *Buffer) String() string  { return b.name }

func (b *Buffer) Map(offset, size int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, fmt.Errorf("rhitest: map of destroyed buffer %s", b.name)
	}
	if !b.visible {
		return nil, rhi.ErrNoHostMemory
	}
	if offset < 0 || size < 0 || offset+size > int64(len(b.bytes)) {
		return nil, fmt.Errorf("rhitest: map out of bounds on %s: off=%d size=%d cap=%d", b.name, offset, size, len(b.bytes))
	}
	b.mapped = true
	return b.bytes[offset : offset+size], nil
}

func (b *Buffer) Unmap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapped = false
}

func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.bytes = nil
}

// Bytes returns the buffer's full underlying storage, bypassing
// Map/Unmap; tests use this to assert on destination contents after a
// flush without needing a command-list executor.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Texture is an in-memory rhi.Texture; it stores nothing (CPU code
// never reads/writes a Texture directly), but records destruction.
type Texture struct {
	destroyed bool
}

func (t *Texture) Destroy() { t.destroyed = true }

// QueryPool is an in-memory rhi.QueryPool. Timestamp pools publish
// 8-byte elements; pipeline-statistics pools publish one 8-byte field
// per requested PipelineStatField, in request order.
type QueryPool struct {
	typ       rhi.QueryType
	count     int
	statOff   map[rhi.PipelineStatField]int
	elemSize  int
	destroyed bool
}

func NewQueryPool(desc rhi.QueryPoolDesc) *QueryPool {
	p := &QueryPool{typ: desc.Type, count: desc.Count}
	if desc.Type == rhi.QueryTimestamp {
		p.elemSize = 8
		return p
	}
	p.statOff = make(map[rhi.PipelineStatField]int, len(desc.StatsMask))
	off := 0
	for _, f := range desc.StatsMask {
		p.statOff[f] = off
		off += 8
	}
	p.elemSize = off
	return p
}

func (p *QueryPool) Destroy()          { p.destroyed = true }
func (p *QueryPool) ElementSize() int  { return p.elemSize }

func (p *QueryPool) StatOffset(field rhi.PipelineStatField) (int, bool) {
	off, ok := p.statOff[field]
	return off, ok
}

// recordedTimestamp is one WriteTimestamp call kept so Device can
// drive OnFrameComplete-style resolution in tests without a real GPU
// executing anything.
type recordedTimestamp struct {
	pool  *QueryPool
	index int
	ticks uint64
}

type recordedStat struct {
	pool  *QueryPool
	index int
	vals  map[rhi.PipelineStatField]uint64
}

// CmdList is an in-memory rhi.CmdList. It performs copies eagerly
// (there is no asynchronous GPU to wait for) and lets the test driver
// seed deterministic timestamp/stat values through Device's clock.
type CmdList struct {
	dev *Device
}

func (c *CmdList) CopyBufferRegion(cp rhi.CopyBufferRegion) {
	dst, ok1 := cp.Dst.(*Buffer)
	src, ok2 := cp.Src.(*Buffer)
	if !ok1 || !ok2 {
		panic("rhitest: CopyBufferRegion with foreign buffer type")
	}
	copy(dst.bytes[cp.DstOff:cp.DstOff+cp.Size], src.bytes[cp.SrcOff:cp.SrcOff+cp.Size])
}

func (c *CmdList) CopyBufferToTexture(cp rhi.CopyBufferToTexture) {
	c.dev.recordTextureWrite(cp)
}

func (c *CmdList) CopyTextureToBuffer(cp rhi.CopyTextureToBuffer) {
	c.dev.recordTextureRead(cp)
}

func (c *CmdList) WriteTimestamp(pool rhi.QueryPool, index int, stage rhi.Stage) {
	p := pool.(*QueryPool)
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.clock++
	c.dev.timestamps = append(c.dev.timestamps, recordedTimestamp{pool: p, index: index, ticks: c.dev.clock})
}

func (c *CmdList) BeginQuery(pool rhi.QueryPool, index int) {
	p := pool.(*QueryPool)
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.statBegins[statKey{p, index}] = c.dev.nextStatSample()
}

func (c *CmdList) EndQuery(pool rhi.QueryPool, index int) {
	// The fake samples its pipeline-stat values at BeginQuery time;
	// EndQuery is a structural bracket only, since there are no real
	// GPU counters here to accumulate between the two calls.
}

func (c *CmdList) ResolveQueryData(pool rhi.QueryPool, first, count int, dst rhi.Buffer, dstOff int64) {
	p := pool.(*QueryPool)
	dstBuf := dst.(*Buffer)
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	switch p.typ {
	case rhi.QueryTimestamp:
		for i := 0; i < count; i++ {
			idx := first + i
			var ticks uint64
			for _, rt := range c.dev.timestamps {
				if rt.pool == p && rt.index == idx {
					ticks = rt.ticks
				}
			}
			off := dstOff + int64(i)*int64(p.elemSize)
			putU64(dstBuf.bytes[off:off+8], ticks)
		}
	case rhi.QueryPipelineStatistics:
		for i := 0; i < count; i++ {
			idx := first + i
			vals := c.dev.statBegins[statKey{p, idx}]
			for field, off := range p.statOff {
				o := dstOff + int64(i)*int64(p.elemSize) + int64(off)
				putU64(dstBuf.bytes[o:o+8], vals[field])
			}
		}
	}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

type statKey struct {
	pool  *QueryPool
	index int
}

// Device is an in-memory rhi.Device. TicksPerSecond and
// StatSample let tests control exactly what a resolved query reads
// back.
type Device struct {
	mu         sync.Mutex
	clock      uint64
	timestamps []recordedTimestamp
	statBegins map[statKey]map[rhi.PipelineStatField]uint64

	TicksPerSecond uint64
	// StatSample is called once per BeginQuery to produce the
	// pipeline-stat values that will be resolved for that query
	// index; defaults to all zeros when nil.
	StatSample func() map[rhi.PipelineStatField]uint64
}

func NewDevice() *Device {
	return &Device{
		TicksPerSecond: 1_000_000_000,
		statBegins:     make(map[statKey]map[rhi.PipelineStatField]uint64),
	}
}

func (d *Device) nextStatSample() map[rhi.PipelineStatField]uint64 {
	if d.StatSample != nil {
		return d.StatSample()
	}
	return map[rhi.PipelineStatField]uint64{}
}

func (d *Device) NewBuffer(ctx context.Context, size int64, visible bool, usage rhi.Usage) (rhi.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("rhitest: NewBuffer size must be positive, got %d", size)
	}
	return &Buffer{bytes: make([]byte, size), visible: visible}, nil
}

func (d *Device) CreateQueryPool(desc rhi.QueryPoolDesc) (rhi.QueryPool, error) {
	return NewQueryPool(desc), nil
}

func (d *Device) TimestampCalibration(queue rhi.QueueKind) (rhi.TimestampCalibration, error) {
	return rhi.TimestampCalibration{TicksPerSecond: d.TicksPerSecond}, nil
}

// NewCmdList returns a CmdList bound to d's recording state.
func (d *Device) NewCmdList() *CmdList { return &CmdList{dev: d} }

// textureWrite/textureRead record CopyBufferToTexture/CopyTextureToBuffer
// calls against a simple per-(texture,mip,slice) byte-store so
// round-trip tests can verify bytes survive a plan->write->read cycle
// without a real image backing store.
type subresourceKey struct {
	tex   rhi.Texture
	mip   int
	slice int
}

var texStoreMu sync.Mutex
var texStore = map[subresourceKey][]byte{}

func (d *Device) recordTextureWrite(cp rhi.CopyBufferToTexture) {
	buf := cp.Src.(*Buffer)
	n := cp.FP.RowPitch * cp.FP.Height * maxInt(cp.FP.Depth, 1)
	data := make([]byte, n)
	copy(data, buf.bytes[cp.FP.Offset:])
	texStoreMu.Lock()
	texStore[subresourceKey{cp.Dst, cp.Mip, cp.Slice}] = data
	texStoreMu.Unlock()
}

func (d *Device) recordTextureRead(cp rhi.CopyTextureToBuffer) {
	texStoreMu.Lock()
	data := texStore[subresourceKey{cp.Src, cp.Mip, cp.Slice}]
	texStoreMu.Unlock()
	dst := cp.Dst.(*Buffer)
	n := cp.FP.RowPitch * cp.FP.Height * maxInt(cp.FP.Depth, 1)
	if n > len(data) {
		n = len(data)
	}
	copy(dst.bytes[cp.FP.Offset:cp.FP.Offset+int64(n)], data[:n])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NewBufferFilled is a test helper creating a host-visible Buffer
// pre-populated with data.
func NewBufferFilled(data []byte) *Buffer {
	b := &Buffer{bytes: make([]byte, len(data)), visible: true}
	copy(b.bytes, data)
	return b
}

// Registry is an in-memory rhi.ResourceRegistry mapping Handles to
// resources registered by tests.
type Registry struct {
	mu        sync.Mutex
	resources map[rhi.Handle]any
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[rhi.Handle]any)}
}

// Register binds h to resource, overwriting any previous binding.
func (r *Registry) Register(h rhi.Handle, resource any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[h] = resource
}

func (r *Registry) Resolve(h rhi.Handle) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resource, ok := r.resources[h]
	if !ok {
		return nil, fmt.Errorf("rhitest: no resource registered for handle %+v", h)
	}
	return resource, nil
}
