package querystats

import (
	"context"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/rhi"
)

// Service is the Statistics Service: the façade exposing pass
// registration, query recording, and read-only views over the Query
// Heap Manager and Stats Aggregator.
type Service struct {
	heap *HeapManager
	agg  *Aggregator

	// recordedSerial[frame] is the frame serial that was live at the
	// BeginFrame preceding the most recent BeginQuery call for that
	// frame slot. OnFrameComplete tags resolved samples with this
	// value rather than the serial live at resolve time, since a
	// frame slot's queries may not resolve until several BeginFrames
	// later under pipelining.
	recordedSerial map[int]uint64
}

// NewService creates a Service backed by a HeapManager for device,
// sized for framesInFlight frame slots.
func NewService(device rhi.Device, framesInFlight int, collectStats bool, log *zap.Logger) *Service {
	heap := NewHeapManager(device, framesInFlight, collectStats, log)
	return &Service{heap: heap, agg: NewAggregator(heap), recordedSerial: make(map[int]uint64)}
}

// RegisterPass registers (or looks up) a pass by name.
func (s *Service) RegisterPass(name string, isGeometry bool) int {
	return s.heap.RegisterPass(name, isGeometry)
}

// RegisterQueue adds kind to the set of tracked queues.
func (s *Service) RegisterQueue(kind rhi.QueueKind) error {
	return s.heap.RegisterQueue(kind)
}

// SetupQueryHeap (re)sizes the query pools and readback buffers for
// the currently registered passes.
func (s *Service) SetupQueryHeap(ctx context.Context) error {
	return s.heap.SetupQueryHeap(ctx)
}

// BeginQuery, EndQuery, and ResolveQueries forward to the heap
// manager. BeginQuery additionally stamps frame's recorded-at serial
// from the most recent BeginFrame, consumed later by OnFrameComplete.
func (s *Service) BeginQuery(pass, frame int, queue rhi.QueueKind, cmd rhi.CmdList) {
	s.recordedSerial[frame] = s.agg.FrameSerial()
	s.heap.BeginQuery(pass, frame, queue, cmd)
}

func (s *Service) EndQuery(pass, frame int, queue rhi.QueueKind, cmd rhi.CmdList) {
	s.heap.EndQuery(pass, frame, queue, cmd)
}

func (s *Service) ResolveQueries(frame int, queue rhi.QueueKind, cmd rhi.CmdList) {
	s.heap.ResolveQueries(frame, queue, cmd)
}

// BeginFrame forwards to the Stats Aggregator.
func (s *Service) BeginFrame() { s.agg.BeginFrame() }

// OnFrameComplete extracts and aggregates frame's resolved queries on
// queue, tagging them with the frame serial that was live when
// frame's queries were recorded, not the (possibly much later)
// current serial.
func (s *Service) OnFrameComplete(frame int, queue rhi.QueueKind) error {
	return s.agg.OnFrameComplete(frame, queue, s.recordedSerial[frame])
}

// SetMemoryBudgetProvider installs the allocator-service callback
// BeginFrame samples from.
func (s *Service) SetMemoryBudgetProvider(p MemoryBudgetProvider) {
	s.agg.SetMemoryBudgetProvider(p)
}

// PassName, PassIsGeometry, and PassCount are read-only views over
// the registered pass table.
func (s *Service) PassName(index int) string       { return s.heap.PassName(index) }
func (s *Service) PassIsGeometry(index int) bool    { return s.heap.PassIsGeometry(index) }
func (s *Service) PassCount() int                   { return s.heap.PassCount() }

// PassStats returns pass index's EMA timing and mesh-pipeline view.
func (s *Service) PassStats(index int) PassStats { return s.agg.Stats(index) }

// MemoryBudget returns the most recently sampled memory budget.
func (s *Service) MemoryBudget() MemoryBudgetStats { return s.agg.MemoryBudget() }

// VisiblePassIndices returns passes last seen within maxStale frames
// of the current frame serial.
func (s *Service) VisiblePassIndices(maxStale uint64) []int {
	return s.agg.VisiblePassIndices(maxStale)
}

// ClearAll resets the heap manager, the aggregator, and all stamped
// recorded-at serials.
func (s *Service) ClearAll() {
	s.heap.ClearAll()
	s.agg.ClearAll()
	s.recordedSerial = make(map[int]uint64)
}
