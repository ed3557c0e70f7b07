package querystats

import (
	"math"

	"github.com/panthuncia/openrendergraph/rhi"
)

// emaAlpha is the fixed smoothing factor for every exponential
// moving average this package maintains.
const emaAlpha = 0.1

// neverSeen is the sentinel last-seen frame serial for a pass that
// has never had a query resolved, matching the "include never-seen passes" convention of
// VisiblePassIndices.
const neverSeen = ^uint64(0)

// PassStats is one pass's running timing and mesh-pipeline averages.
type PassStats struct {
	EMATimeMs           float64
	EMAMeshInvocations  float64
	EMAMeshPrimitives   float64
	LastSeenFrameSerial uint64
}

// MemoryBudgetStats mirrors the allocator-sampled budget snapshot
// taken once per BeginFrame.
type MemoryBudgetStats struct {
	UsageBytes        uint64
	BudgetBytes       uint64
	SampleFrameSerial uint64
	Valid             bool
}

// MemoryBudgetProvider samples the current memory budget; installed
// by the embedding application. A nil provider means no memory
// budget stats are available.
type MemoryBudgetProvider func() (usageBytes, budgetBytes uint64, ok bool)

// Aggregator is the Stats Aggregator: it reads resolved query data
// from a HeapManager one frame after it is recorded, maintains an EMA
// per pass, and exposes staleness-filtered visibility.
type Aggregator struct {
	heap *HeapManager

	frameSerial uint64
	stats       []PassStats

	memoryBudgetProvider MemoryBudgetProvider
	memoryBudget         MemoryBudgetStats
}

// NewAggregator creates an Aggregator reading from heap.
func NewAggregator(heap *HeapManager) *Aggregator {
	return &Aggregator{heap: heap}
}

// SetMemoryBudgetProvider installs the allocator-service callback
// BeginFrame samples from.
func (a *Aggregator) SetMemoryBudgetProvider(p MemoryBudgetProvider) {
	a.memoryBudgetProvider = p
}

func (a *Aggregator) ensureCapacity() {
	for len(a.stats) < a.heap.PassCount() {
		a.stats = append(a.stats, PassStats{LastSeenFrameSerial: neverSeen})
	}
}

// BeginFrame increments the frame serial and samples the memory
// budget provider if one is installed; no other state changes.
func (a *Aggregator) BeginFrame() {
	a.frameSerial++
	if a.memoryBudgetProvider == nil {
		a.memoryBudget = MemoryBudgetStats{}
		return
	}
	usage, budget, ok := a.memoryBudgetProvider()
	a.memoryBudget = MemoryBudgetStats{
		UsageBytes: usage, BudgetBytes: budget,
		SampleFrameSerial: a.frameSerial, Valid: ok,
	}
}

// FrameSerial returns the current frame serial.
func (a *Aggregator) FrameSerial() uint64 { return a.frameSerial }

// MemoryBudget returns the most recently sampled memory budget.
func (a *Aggregator) MemoryBudget() MemoryBudgetStats { return a.memoryBudget }

func ema(prev, sample float64) float64 { return prev*(1-emaAlpha) + sample*emaAlpha }

// OnFrameComplete extracts every sample resolved for frame on queue
// and folds it into each touched pass's EMA, recording last_seen at
// the frame serial frameSerial (the serial sampled at the BeginFrame
// that scheduled this frame's queries, not necessarily the current
// one).
func (a *Aggregator) OnFrameComplete(frame int, queue rhi.QueueKind, frameSerial uint64) error {
	samples, err := a.heap.ExtractSamples(frame, queue)
	if err != nil {
		return err
	}
	a.ensureCapacity()

	ticksPerSecond := a.heap.Calibration(queue).TicksPerSecond
	for _, s := range samples {
		if s.PassIndex >= len(a.stats) {
			continue
		}
		ps := &a.stats[s.PassIndex]
		ms := 0.0
		if ticksPerSecond > 0 {
			ms = float64(s.ElapsedTicks) * 1000 / float64(ticksPerSecond)
		}
		ps.EMATimeMs = ema(ps.EMATimeMs, ms)
		if s.HasStats {
			ps.EMAMeshInvocations = ema(ps.EMAMeshInvocations, float64(s.MeshInvocations))
			ps.EMAMeshPrimitives = ema(ps.EMAMeshPrimitives, float64(s.MeshPrimitives))
		}
		ps.LastSeenFrameSerial = frameSerial
	}
	return nil
}

// Stats returns pass index's current statistics.
func (a *Aggregator) Stats(passIndex int) PassStats {
	a.ensureCapacity()
	return a.stats[passIndex]
}

// VisiblePassIndices returns the ordered indices of passes whose
// last-seen frame serial differs from the current frame serial by at
// most maxStale. Passing math.MaxUint64 additionally includes passes
// that have never been seen.
func (a *Aggregator) VisiblePassIndices(maxStale uint64) []int {
	a.ensureCapacity()
	var visible []int
	for i, ps := range a.stats {
		if ps.LastSeenFrameSerial == neverSeen {
			if maxStale == math.MaxUint64 {
				visible = append(visible, i)
			}
			continue
		}
		if a.frameSerial-ps.LastSeenFrameSerial <= maxStale {
			visible = append(visible, i)
		}
	}
	return visible
}

// ClearAll resets all EMA state, the frame serial, and the memory
// budget snapshot.
func (a *Aggregator) ClearAll() {
	a.stats = nil
	a.frameSerial = 0
	a.memoryBudget = MemoryBudgetStats{}
}
