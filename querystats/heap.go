// Package querystats implements the Query Heap Manager and Stats
// Aggregator: GPU timestamp and mesh-pipeline-statistics query pools
// fanned out across device queues, resolved one frame after they are
// recorded. See DESIGN.md for how this contract surface was derived.
// It reuses internal/bitm's SetRanges to collapse a frame's recorded
// query slots into the fewest resolve calls.
package querystats

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/internal/bitm"
	"github.com/panthuncia/openrendergraph/rhi"
)

const unnamedPrefix = "UnnamedPass#"

// passEntry is one registered pass's static metadata.
type passEntry struct {
	name       string
	isGeometry bool
}

// queueState is the per-queue recording and readback state.
type queueState struct {
	calibration rhi.TimestampCalibration

	// recorded[frame] tracks, in local per-frame slot space
	// [0, 2*passCapacity), which timestamp slots have been written
	// this frame so ResolveQueries can collapse them into maximal
	// contiguous runs.
	recorded map[int]*bitm.Bitm[uint64]
	pending  map[int][]bitm.Range // global ts-slot ranges awaiting OnFrameComplete

	readbackTS    rhi.Buffer
	readbackStats rhi.Buffer
}

// Sample is one resolved pass's timing (and, for geometry passes,
// pipeline-statistics) data extracted by ExtractSamples.
type Sample struct {
	PassIndex       int
	ElapsedTicks    int64
	HasStats        bool
	MeshInvocations uint64
	MeshPrimitives  uint64
}

// HeapManager is the Query Heap Manager: it owns the pass registry,
// the timestamp and pipeline-statistics query pools, and per-queue
// readback buffers.
type HeapManager struct {
	device rhi.Device
	log    *zap.Logger

	passes         []passEntry
	nameIndex      map[string]int
	unnamedCounter int

	framesInFlight  int
	collectStats    bool
	passCapacity    int
	statsMask       []rhi.PipelineStatField

	tsPool    rhi.QueryPool
	statsPool rhi.QueryPool

	queues map[rhi.QueueKind]*queueState
}

// NewHeapManager creates a HeapManager. collectStats gates whether
// geometry passes collect pipeline-statistics queries at all.
func NewHeapManager(device rhi.Device, framesInFlight int, collectStats bool, log *zap.Logger) *HeapManager {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HeapManager{
		device:         device,
		log:            log,
		nameIndex:      make(map[string]int),
		framesInFlight: framesInFlight,
		collectStats:   collectStats,
		statsMask:      []rhi.PipelineStatField{rhi.StatMeshInvocations, rhi.StatMeshPrimitives},
		queues:         make(map[rhi.QueueKind]*queueState),
	}
}

// RegisterPass registers (or looks up) a pass by name, returning its
// stable index. An empty name is replaced by a uniquely numbered
// UnnamedPass#<counter> so it is never deduplicated against another
// call. is_geometry is sticky: re-registering an existing name only
// ever promotes it to true, never demotes it.
func (h *HeapManager) RegisterPass(name string, isGeometry bool) int {
	if name == "" {
		name = fmt.Sprintf("%s%d", unnamedPrefix, h.unnamedCounter)
		h.unnamedCounter++
		h.passes = append(h.passes, passEntry{name: name, isGeometry: isGeometry})
		idx := len(h.passes) - 1
		h.nameIndex[name] = idx
		return idx
	}
	if idx, ok := h.nameIndex[name]; ok {
		if isGeometry {
			h.passes[idx].isGeometry = true
		}
		return idx
	}
	h.passes = append(h.passes, passEntry{name: name, isGeometry: isGeometry})
	idx := len(h.passes) - 1
	h.nameIndex[name] = idx
	return idx
}

// PassCount returns the number of registered passes.
func (h *HeapManager) PassCount() int { return len(h.passes) }

// PassName returns the name passed to (or generated for) RegisterPass.
func (h *HeapManager) PassName(index int) string { return h.passes[index].name }

// PassIsGeometry reports whether index collects pipeline statistics.
func (h *HeapManager) PassIsGeometry(index int) bool { return h.passes[index].isGeometry }

// RegisterQueue adds kind to the set of queues the heap manager
// tracks, sampling its timestamp tick frequency once.
func (h *HeapManager) RegisterQueue(kind rhi.QueueKind) error {
	if _, ok := h.queues[kind]; ok {
		return nil
	}
	calib, err := h.device.TimestampCalibration(kind)
	if err != nil {
		return err
	}
	h.queues[kind] = &queueState{
		calibration: calib,
		recorded:    make(map[int]*bitm.Bitm[uint64]),
		pending:     make(map[int][]bitm.Range),
	}
	return nil
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// SetupQueryHeap (re)sizes the pools and readback buffers to the
// current pass count. Capacity only ever grows: reconfiguring with
// fewer passes leaves excess slots allocated but unused rather than
// shrinking the pools.
func (h *HeapManager) SetupQueryHeap(ctx context.Context) error {
	needed := nextPow2(len(h.passes))
	if needed < h.passCapacity {
		needed = h.passCapacity
	}
	if needed > h.passCapacity {
		h.log.Warn("query heap pass capacity grown",
			zap.Int("from", h.passCapacity),
			zap.Int("to", needed),
			zap.Int("registered_passes", len(h.passes)))
	}
	h.passCapacity = needed

	tsCount := 2 * h.passCapacity * h.framesInFlight
	tsPool, err := h.device.CreateQueryPool(rhi.QueryPoolDesc{Type: rhi.QueryTimestamp, Count: tsCount})
	if err != nil {
		return err
	}
	h.tsPool = tsPool

	if h.collectStats {
		statsCount := h.passCapacity * h.framesInFlight
		statsPool, err := h.device.CreateQueryPool(rhi.QueryPoolDesc{
			Type: rhi.QueryPipelineStatistics, Count: statsCount, StatsMask: h.statsMask,
		})
		if err != nil {
			return err
		}
		h.statsPool = statsPool
	}

	for _, q := range h.queues {
		tsBytes := int64(tsCount * h.tsPool.ElementSize())
		readbackTS, err := h.device.NewBuffer(ctx, tsBytes, true, rhi.UCopyDst)
		if err != nil {
			return err
		}
		q.readbackTS = readbackTS

		if h.collectStats {
			statsBytes := int64(h.passCapacity * h.framesInFlight * h.statsPool.ElementSize())
			readbackStats, err := h.device.NewBuffer(ctx, statsBytes, true, rhi.UCopyDst)
			if err != nil {
				return err
			}
			q.readbackStats = readbackStats
		}

		q.recorded = make(map[int]*bitm.Bitm[uint64])
		q.pending = make(map[int][]bitm.Range)
	}
	return nil
}

func (h *HeapManager) frameBitmap(q *queueState, frame int) *bitm.Bitm[uint64] {
	b, ok := q.recorded[frame]
	if !ok {
		b = &bitm.Bitm[uint64]{}
		b.Grow((2*h.passCapacity + 63) / 64)
		q.recorded[frame] = b
	}
	return b
}

// BeginQuery writes a top-of-pipe timestamp for (pass, frame) on
// queue, and, when pipeline statistics are enabled and the pass is
// flagged geometry, begins its pipeline-statistics query.
func (h *HeapManager) BeginQuery(pass, frame int, queue rhi.QueueKind, cmd rhi.CmdList) {
	q := h.queues[queue]
	beginSlot := 2 * (frame*h.passCapacity + pass)
	cmd.WriteTimestamp(h.tsPool, beginSlot, rhi.StageTop)
	if h.collectStats && h.passes[pass].isGeometry {
		cmd.BeginQuery(h.statsPool, frame*h.passCapacity+pass)
	}
	h.frameBitmap(q, frame).Set(2 * pass)
}

// EndQuery writes a bottom-of-pipe timestamp for (pass, frame) on
// queue, symmetric to BeginQuery.
func (h *HeapManager) EndQuery(pass, frame int, queue rhi.QueueKind, cmd rhi.CmdList) {
	q := h.queues[queue]
	endSlot := 2*(frame*h.passCapacity+pass) + 1
	cmd.WriteTimestamp(h.tsPool, endSlot, rhi.StageBottom)
	if h.collectStats && h.passes[pass].isGeometry {
		cmd.EndQuery(h.statsPool, frame*h.passCapacity+pass)
	}
	h.frameBitmap(q, frame).Set(2*pass + 1)
}

// ResolveQueries collapses frame's recorded slots on queue into
// maximal contiguous ranges and emits one resolve_query_data per
// range, plus one additional resolve per geometry pass touched by
// that range.
func (h *HeapManager) ResolveQueries(frame int, queue rhi.QueueKind, cmd rhi.CmdList) {
	q := h.queues[queue]
	b := h.frameBitmap(q, frame)
	ranges := b.SetRanges()

	for _, r := range ranges {
		globalFirst := frame*2*h.passCapacity + r.First
		cmd.ResolveQueryData(h.tsPool, globalFirst, r.Count, q.readbackTS, int64(globalFirst)*int64(h.tsPool.ElementSize()))

		if h.collectStats {
			for local := r.First; local < r.First+r.Count; local += 2 {
				pass := local / 2
				if pass >= len(h.passes) || !h.passes[pass].isGeometry {
					continue
				}
				statSlot := frame*h.passCapacity + pass
				cmd.ResolveQueryData(h.statsPool, statSlot, 1, q.readbackStats, int64(statSlot)*int64(h.statsPool.ElementSize()))
			}
		}

		q.pending[frame] = append(q.pending[frame], bitm.Range{First: globalFirst, Count: r.Count})
	}
	b.Clear()
}

// ExtractSamples maps frame's readback buffers on queue and decodes
// every pending resolved range into a Sample, clearing the pending
// list. Malformed slot pairs (end tick before begin tick) are
// silently skipped.
func (h *HeapManager) ExtractSamples(frame int, queue rhi.QueueKind) ([]Sample, error) {
	q := h.queues[queue]
	ranges := q.pending[frame]
	delete(q.pending, frame)
	if len(ranges) == 0 {
		return nil, nil
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].First < ranges[j].First })

	elemSize := h.tsPool.ElementSize()
	var samples []Sample
	for _, r := range ranges {
		window, err := q.readbackTS.Map(int64(r.First*elemSize), int64(r.Count*elemSize))
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < r.Count; i += 2 {
			t0 := readU64(window[i*elemSize:])
			t1 := readU64(window[(i+1)*elemSize:])
			if t1 < t0 {
				h.log.Warn("malformed query pair skipped",
					zap.Int("frame", frame),
					zap.Int("global_slot", r.First+i),
					zap.Uint64("begin_tick", t0),
					zap.Uint64("end_tick", t1))
				continue
			}
			globalSlot := r.First + i
			pass := (globalSlot / 2) % h.passCapacity
			s := Sample{PassIndex: pass, ElapsedTicks: int64(t1 - t0)}

			if h.collectStats && pass < len(h.passes) && h.passes[pass].isGeometry {
				statSlot := frame*h.passCapacity + pass
				statElemSize := h.statsPool.ElementSize()
				statWindow, err := q.readbackStats.Map(int64(statSlot*statElemSize), int64(statElemSize))
				if err == nil {
					if off, ok := h.statsPool.StatOffset(rhi.StatMeshInvocations); ok {
						s.MeshInvocations = readU64(statWindow[off:])
					}
					if off, ok := h.statsPool.StatOffset(rhi.StatMeshPrimitives); ok {
						s.MeshPrimitives = readU64(statWindow[off:])
					}
					s.HasStats = true
					q.readbackStats.Unmap()
				}
			}
			samples = append(samples, s)
		}
		q.readbackTS.Unmap()
	}
	return samples, nil
}

// Calibration returns the timestamp tick frequency sampled for queue
// at RegisterQueue time.
func (h *HeapManager) Calibration(queue rhi.QueueKind) rhi.TimestampCalibration {
	return h.queues[queue].calibration
}

// ClearAll drops pools, readback buffers, per-queue recording state,
// and the pass table.
func (h *HeapManager) ClearAll() {
	if h.tsPool != nil {
		h.tsPool.Destroy()
		h.tsPool = nil
	}
	if h.statsPool != nil {
		h.statsPool.Destroy()
		h.statsPool = nil
	}
	for _, q := range h.queues {
		if q.readbackTS != nil {
			q.readbackTS.Destroy()
		}
		if q.readbackStats != nil {
			q.readbackStats.Destroy()
		}
	}
	h.queues = make(map[rhi.QueueKind]*queueState)
	h.passes = nil
	h.nameIndex = make(map[string]int)
	h.unnamedCounter = 0
	h.passCapacity = 0
}

func readU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
