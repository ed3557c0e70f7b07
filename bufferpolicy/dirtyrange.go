// Package bufferpolicy implements the Buffer Upload Policy: the
// per-buffer batching state machine (Immediate / Coalesced /
// CoalescedRetained) that stages writes, merges dirty ranges, and
// flushes them through the upload package's Recorder/Service. It is
// grounded on gviegas/scene's engine/staging.go dirty-tracking idiom
// (a growable scratch array plus deferred flush), generalized to the
// three-tag policy this runtime's buffer owners require, and on the
// original DefaultUploadService's per-buffer StageWrite/FlushToUploadService
// split.
package bufferpolicy

import (
	"sort"

	"github.com/panthuncia/openrendergraph/upload"
)

// DirtyRange is a half-open byte range `[Begin, End)` staged against
// a policy's scratch or shadow array. Seq orders ranges by staging
// time so merges can resolve "newest provenance wins" even though
// merging itself sorts by Begin.
type DirtyRange struct {
	Begin, End int64
	Seq        int64
	Provenance *upload.Provenance
}

// mergeDirtyRanges sorts ranges by Begin and merges any that touch or
// overlap (`curr.Begin <= tail.End`): the result is sorted, pairwise
// disjoint, and minimal. When two ranges merge, the surviving
// Provenance is whichever input range has the higher Seq, so the
// chronologically newest write's provenance always wins regardless of
// spatial sort order.
func mergeDirtyRanges(ranges []DirtyRange) []DirtyRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]DirtyRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

	merged := make([]DirtyRange, 0, len(sorted))
	merged = append(merged, sorted[0])
	for _, r := range sorted[1:] {
		tail := &merged[len(merged)-1]
		if r.Begin <= tail.End {
			if r.End > tail.End {
				tail.End = r.End
			}
			if r.Seq > tail.Seq {
				tail.Seq = r.Seq
				tail.Provenance = r.Provenance
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
