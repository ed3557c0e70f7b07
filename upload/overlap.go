package upload

import "context"

// rangesOverlap reports whether half-open ranges [a0,a1) and [b0,b1)
// intersect.
func rangesOverlap(a0, a1, b0, b1 int64) bool { return a0 < b1 && b0 < a1 }

// rangeContains reports whether [outer0,outer1) fully contains
// [inner0,inner1).
func rangeContains(outer0, outer1, inner0, inner1 int64) bool {
	return outer0 <= inner0 && inner1 <= outer1
}

// ResolveOverlap applies last-write-wins semantics to newUpdate
// against the active BufferUpdates already queued for the same
// destination in updates. It is grounded on
// UploadManager::ApplyLastWriteWins: scanned in reverse order so the
// most recently appended (and therefore newest) record is considered
// first.
//
// This is not on the Upload Recorder's hot path (UploadData uses the
// cheaper contiguous-append coalescing there); it is available for
// callers that need byte-exact last-write-wins merging. The buffer
// policy's flush path does not call it: it merges its own dirty ranges
// before uploading.
func ResolveOverlap(ctx context.Context, pg *Pager, updates []*BufferUpdate, newUpdate *BufferUpdate) error {
	if !newUpdate.Active {
		return nil
	}
	new0 := newUpdate.DestOff
	new1 := newUpdate.DestOff + newUpdate.Size

	for i := len(updates) - 1; i >= 0; i-- {
		u := updates[i]
		if !u.Active || u == newUpdate {
			continue
		}
		if !u.Destination.Equal(newUpdate.Destination) {
			continue
		}
		u0, u1 := u.DestOff, u.DestOff+u.Size
		if !rangesOverlap(u0, u1, new0, new1) {
			continue
		}

		switch {
		case rangeContains(u0, u1, new0, new1):
			// Old fully contains new: patch old's staging bytes at the
			// overlapping offset with new's bytes, then drop new.
			patchOff := u.UploadOff + (new0 - u0)
			oldBytes, err := u.Page.Buf.Map(patchOff, newUpdate.Size)
			if err != nil {
				return err
			}
			newBytes, err := newUpdate.Page.Buf.Map(newUpdate.UploadOff, newUpdate.Size)
			if err != nil {
				u.Page.Buf.Unmap()
				return err
			}
			copy(oldBytes, newBytes)
			newUpdate.Page.Buf.Unmap()
			u.Page.Buf.Unmap()
			u.Provenance = newUpdate.Provenance
			newUpdate.Active = false
			return nil

		case rangeContains(new0, new1, u0, u1):
			// New fully contains old: drop old, keep scanning (the
			// union may still absorb further older records).
			u.Active = false
			continue

		default:
			// Partial overlap: allocate a union region, copy old then
			// new (overwriting the intersection), retire old, and
			// replace newUpdate's fields with the union so the scan
			// keeps going against the expanded range.
			union0 := min64(u0, new0)
			union1 := max64(u1, new1)
			unionSize := union1 - union0

			unionPage, unionOff, err := pg.Allocate(ctx, unionSize, 16)
			if err != nil {
				continue
			}
			unionBytes, err := unionPage.Buf.Map(unionOff, unionSize)
			if err != nil {
				continue
			}
			if oldBytes, err := u.Page.Buf.Map(u.UploadOff, u.Size); err == nil {
				copy(unionBytes[u0-union0:], oldBytes)
				u.Page.Buf.Unmap()
			}
			if newBytes, err := newUpdate.Page.Buf.Map(newUpdate.UploadOff, newUpdate.Size); err == nil {
				copy(unionBytes[new0-union0:], newBytes)
				newUpdate.Page.Buf.Unmap()
			}
			unionPage.Buf.Unmap()

			u.Active = false
			newUpdate.Page = unionPage
			newUpdate.UploadOff = unionOff
			newUpdate.DestOff = union0
			newUpdate.Size = unionSize
			new0, new1 = union0, union1
		}
	}
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
