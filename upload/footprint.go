package upload

import (
	"fmt"

	"github.com/panthuncia/openrendergraph/rhi"
)

// footprintAlign is the alignment (in bytes) applied to each
// subresource's offset within a packed texture staging layout.
const footprintAlign = 512

// rowPitchAlign is the alignment applied to a single row's pitch
// inside the staging buffer.
const rowPitchAlign = 256

// SourceSubresource describes one subresource as supplied by the
// caller of UploadTextureSubresources: a data pointer plus its source
// row/slice pitch.
type SourceSubresource struct {
	Data           []byte
	SourceRowPitch  int
	SourceSlicePitch int
}

// PlacedFootprint is one subresource's layout inside a packed staging
// buffer.
type PlacedFootprint struct {
	Offset     int64
	RowPitch   int
	Width      int // in pixels
	Height     int // in rows/block-rows
	Depth      int
	Mip        int
	ArraySlice int
	ZSlice     int
}

// FootprintPlan is the Texture Footprint Planner's output: a packed
// list of subresource footprints plus the total byte size of the
// staging allocation they require.
type FootprintPlan struct {
	Footprints []PlacedFootprint
	TotalBytes int64
}

// PlanTextureFootprints translates (format, extents, mip/array
// counts) into a packed staging layout. Footprints are ordered first
// by array slice then by mip, deterministically; every consumer
// (recorder, round-trip tests, the readback capture pass) reads
// through this function, so no other ordering is ever observed.
//
// Grounded on rhi::helpers::PlanTextureUploadSubresources (see
// original_source UploadManager.cpp) and on gviegas/scene's
// engine/texture.go mip/layer iteration idiom.
func PlanTextureFootprints(format rhi.PixelFormat, width, height, depthOrLayers, mipLevels, arraySize int) (FootprintPlan, error) {
	bytesPerBlock, blockW, blockH, err := rhi.BlockInfo(format)
	if err != nil {
		return FootprintPlan{}, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}
	if mipLevels < 1 {
		mipLevels = 1
	}
	if arraySize < 1 {
		arraySize = 1
	}

	var plan FootprintPlan
	var cursor int64

	for slice := 0; slice < arraySize; slice++ {
		for mip := 0; mip < mipLevels; mip++ {
			mw := maxi(1, width>>mip)
			mh := maxi(1, height>>mip)
			md := maxi(1, depthOrLayers>>mip)

			blocksWide := (mw + blockW - 1) / blockW
			blocksHigh := (mh + blockH - 1) / blockH
			rowBytes := blocksWide * bytesPerBlock
			rowPitch := alignUpInt(rowBytes, rowPitchAlign)

			offset := alignUp(cursor, footprintAlign)
			plan.Footprints = append(plan.Footprints, PlacedFootprint{
				Offset:     offset,
				RowPitch:   rowPitch,
				Width:      mw,
				Height:     blocksHigh,
				Depth:      md,
				Mip:        mip,
				ArraySlice: slice,
				ZSlice:     0,
			})
			cursor = offset + int64(rowPitch)*int64(blocksHigh)*int64(md)
		}
	}
	plan.TotalBytes = cursor
	return plan, nil
}

// WriteTextureFootprints copies each source subresource's rows into
// staging at the location the plan assigns it, honoring staging row
// pitch vs source row pitch: for each row, min(source row
// pitch, footprint row pitch) bytes are copied.
//
// srcs must be in the same order PlanTextureFootprints produced
// plan.Footprints (array-slice-major, mip-minor); it is the caller's
// responsibility to pair them up, matching
// rhi::helpers::WriteTextureUploadSubresources's contract.
func WriteTextureFootprints(plan FootprintPlan, srcs []SourceSubresource, staging []byte, base int64) {
	for i, fp := range plan.Footprints {
		if i >= len(srcs) {
			break
		}
		src := srcs[i]
		rowBytes := minInt(src.SourceRowPitch, fp.RowPitch)
		for d := 0; d < fp.Depth; d++ {
			for row := 0; row < fp.Height; row++ {
				srcOff := d*src.SourceSlicePitch + row*src.SourceRowPitch
				if srcOff+rowBytes > len(src.Data) {
					continue
				}
				dstOff := base + fp.Offset + int64(d*fp.RowPitch*fp.Height) + int64(row*fp.RowPitch)
				copy(staging[dstOff:dstOff+int64(rowBytes)], src.Data[srcOff:srcOff+rowBytes])
			}
		}
	}
}

func alignUpInt(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
