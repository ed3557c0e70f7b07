package upload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panthuncia/openrendergraph/rhi"
)

func TestPlanTextureFootprintsUncompressedSingleMip(t *testing.T) {
	plan, err := PlanTextureFootprints(rhi.FormatRGBA8, 16, 8, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, plan.Footprints, 1)
	fp := plan.Footprints[0]
	require.Equal(t, 16, fp.Width)
	require.Equal(t, 8, fp.Height)
	require.Equal(t, alignUpInt(16*4, rowPitchAlign), fp.RowPitch)
	require.Equal(t, int64(0), fp.Offset)
	require.True(t, plan.TotalBytes > 0)
}

func TestPlanTextureFootprintsMipsShrinkAndFloorAtOne(t *testing.T) {
	plan, err := PlanTextureFootprints(rhi.FormatRGBA8, 4, 4, 1, 4, 1)
	require.NoError(t, err)
	require.Len(t, plan.Footprints, 4)
	for i, fp := range plan.Footprints {
		require.Equal(t, i, fp.Mip)
		require.True(t, fp.Width >= 1 && fp.Height >= 1)
	}
	// Mip 3 of a 4x4 texture floors to 1x1.
	require.Equal(t, 1, plan.Footprints[3].Width)
	require.Equal(t, 1, plan.Footprints[3].Height)
}

func TestPlanTextureFootprintsArraySliceMajor(t *testing.T) {
	plan, err := PlanTextureFootprints(rhi.FormatRGBA8, 4, 4, 2, 2, 2)
	require.NoError(t, err)
	require.Len(t, plan.Footprints, 4)
	// Order is slice-major, mip-minor: slice0/mip0, slice0/mip1, slice1/mip0, slice1/mip1.
	require.Equal(t, 0, plan.Footprints[0].ArraySlice)
	require.Equal(t, 0, plan.Footprints[0].Mip)
	require.Equal(t, 0, plan.Footprints[1].ArraySlice)
	require.Equal(t, 1, plan.Footprints[1].Mip)
	require.Equal(t, 1, plan.Footprints[2].ArraySlice)
	require.Equal(t, 0, plan.Footprints[2].Mip)
}

func TestPlanTextureFootprintsOffsetsAligned(t *testing.T) {
	plan, err := PlanTextureFootprints(rhi.FormatRGBA8, 16, 16, 1, 3, 1)
	require.NoError(t, err)
	for _, fp := range plan.Footprints {
		require.Equal(t, int64(0), fp.Offset%footprintAlign)
		require.Equal(t, 0, fp.RowPitch%rowPitchAlign)
	}
}

func TestPlanTextureFootprintsCompressedBlockFormat(t *testing.T) {
	plan, err := PlanTextureFootprints(rhi.FormatBC1, 16, 16, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, plan.Footprints, 1)
	fp := plan.Footprints[0]
	// 16px / 4 blockW = 4 blocks wide, 8 bytes/block.
	require.Equal(t, alignUpInt(4*8, rowPitchAlign), fp.RowPitch)
}

func TestPlanTextureFootprintsUnsupportedFormat(t *testing.T) {
	_, err := PlanTextureFootprints(rhi.PixelFormat(999), 4, 4, 1, 1, 1)
	require.ErrorIs(t, err, ErrFormatUnsupported)
}

func TestWriteTextureFootprintsRespectsMinRowPitch(t *testing.T) {
	plan, err := PlanTextureFootprints(rhi.FormatR8, 4, 2, 1, 1, 1)
	require.NoError(t, err)
	fp := plan.Footprints[0]

	src := SourceSubresource{
		Data:             []byte{1, 2, 3, 4, 5, 6, 7, 8},
		SourceRowPitch:   4,
		SourceSlicePitch: 8,
	}
	staging := make([]byte, plan.TotalBytes)
	WriteTextureFootprints(plan, []SourceSubresource{src}, staging, 0)

	row0 := staging[fp.Offset : fp.Offset+4]
	require.Equal(t, []byte{1, 2, 3, 4}, row0[:4])
}
