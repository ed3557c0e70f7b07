package querystats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEMAFormula(t *testing.T) {
	value := 0.0
	for i := 0; i < 1000; i++ {
		sample := float64(i % 17)
		want := value*(1-emaAlpha) + sample*emaAlpha
		value = ema(value, sample)
		require.InDelta(t, want, value, 1e-9)
	}
}

func TestVisiblePassIndicesStalenessWindow(t *testing.T) {
	a := &Aggregator{stats: []PassStats{
		{LastSeenFrameSerial: 10},
		{LastSeenFrameSerial: 7},
		{LastSeenFrameSerial: neverSeen},
	}}
	a.frameSerial = 10

	require.Equal(t, []int{0}, a.VisiblePassIndices(0))
	require.Equal(t, []int{0, 1}, a.VisiblePassIndices(3))
	require.Equal(t, []int{0, 1, 2}, a.VisiblePassIndices(math.MaxUint64))
}

func TestVisiblePassIndicesExcludesNeverSeenWithFiniteStale(t *testing.T) {
	a := &Aggregator{stats: []PassStats{{LastSeenFrameSerial: neverSeen}}}
	a.frameSerial = 5
	require.Empty(t, a.VisiblePassIndices(4))
}

func TestBeginFrameIncrementsSerialAndSamplesBudget(t *testing.T) {
	a := NewAggregator(NewHeapManager(nil, 1, false, nil))
	a.SetMemoryBudgetProvider(func() (uint64, uint64, bool) { return 100, 200, true })
	a.BeginFrame()
	require.Equal(t, uint64(1), a.FrameSerial())
	budget := a.MemoryBudget()
	require.Equal(t, uint64(100), budget.UsageBytes)
	require.Equal(t, uint64(200), budget.BudgetBytes)
	require.True(t, budget.Valid)
	require.Equal(t, uint64(1), budget.SampleFrameSerial)
}

func TestBeginFrameWithoutProviderYieldsInvalidBudget(t *testing.T) {
	a := NewAggregator(NewHeapManager(nil, 1, false, nil))
	a.BeginFrame()
	require.False(t, a.MemoryBudget().Valid)
}

func TestClearAllResetsEverything(t *testing.T) {
	a := NewAggregator(NewHeapManager(nil, 1, false, nil))
	a.BeginFrame()
	a.stats = []PassStats{{EMATimeMs: 5}}
	a.ClearAll()
	require.Equal(t, uint64(0), a.FrameSerial())
	require.Empty(t, a.stats)
}
