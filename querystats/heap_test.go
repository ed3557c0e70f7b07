package querystats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panthuncia/openrendergraph/rhi"
	"github.com/panthuncia/openrendergraph/rhi/rhitest"
)

func TestRegisterPassDedupsByName(t *testing.T) {
	h := NewHeapManager(rhitest.NewDevice(), 2, true, nil)
	a := h.RegisterPass("shadow", false)
	b := h.RegisterPass("shadow", true)
	require.Equal(t, a, b)
	require.True(t, h.PassIsGeometry(a))
}

func TestRegisterPassEmptyNameNeverDedups(t *testing.T) {
	h := NewHeapManager(rhitest.NewDevice(), 2, true, nil)
	a := h.RegisterPass("", false)
	b := h.RegisterPass("", false)
	require.NotEqual(t, a, b)
	require.Equal(t, "UnnamedPass#0", h.PassName(a))
	require.Equal(t, "UnnamedPass#1", h.PassName(b))
}

func TestRegisterPassGeometryIsSticky(t *testing.T) {
	h := NewHeapManager(rhitest.NewDevice(), 2, true, nil)
	idx := h.RegisterPass("gbuffer", true)
	h.RegisterPass("gbuffer", false)
	require.True(t, h.PassIsGeometry(idx))
}

func TestSetupQueryHeapNeverShrinksCapacity(t *testing.T) {
	dev := rhitest.NewDevice()
	h := NewHeapManager(dev, 2, true, nil)
	for i := 0; i < 5; i++ {
		h.RegisterPass("", false)
	}
	require.NoError(t, h.RegisterQueue(rhi.QueueGraphics))
	require.NoError(t, h.SetupQueryHeap(context.Background()))
	require.Equal(t, 8, h.passCapacity)

	h.ClearAll()
	h2 := NewHeapManager(dev, 2, true, nil)
	h2.passCapacity = 8
	h2.RegisterPass("", false)
	require.NoError(t, h2.RegisterQueue(rhi.QueueGraphics))
	require.NoError(t, h2.SetupQueryHeap(context.Background()))
	require.Equal(t, 8, h2.passCapacity)
}

func TestBeginEndResolveRoundTrip(t *testing.T) {
	dev := rhitest.NewDevice()
	h := NewHeapManager(dev, 2, true, nil)
	pass := h.RegisterPass("main", true)
	require.NoError(t, h.RegisterQueue(rhi.QueueGraphics))
	require.NoError(t, h.SetupQueryHeap(context.Background()))

	cmd := dev.NewCmdList()
	h.BeginQuery(pass, 0, rhi.QueueGraphics, cmd)
	h.EndQuery(pass, 0, rhi.QueueGraphics, cmd)
	h.ResolveQueries(0, rhi.QueueGraphics, cmd)

	samples, err := h.ExtractSamples(0, rhi.QueueGraphics)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, pass, samples[0].PassIndex)
	require.True(t, samples[0].ElapsedTicks >= 0)
	require.True(t, samples[0].HasStats)
}

func TestResolveQueriesCollapsesContiguousPasses(t *testing.T) {
	dev := rhitest.NewDevice()
	h := NewHeapManager(dev, 1, false, nil)
	p0 := h.RegisterPass("p0", false)
	p1 := h.RegisterPass("p1", false)
	require.NoError(t, h.RegisterQueue(rhi.QueueGraphics))
	require.NoError(t, h.SetupQueryHeap(context.Background()))

	cmd := dev.NewCmdList()
	h.BeginQuery(p0, 0, rhi.QueueGraphics, cmd)
	h.EndQuery(p0, 0, rhi.QueueGraphics, cmd)
	h.BeginQuery(p1, 0, rhi.QueueGraphics, cmd)
	h.EndQuery(p1, 0, rhi.QueueGraphics, cmd)
	h.ResolveQueries(0, rhi.QueueGraphics, cmd)

	samples, err := h.ExtractSamples(0, rhi.QueueGraphics)
	require.NoError(t, err)
	require.Len(t, samples, 2)
}

func TestExtractSamplesIsScopedToFrame(t *testing.T) {
	dev := rhitest.NewDevice()
	h := NewHeapManager(dev, 2, false, nil)
	pass := h.RegisterPass("p", false)
	require.NoError(t, h.RegisterQueue(rhi.QueueGraphics))
	require.NoError(t, h.SetupQueryHeap(context.Background()))

	cmd := dev.NewCmdList()
	h.BeginQuery(pass, 0, rhi.QueueGraphics, cmd)
	h.EndQuery(pass, 0, rhi.QueueGraphics, cmd)
	h.ResolveQueries(0, rhi.QueueGraphics, cmd)

	samples, err := h.ExtractSamples(1, rhi.QueueGraphics)
	require.NoError(t, err)
	require.Empty(t, samples)

	samples, err = h.ExtractSamples(0, rhi.QueueGraphics)
	require.NoError(t, err)
	require.Len(t, samples, 1)
}
