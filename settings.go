// Package openrendergraph implements the CPU-to-GPU upload staging
// and coalescing engine together with its companion per-pass timing
// and pipeline-statistics readback engine, consumed by a render graph
// built on top of an opaque GPU RHI (package rhi).
package openrendergraph

// Settings configures the upload, buffer-policy, and query/stats
// services, following the doc-comment-per-field, default-then-clamp
// convention of gviegas/scene's engine.Config. In the original C++
// system these fields live on OpenRenderGraphSettings and are read
// through a settings-service singleton, out of scope here; instead
// they are a plain value passed to each service's constructor.
type Settings struct {
	// NumFramesInFlight is the depth of CPU/GPU pipelining. Clamped
	// to at least 1 by Normalize.
	//
	// Default is 2.
	NumFramesInFlight int

	// CollectPipelineStatistics gates mesh-shader pipeline-statistics
	// queries for passes registered as geometry passes.
	//
	// Default is false.
	CollectPipelineStatistics bool

	// UseAsyncCompute is consumed by other render-graph subsystems;
	// this engine does not branch on it directly, but carries it so
	// callers have one Settings value to configure the whole graph.
	UseAsyncCompute bool

	// AutoAliasMode and AutoAliasPackingStrategy configure the
	// transient-resource aliasing pool owned by other subsystems.
	AutoAliasMode             AliasMode
	AutoAliasPackingStrategy  AliasPackingStrategy

	// AutoAliasPoolRetireIdleFrames is the number of idle frames
	// before an aliasing pool page is eligible for retirement.
	// Clamped to at least 1 by Normalize.
	//
	// Default is 4.
	AutoAliasPoolRetireIdleFrames int

	// AutoAliasPoolGrowthHeadroom is the multiplier applied when an
	// aliasing pool grows. Clamped to at least 1.0 by Normalize.
	//
	// Default is 1.5.
	AutoAliasPoolGrowthHeadroom float64
}

// AliasMode selects the transient-resource aliasing strategy used by
// other render-graph subsystems; this engine does not interpret it.
type AliasMode int

const (
	AliasModeDisabled AliasMode = iota
	AliasModeConservative
	AliasModeAggressive
)

// AliasPackingStrategy selects the bin-packing heuristic used by the
// aliasing pool; this engine does not interpret it.
type AliasPackingStrategy int

const (
	AliasPackFirstFit AliasPackingStrategy = iota
	AliasPackBestFit
)

// DefaultSettings returns a Settings value with every field at its
// documented default.
func DefaultSettings() Settings {
	return Settings{
		NumFramesInFlight:             2,
		AutoAliasPoolRetireIdleFrames: 4,
		AutoAliasPoolGrowthHeadroom:   1.5,
	}
}

// Normalize clamps s's fields to their documented minimums and
// returns the result. It never errors: out-of-range settings are
// silently brought into range.
func (s Settings) Normalize() Settings {
	if s.NumFramesInFlight < 1 {
		s.NumFramesInFlight = 1
	}
	if s.AutoAliasPoolRetireIdleFrames < 1 {
		s.AutoAliasPoolRetireIdleFrames = 1
	}
	if s.AutoAliasPoolGrowthHeadroom < 1.0 {
		s.AutoAliasPoolGrowthHeadroom = 1.0
	}
	return s
}
