// Package projection builds the fixed-horizon forward forecast that feeds
// the DCF. Assumptions come from a pluggable AssumptionProvider strategy;
// the rule-based default keeps the engine fully functional and testable
// without any external reasoning service attached.
package projection

import (
	"context"
	"fmt"

	"valuation_engine/pkg/core/benchmark"
	"valuation_engine/pkg/core/ratio"
)

// DefaultHorizon is the forecast length in years.
const DefaultHorizon = 5

// =============================================================================
// ASSUMPTION PROVIDER INTERFACE
// =============================================================================

// YearlyAssumptions drives one projected year. All values are decimals
// (0.05 = 5%).
type YearlyAssumptions struct {
	RevenueGrowth float64 `json:"revenue_growth"`
	EBITDAMargin  float64 `json:"ebitda_margin"`
	CapexPercent  float64 `json:"capex_percent"` // % of revenue
}

// Request gives a provider the observed starting point for its forecast.
type Request struct {
	Horizon  int
	Industry string

	// Trailing observations, decimals. GrowthObserved is false when the
	// history was too short to compute a growth rate.
	CurrentGrowth  float64
	GrowthObserved bool
	CurrentMargin  float64
	CurrentCapex   float64
}

// AssumptionProvider is an injectable, swappable forecasting strategy.
// Implementations must return exactly req.Horizon records.
type AssumptionProvider interface {
	Name() string
	Assumptions(ctx context.Context, req Request) ([]YearlyAssumptions, error)
}

// =============================================================================
// BOUNDS VALIDATION
// =============================================================================

// Acceptance bounds for externally supplied assumptions, decimals.
const (
	MinGrowth = -0.50
	MaxGrowth = 1.00
	MinMargin = -1.00
	MaxMargin = 1.00
)

// ValidateAssumptions rejects assumption sets outside the sane bounds or of
// the wrong length. Used for every externally supplied set before acceptance.
func ValidateAssumptions(set []YearlyAssumptions, horizon int) error {
	if len(set) != horizon {
		return fmt.Errorf("assumption set has %d years, want %d", len(set), horizon)
	}
	for i, a := range set {
		if a.RevenueGrowth < MinGrowth || a.RevenueGrowth > MaxGrowth {
			return fmt.Errorf("year %d: revenue growth %.4f outside [%.2f, %.2f]", i+1, a.RevenueGrowth, MinGrowth, MaxGrowth)
		}
		if a.EBITDAMargin < MinMargin || a.EBITDAMargin > MaxMargin {
			return fmt.Errorf("year %d: EBITDA margin %.4f outside [%.2f, %.2f]", i+1, a.EBITDAMargin, MinMargin, MaxMargin)
		}
		if a.CapexPercent < 0 || a.CapexPercent > 1 {
			return fmt.Errorf("year %d: capex percent %.4f outside [0, 1]", i+1, a.CapexPercent)
		}
	}
	return nil
}

// =============================================================================
// RULE-BASED DEFAULT
// =============================================================================

// RuleBasedProvider is the deterministic default strategy: year-1 growth is
// the observed trailing growth (clamped to the acceptance bounds), decayed
// linearly toward the industry-median growth over the horizon. The margin
// drifts halfway toward the industry median; capex holds at the trailing
// observed rate.
type RuleBasedProvider struct {
	Benchmarks *benchmark.Engine

	// FallbackGrowth anchors the forecast when neither a trailing growth
	// rate nor an industry median is available.
	FallbackGrowth float64
}

// NewRuleBasedProvider builds the default strategy against a benchmark engine.
func NewRuleBasedProvider(benchmarks *benchmark.Engine) *RuleBasedProvider {
	return &RuleBasedProvider{Benchmarks: benchmarks, FallbackGrowth: 0.02}
}

func (p *RuleBasedProvider) Name() string { return "rule_based_decay" }

func (p *RuleBasedProvider) Assumptions(_ context.Context, req Request) ([]YearlyAssumptions, error) {
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	// Benchmark medians are stored as percentages; assumptions are decimals.
	targetGrowth := p.FallbackGrowth
	if p.Benchmarks != nil {
		if median, ok := p.Benchmarks.Median(req.Industry, ratio.RevenueGrowth); ok {
			targetGrowth = median / 100
		}
	}

	startGrowth := targetGrowth
	if req.GrowthObserved {
		startGrowth = clamp(req.CurrentGrowth, MinGrowth, MaxGrowth)
	}

	targetMargin := req.CurrentMargin
	if p.Benchmarks != nil {
		if median, ok := p.Benchmarks.Median(req.Industry, ratio.EBITDAMargin); ok {
			// Drift halfway toward the industry median over the horizon.
			targetMargin = req.CurrentMargin + (median/100-req.CurrentMargin)/2
		}
	}

	set := make([]YearlyAssumptions, horizon)
	for i := 0; i < horizon; i++ {
		// t runs 0..1 across the horizon; year 1 keeps the observed rate,
		// the final year lands on the target.
		t := 0.0
		if horizon > 1 {
			t = float64(i) / float64(horizon-1)
		}
		set[i] = YearlyAssumptions{
			RevenueGrowth: startGrowth + (targetGrowth-startGrowth)*t,
			EBITDAMargin:  req.CurrentMargin + (targetMargin-req.CurrentMargin)*t,
			CapexPercent:  req.CurrentCapex,
		}
	}
	return set, nil
}

// =============================================================================
// EXTERNAL (STATIC) PROVIDER
// =============================================================================

// StaticProvider wraps an externally supplied assumption set (e.g. from an
// advisory service). The set is validated against the acceptance bounds
// before use.
type StaticProvider struct {
	SetName string
	Set     []YearlyAssumptions
}

func (p *StaticProvider) Name() string {
	if p.SetName != "" {
		return p.SetName
	}
	return "external_static"
}

func (p *StaticProvider) Assumptions(_ context.Context, req Request) ([]YearlyAssumptions, error) {
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if err := ValidateAssumptions(p.Set, horizon); err != nil {
		return nil, fmt.Errorf("external assumption set rejected: %w", err)
	}
	out := make([]YearlyAssumptions, horizon)
	copy(out, p.Set)
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
