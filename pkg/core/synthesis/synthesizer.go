// Package synthesis reconciles the independent method valuations into one
// weighted estimate with an explicit confidence score and value range.
//
// Core Philosophy: Decoupled from the methods.
//   - Methods produce immutable ValuationResults (or failure markers).
//   - Synthesis (this package) is a pure reduction over whatever subset of
//     methods survived; it never re-runs a method.
package synthesis

import (
	"fmt"
	"time"

	"valuation_engine/pkg/core/valuation"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config tunes the reconciliation. Zero values fall back to the documented
// defaults.
type Config struct {
	// Weights per method identifier; unlisted methods weigh 1.
	Weights map[string]float64

	// DisagreementThreshold: methods "disagree" when
	// (max EV - min EV) / weighted EV exceeds it. Default 0.5.
	DisagreementThreshold float64

	// DisagreementPenalty multiplies overall confidence when the threshold
	// is exceeded. Default 0.75.
	DisagreementPenalty float64

	// MethodLossPenalty multiplies overall confidence once per failed
	// method, reflecting reduced method coverage. Default 0.9.
	MethodLossPenalty float64
}

func (c Config) withDefaults() Config {
	if c.DisagreementThreshold == 0 {
		c.DisagreementThreshold = 0.5
	}
	if c.DisagreementPenalty == 0 {
		c.DisagreementPenalty = 0.75
	}
	if c.MethodLossPenalty == 0 {
		c.MethodLossPenalty = 0.9
	}
	return c
}

func (c Config) weight(method string) float64 {
	if w, ok := c.Weights[method]; ok {
		return w
	}
	return 1
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// MethodFailure marks a method that could not produce a valuation. Consumed
// here so a single failing method never aborts the run.
type MethodFailure struct {
	Method string `json:"method"`
	Reason string `json:"reason"`
}

// ValuationSynthesis is the reconciled output of one run. Immutable once
// produced; its lifecycle ends when a reporting/export collaborator consumes
// it.
type ValuationSynthesis struct {
	CompanyID   string    `json:"company_id"`
	GeneratedAt time.Time `json:"generated_at"`

	WeightedEnterpriseValue float64 `json:"weighted_enterprise_value"`
	RangeLow                float64 `json:"range_low"`
	RangeHigh               float64 `json:"range_high"`
	RecommendedValue        float64 `json:"recommended_value"`
	OverallConfidence       float64 `json:"overall_confidence"`

	Methods  []*valuation.ValuationResult `json:"methods"`
	Failures []MethodFailure              `json:"failures,omitempty"`
}

// =============================================================================
// SYNTHESIZER
// =============================================================================

// Synthesizer reduces method results into a ValuationSynthesis.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer applies defaults to the config.
func NewSynthesizer(cfg Config) *Synthesizer {
	return &Synthesizer{cfg: cfg.withDefaults()}
}

// Synthesize reconciles the non-failed method results:
//
//	weightedEV = sum(w_i * conf_i * EV_i) / sum(w_i * conf_i)
//
// Range is [min, max] of the method EVs; the recommended value is the
// weighted EV. Overall confidence is the confidence-weighted average of
// method confidences, penalized when methods disagree beyond the threshold
// and once per failed method.
//
// At least one result is required; the caller decides what an empty set
// means for the run (AllMethodsFailedError at the pipeline level).
func (s *Synthesizer) Synthesize(companyID string, results []*valuation.ValuationResult, failures []MethodFailure) (*ValuationSynthesis, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("synthesis: no method results to reconcile")
	}

	var sumWeighted, sumWeights, sumConfWeighted float64
	low, high := results[0].EnterpriseValue, results[0].EnterpriseValue
	for _, r := range results {
		w := s.cfg.weight(r.Method) * r.Confidence
		sumWeighted += w * r.EnterpriseValue
		sumConfWeighted += w * r.Confidence
		sumWeights += w

		if r.EnterpriseValue < low {
			low = r.EnterpriseValue
		}
		if r.EnterpriseValue > high {
			high = r.EnterpriseValue
		}
	}
	if sumWeights == 0 {
		return nil, fmt.Errorf("synthesis: all method confidences are zero")
	}

	weightedEV := sumWeighted / sumWeights
	confidence := sumConfWeighted / sumWeights

	if weightedEV != 0 && (high-low)/weightedEV > s.cfg.DisagreementThreshold {
		confidence *= s.cfg.DisagreementPenalty
	}
	for range failures {
		confidence *= s.cfg.MethodLossPenalty
	}

	return &ValuationSynthesis{
		CompanyID:               companyID,
		GeneratedAt:             time.Now().UTC(),
		WeightedEnterpriseValue: weightedEV,
		RangeLow:                low,
		RangeHigh:               high,
		RecommendedValue:        weightedEV,
		OverallConfidence:       confidence,
		Methods:                 results,
		Failures:                failures,
	}, nil
}
