// Package benchmark maps ratio values to percentiles against a reference
// industry distribution. Tables are injected read-only configuration, never
// global mutable state, so tests can substitute fixtures.
package benchmark

import (
	"fmt"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Quartiles holds the 25th/50th/75th percentile breakpoints for one ratio in
// one industry. Breakpoints must be ascending.
type Quartiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
}

// Table is the full benchmark reference: industry key -> ratio name ->
// quartile breakpoints. Read-only to the engine.
type Table struct {
	Industries map[string]map[string]Quartiles `json:"industries"`
}

// Lookup returns the quartiles for an industry/ratio pair.
func (t *Table) Lookup(industry, ratioName string) (Quartiles, bool) {
	if t == nil {
		return Quartiles{}, false
	}
	ratios, ok := t.Industries[industry]
	if !ok {
		return Quartiles{}, false
	}
	q, ok := ratios[ratioName]
	return q, ok
}

// BenchmarkUnavailableError reports a missing industry or ratio key.
// Non-fatal: the percentile is simply omitted for that ratio.
type BenchmarkUnavailableError struct {
	Industry string
	Ratio    string
}

func (e *BenchmarkUnavailableError) Error() string {
	return fmt.Sprintf("no benchmark for ratio %q in industry %q", e.Ratio, e.Industry)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine resolves percentiles against an injected table.
type Engine struct {
	table *Table
}

// NewEngine wraps a reference table.
func NewEngine(table *Table) *Engine {
	return &Engine{table: table}
}

// Percentile maps a ratio value to a 0-100 percentile via piecewise-linear
// interpolation across the quartile breakpoints:
//   - below p25: linear extrapolation of the p25..p50 segment, clamped at 0
//   - p25..p50 and p50..p75: linear between the breakpoints
//   - above p75: linear extrapolation of the p50..p75 segment, capped at 100
//
// A missing industry or ratio returns a BenchmarkUnavailableError; callers
// must tolerate it, not fail the run.
func (e *Engine) Percentile(industry, ratioName string, value float64) (float64, error) {
	q, ok := e.table.Lookup(industry, ratioName)
	if !ok {
		return 0, &BenchmarkUnavailableError{Industry: industry, Ratio: ratioName}
	}
	return interpolate(value, q), nil
}

// Median returns the industry median (p50) for a ratio, used by the
// rule-based assumption provider as the long-run anchor.
func (e *Engine) Median(industry, ratioName string) (float64, bool) {
	q, ok := e.table.Lookup(industry, ratioName)
	if !ok {
		return 0, false
	}
	return q.P50, true
}

func interpolate(value float64, q Quartiles) float64 {
	switch {
	case value <= q.P25:
		// Extrapolate the lower segment's slope below p25. Slope-based, not
		// ratio-based, so the mapping stays monotone whatever the sign of
		// the breakpoints.
		span := q.P50 - q.P25
		if span == 0 {
			if value < q.P25 {
				return 0
			}
			return 25
		}
		pct := 25 - 25*(q.P25-value)/span
		if pct < 0 {
			return 0
		}
		return pct
	case value <= q.P50:
		return 25 + 25*segment(value, q.P25, q.P50)
	case value <= q.P75:
		return 50 + 25*segment(value, q.P50, q.P75)
	default:
		// Extrapolate the upper segment's slope past p75.
		span := q.P75 - q.P50
		if span == 0 {
			return 100
		}
		pct := 75 + 25*(value-q.P75)/span
		if pct > 100 {
			return 100
		}
		return pct
	}
}

// segment returns the 0..1 position of value between lo and hi.
func segment(value, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (value - lo) / (hi - lo)
}
