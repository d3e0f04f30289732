package benchmark

import (
	"errors"
	"math"
	"testing"
)

func fixtureTable() *Table {
	return &Table{
		Industries: map[string]map[string]Quartiles{
			"manufacturing": {
				"current_ratio":  {P25: 1.0, P50: 1.5, P75: 2.5},
				"revenue_growth": {P25: 2.0, P50: 5.0, P75: 10.0},
			},
		},
	}
}

func TestPercentileBreakpoints(t *testing.T) {
	e := NewEngine(fixtureTable())

	cases := []struct {
		value float64
		want  float64
	}{
		{1.0, 25},    // exactly p25
		{1.5, 50},    // exactly p50
		{2.5, 75},    // exactly p75
		{1.25, 37.5}, // midway p25..p50
		{2.0, 62.5},  // midway p50..p75
		{0.75, 12.5}, // p25 - half the lower segment span
		{0.5, 0},     // p25 - one segment span -> 0
		{-1.0, 0},    // far below clamps to 0
		{3.5, 100},   // p75 + one segment span -> 100
		{3.0, 87.5},  // p75 + half span
		{10.0, 100},  // far above caps at 100
	}
	for _, c := range cases {
		got, err := e.Percentile("manufacturing", "current_ratio", c.value)
		if err != nil {
			t.Fatalf("unexpected error for value %f: %v", c.value, err)
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("value %f: expected percentile %f, got %f", c.value, c.want, got)
		}
	}
}

func TestPercentileMonotonic(t *testing.T) {
	e := NewEngine(fixtureTable())

	prev := -1.0
	for v := -2.0; v <= 12.0; v += 0.05 {
		pct, err := e.Percentile("manufacturing", "revenue_growth", v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pct < prev-1e-12 {
			t.Fatalf("percentile decreased at value %f: %f < %f", v, pct, prev)
		}
		prev = pct
	}
}

// Growth and margin benchmarks for loss-making industries carry negative
// breakpoints; the mapping must stay monotone across the sign change.
func TestPercentileMonotonicWithNegativeBreakpoints(t *testing.T) {
	e := NewEngine(&Table{
		Industries: map[string]map[string]Quartiles{
			"distressed": {
				"revenue_growth": {P25: -2, P50: 1, P75: 4},
			},
		},
	})

	prev := -1.0
	for v := -8.0; v <= 8.0; v += 0.05 {
		pct, err := e.Percentile("distressed", "revenue_growth", v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pct < prev-1e-12 {
			t.Fatalf("percentile decreased at value %f: %f < %f", v, pct, prev)
		}
		prev = pct
	}

	cases := []struct {
		value float64
		want  float64
	}{
		{-6.0, 0},    // far below: clamped, never above the p25 score
		{-5.0, 0},    // p25 - one segment span
		{-3.5, 12.5}, // p25 - half span
		{-2.0, 25},   // exactly p25
		{1.0, 50},    // exactly p50
		{4.0, 75},    // exactly p75
	}
	for _, c := range cases {
		got, err := e.Percentile("distressed", "revenue_growth", c.value)
		if err != nil {
			t.Fatalf("unexpected error for value %f: %v", c.value, err)
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("value %f: expected percentile %f, got %f", c.value, c.want, got)
		}
	}
}

func TestMissingKeysReturnUnavailable(t *testing.T) {
	e := NewEngine(fixtureTable())

	_, err := e.Percentile("hospitality", "current_ratio", 1.0)
	var unavailable *BenchmarkUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected BenchmarkUnavailableError for unknown industry, got %v", err)
	}

	_, err = e.Percentile("manufacturing", "quick_ratio", 1.0)
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected BenchmarkUnavailableError for unknown ratio, got %v", err)
	}
}

func TestParseTableHJSON(t *testing.T) {
	src := []byte(`{
  // UK lower-middle-market reference set
  industries: {
    saas: {
      current_ratio: { p25: 1.1, p50: 1.6, p75: 2.4 }
      revenue_growth: { p25: 5, p50: 12, p75: 25 }
    }
  }
}`)
	table, err := ParseTable(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	q, ok := table.Lookup("saas", "revenue_growth")
	if !ok {
		t.Fatalf("expected saas/revenue_growth in table")
	}
	if q.P50 != 12 {
		t.Errorf("expected p50=12, got %f", q.P50)
	}
}

func TestParseTableRejectsDescendingBreakpoints(t *testing.T) {
	src := []byte(`{ industries: { saas: { current_ratio: { p25: 2.0, p50: 1.5, p75: 1.0 } } } }`)
	if _, err := ParseTable(src); err == nil {
		t.Fatalf("expected error for descending breakpoints")
	}
}
