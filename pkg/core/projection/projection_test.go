package projection

import (
	"context"
	"math"
	"testing"
	"time"

	"valuation_engine/pkg/core/benchmark"
	"valuation_engine/pkg/core/ratio"
	"valuation_engine/pkg/models"
)

func testStatements() *models.FinancialStatementSet {
	return &models.FinancialStatementSet{
		CompanyID: "acme",
		Currency:  "GBP",
		PeriodEnd: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		ProfitAndLoss: models.ProfitAndLoss{
			Revenue:                  1000,
			OperatingProfit:          150,
			DepreciationAmortization: 50,
			HasDepreciation:          true,
			NetProfit:                96,
		},
		BalanceSheet: models.BalanceSheet{
			TotalCurrentAssets:      500,
			TotalCurrentLiabilities: 250,
			TotalAssets:             1200,
			TotalLiabilities:        700,
			TotalEquity:             500,
		},
		CashFlow: models.CashFlowStatement{
			OperatingCashFlow:  180,
			CapitalExpenditure: 60,
		},
		DataQuality: 1.0,
	}
}

func flatAssumptions(n int, growth, margin, capex float64) []YearlyAssumptions {
	set := make([]YearlyAssumptions, n)
	for i := range set {
		set[i] = YearlyAssumptions{RevenueGrowth: growth, EBITDAMargin: margin, CapexPercent: capex}
	}
	return set
}

func TestBuilderFreeCashFlow(t *testing.T) {
	s := testStatements()
	rs := ratio.NewCalculator(0.20).Compute(s)
	b := NewBuilder(0.20)

	ps, err := b.Build(context.Background(), s, rs, &StaticProvider{Set: flatAssumptions(5, 0.05, 0.20, 0.06)})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(ps.Years) != 5 {
		t.Fatalf("expected 5 years, got %d", len(ps.Years))
	}

	// Year 1, hand computed: revenue 1050, EBITDA 210, D&A intensity 0.05 so
	// operating profit 157.5, taxes 31.5, capex 63, WC intensity 0.25 so
	// deltaWC 12.5. FCF = 210 - 31.5 - 63 - 12.5 = 103.
	y1 := ps.Years[0]
	if math.Abs(y1.Revenue-1050) > 1e-9 {
		t.Errorf("year 1 revenue: expected 1050, got %f", y1.Revenue)
	}
	if math.Abs(y1.FreeCashFlow-103) > 1e-9 {
		t.Errorf("year 1 FCF: expected 103, got %f", y1.FreeCashFlow)
	}

	// Flat assumptions compound: year 2 revenue 1102.5.
	if math.Abs(ps.Years[1].Revenue-1102.5) > 1e-9 {
		t.Errorf("year 2 revenue: expected 1102.5, got %f", ps.Years[1].Revenue)
	}
}

func TestStaticProviderBounds(t *testing.T) {
	b := NewBuilder(0.20)
	s := testStatements()
	rs := ratio.NewCalculator(0.20).Compute(s)

	cases := []struct {
		name string
		set  []YearlyAssumptions
	}{
		{"growth above cap", flatAssumptions(5, 1.5, 0.20, 0.06)},
		{"growth below floor", flatAssumptions(5, -0.6, 0.20, 0.06)},
		{"margin out of range", flatAssumptions(5, 0.05, 1.2, 0.06)},
		{"wrong length", flatAssumptions(3, 0.05, 0.20, 0.06)},
	}
	for _, c := range cases {
		if _, err := b.Build(context.Background(), s, rs, &StaticProvider{Set: c.set}); err == nil {
			t.Errorf("%s: expected rejection", c.name)
		}
	}
}

func TestRuleBasedDecayTowardIndustryMedian(t *testing.T) {
	table := &benchmark.Table{
		Industries: map[string]map[string]benchmark.Quartiles{
			"manufacturing": {
				ratio.RevenueGrowth: {P25: 1, P50: 4, P75: 8}, // percentages
			},
		},
	}
	p := NewRuleBasedProvider(benchmark.NewEngine(table))

	set, err := p.Assumptions(context.Background(), Request{
		Horizon:        5,
		Industry:       "manufacturing",
		CurrentGrowth:  0.20,
		GrowthObserved: true,
		CurrentMargin:  0.18,
		CurrentCapex:   0.05,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(set[0].RevenueGrowth-0.20) > 1e-9 {
		t.Errorf("year 1 should keep observed growth, got %f", set[0].RevenueGrowth)
	}
	if math.Abs(set[4].RevenueGrowth-0.04) > 1e-9 {
		t.Errorf("final year should land on industry median 0.04, got %f", set[4].RevenueGrowth)
	}
	for i := 1; i < len(set); i++ {
		if set[i].RevenueGrowth > set[i-1].RevenueGrowth+1e-12 {
			t.Errorf("growth must decay monotonically when above the median")
		}
	}
	for _, a := range set {
		if a.CapexPercent != 0.05 {
			t.Errorf("capex should hold at the trailing rate, got %f", a.CapexPercent)
		}
	}
}

func TestRuleBasedWithoutHistoryUsesMedian(t *testing.T) {
	table := &benchmark.Table{
		Industries: map[string]map[string]benchmark.Quartiles{
			"manufacturing": {ratio.RevenueGrowth: {P25: 1, P50: 4, P75: 8}},
		},
	}
	p := NewRuleBasedProvider(benchmark.NewEngine(table))

	set, err := p.Assumptions(context.Background(), Request{
		Horizon:       5,
		Industry:      "manufacturing",
		CurrentMargin: 0.18,
		CurrentCapex:  0.05,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, a := range set {
		if math.Abs(a.RevenueGrowth-0.04) > 1e-9 {
			t.Errorf("year %d: unobserved growth should sit at the median, got %f", i+1, a.RevenueGrowth)
		}
	}
}

// fakeLLM returns a canned, deliberately messy model response.
type fakeLLM struct{ response string }

func (f *fakeLLM) GenerateResponse(_ context.Context, _ string, _ string) (string, error) {
	return f.response, nil
}

func TestAdvisoryProviderRepairsAndValidates(t *testing.T) {
	messy := "```json\n[" +
		`{"revenue_growth": 0.08, "ebitda_margin": 0.22, "capex_percent": 0.05},` +
		`{"revenue_growth": 0.07, "ebitda_margin": 0.22, "capex_percent": 0.05},` +
		`{"revenue_growth": 0.06, "ebitda_margin": 0.21, "capex_percent": 0.05},` +
		`{"revenue_growth": 0.05, "ebitda_margin": 0.21, "capex_percent": 0.05},` +
		`{"revenue_growth": 0.04, "ebitda_margin": 0.20, "capex_percent": 0.05},` +
		"]\n```"

	p := NewAdvisoryProvider(&fakeLLM{response: messy})
	set, err := p.Assumptions(context.Background(), Request{Horizon: 5})
	if err != nil {
		t.Fatalf("expected repairable output to parse, got %v", err)
	}
	if len(set) != 5 {
		t.Fatalf("expected 5 years, got %d", len(set))
	}
	if set[0].RevenueGrowth != 0.08 {
		t.Errorf("unexpected year 1 growth %f", set[0].RevenueGrowth)
	}
}

func TestAdvisoryProviderRejectsOutOfBounds(t *testing.T) {
	p := NewAdvisoryProvider(&fakeLLM{response: `[{"revenue_growth": 3.0, "ebitda_margin": 0.2, "capex_percent": 0.05}]`})
	if _, err := p.Assumptions(context.Background(), Request{Horizon: 1}); err == nil {
		t.Fatalf("expected out-of-bounds advisory set to be rejected")
	}
}
