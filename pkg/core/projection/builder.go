package projection

import (
	"context"
	"fmt"
	"time"

	"valuation_engine/pkg/core/ratio"
	"valuation_engine/pkg/models"
)

// =============================================================================
// PROJECTION SET
// =============================================================================

// YearForecast is one projected year: the driving assumptions plus the
// derived cash-flow line.
type YearForecast struct {
	Year int `json:"year"` // 1-based offset from the base period

	RevenueGrowth float64 `json:"revenue_growth"`
	EBITDAMargin  float64 `json:"ebitda_margin"`
	CapexPercent  float64 `json:"capex_percent"`

	Revenue              float64 `json:"revenue"`
	EBITDA               float64 `json:"ebitda"`
	OperatingProfit      float64 `json:"operating_profit"`
	Taxes                float64 `json:"taxes"`
	Capex                float64 `json:"capex"`
	WorkingCapitalChange float64 `json:"working_capital_change"`
	FreeCashFlow         float64 `json:"free_cash_flow"`
}

// ProjectionSet is an ordered sequence of exactly Horizon yearly forecasts,
// derived once per valuation run and immutable after creation.
type ProjectionSet struct {
	CompanyID   string    `json:"company_id"`
	Provider    string    `json:"provider"` // Which AssumptionProvider produced it
	GeneratedAt time.Time `json:"generated_at"`

	BaseRevenue float64        `json:"base_revenue"`
	TaxRate     float64        `json:"tax_rate"`
	Years       []YearForecast `json:"years"`
}

// FreeCashFlows returns the per-year FCF series in order.
func (ps *ProjectionSet) FreeCashFlows() []float64 {
	out := make([]float64, len(ps.Years))
	for i, y := range ps.Years {
		out[i] = y.FreeCashFlow
	}
	return out
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder turns statements + ratios + an AssumptionProvider into a
// ProjectionSet. Free cash flow per year:
//
//	FCF = EBITDA - taxes - capex - deltaWorkingCapital
//	taxes = operatingProfit * effectiveTaxRate
//
// Operating profit is EBITDA less D&A held at the trailing D&A intensity;
// working capital scales with the revenue delta at the trailing intensity.
type Builder struct {
	Horizon int
	TaxRate float64
}

// NewBuilder returns a builder with the default 5-year horizon.
func NewBuilder(taxRate float64) *Builder {
	return &Builder{Horizon: DefaultHorizon, TaxRate: taxRate}
}

// Build produces the ProjectionSet. Provider errors propagate unchanged so
// the caller can fall back to the rule-based default.
func (b *Builder) Build(ctx context.Context, statements *models.FinancialStatementSet, ratios *ratio.RatioSet, provider AssumptionProvider) (*ProjectionSet, error) {
	if provider == nil {
		return nil, fmt.Errorf("projection: nil assumption provider")
	}
	horizon := b.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	pl := &statements.ProfitAndLoss
	if pl.Revenue == 0 {
		return nil, fmt.Errorf("projection: base revenue is zero for %s", statements.CompanyID)
	}

	req := Request{
		Horizon:      horizon,
		Industry:     "",
		CurrentCapex: statements.CashFlow.CapitalExpenditure / pl.Revenue,
	}
	if g := ratios.Get(ratio.RevenueGrowth); !g.Undefined {
		req.CurrentGrowth = g.Value / 100
		req.GrowthObserved = true
	}
	if m := ratios.Get(ratio.EBITDAMargin); !m.Undefined {
		req.CurrentMargin = m.Value / 100
	}

	set, err := provider.Assumptions(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ValidateAssumptions(set, horizon); err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider.Name(), err)
	}

	// Trailing intensities used to articulate each projected year.
	daIntensity := ratio.EstimationMarginFallback
	if pl.HasDepreciation {
		daIntensity = pl.DepreciationAmortization / pl.Revenue
	}
	wcIntensity := (statements.BalanceSheet.TotalCurrentAssets - statements.BalanceSheet.TotalCurrentLiabilities) / pl.Revenue

	ps := &ProjectionSet{
		CompanyID:   statements.CompanyID,
		Provider:    provider.Name(),
		GeneratedAt: statements.ExtractedAt,
		BaseRevenue: pl.Revenue,
		TaxRate:     b.TaxRate,
		Years:       make([]YearForecast, horizon),
	}

	prevRevenue := pl.Revenue
	for i, a := range set {
		rev := prevRevenue * (1 + a.RevenueGrowth)
		ebitda := rev * a.EBITDAMargin
		opProfit := ebitda - daIntensity*rev
		taxes := opProfit * b.TaxRate
		capex := rev * a.CapexPercent
		deltaWC := wcIntensity * (rev - prevRevenue)

		ps.Years[i] = YearForecast{
			Year:                 i + 1,
			RevenueGrowth:        a.RevenueGrowth,
			EBITDAMargin:         a.EBITDAMargin,
			CapexPercent:         a.CapexPercent,
			Revenue:              rev,
			EBITDA:               ebitda,
			OperatingProfit:      opProfit,
			Taxes:                taxes,
			Capex:                capex,
			WorkingCapitalChange: deltaWC,
			FreeCashFlow:         ebitda - taxes - capex - deltaWC,
		}
		prevRevenue = rev
	}

	return ps, nil
}

// BuildWithIndustry is Build with the industry key threaded through to the
// provider (the rule-based default anchors on industry medians).
func (b *Builder) BuildWithIndustry(ctx context.Context, statements *models.FinancialStatementSet, ratios *ratio.RatioSet, provider AssumptionProvider, industry string) (*ProjectionSet, error) {
	wrapped := &industryProvider{inner: provider, industry: industry}
	return b.Build(ctx, statements, ratios, wrapped)
}

type industryProvider struct {
	inner    AssumptionProvider
	industry string
}

func (p *industryProvider) Name() string { return p.inner.Name() }

func (p *industryProvider) Assumptions(ctx context.Context, req Request) ([]YearlyAssumptions, error) {
	req.Industry = p.industry
	return p.inner.Assumptions(ctx, req)
}
