// Package ratio computes the standard liquidity, profitability, leverage,
// efficiency and growth ratios from canonical statement snapshots.
//
// Policy: division by zero never raises. The ratio value is 0.0 and the
// ratio is marked undefined so benchmarking can skip it rather than skew a
// percentile.
package ratio

import (
	"fmt"
	"strings"
	"time"

	"valuation_engine/pkg/models"
)

// =============================================================================
// RATIO NAMES
// =============================================================================

// Canonical ratio keys, shared with the benchmark tables.
const (
	// Liquidity
	CurrentRatio     = "current_ratio"
	QuickRatio       = "quick_ratio"
	CashRatio        = "cash_ratio"
	OperatingCFRatio = "operating_cf_ratio"

	// Profitability (percentages)
	GrossMargin             = "gross_margin"
	OperatingMargin         = "operating_margin"
	NetMargin               = "net_margin"
	EBITDAMargin            = "ebitda_margin"
	ReturnOnAssets          = "return_on_assets"
	ReturnOnEquity          = "return_on_equity"
	ReturnOnInvestedCapital = "return_on_invested_capital"

	// Leverage
	DebtToEquity        = "debt_to_equity"
	DebtToAssets        = "debt_to_assets"
	InterestCoverage    = "interest_coverage"
	DebtServiceCoverage = "debt_service_coverage"
	EquityMultiplier    = "equity_multiplier"

	// Efficiency
	AssetTurnover       = "asset_turnover"
	InventoryTurnover   = "inventory_turnover"
	ReceivablesTurnover = "receivables_turnover"
	PayablesTurnover    = "payables_turnover"

	// Growth (percentages, need >= 2 periods)
	RevenueGrowth = "revenue_growth"
	ProfitGrowth  = "profit_growth"
	AssetGrowth   = "asset_growth"
)

// GrowthRatioNames lists the ratios that require at least two periods.
var GrowthRatioNames = []string{RevenueGrowth, ProfitGrowth, AssetGrowth}

// =============================================================================
// TYPES
// =============================================================================

// Ratio is a single computed ratio. Undefined means the denominator (or the
// required history) was missing; the value is 0.0 and must not be benchmarked.
type Ratio struct {
	Value     float64 `json:"value"`
	Undefined bool    `json:"undefined,omitempty"`
}

// RatioSet is derived 1:1 from a statement snapshot (plus the prior period
// for growth and average-balance ratios). It is recomputed whenever the
// source snapshot changes and never partially mutated.
type RatioSet struct {
	CompanyID string    `json:"company_id"`
	PeriodEnd time.Time `json:"period_end"`
	Periods   int       `json:"periods"` // History depth used (1 = no priors)

	Ratios map[string]Ratio `json:"ratios"`

	// EBITDA in absolute currency units. Estimated is true when the
	// depreciation line was unavailable and the fallback heuristic was used.
	EBITDA          float64 `json:"ebitda"`
	EBITDAEstimated bool    `json:"ebitda_estimated"`

	DataQuality float64 `json:"data_quality"`
}

// Get returns the named ratio, undefined when absent.
func (rs *RatioSet) Get(name string) Ratio {
	if r, ok := rs.Ratios[name]; ok {
		return r
	}
	return Ratio{Undefined: true}
}

// Defined reports whether the named ratio exists and is usable.
func (rs *RatioSet) Defined(name string) bool {
	r, ok := rs.Ratios[name]
	return ok && !r.Undefined
}

// InsufficientHistoryError reports growth ratios computed with fewer than
// two periods. Non-fatal: the ratios are marked undefined and excluded from
// benchmarking.
type InsufficientHistoryError struct {
	Ratios  []string
	Periods int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("growth ratios %s require >= 2 periods, have %d", strings.Join(e.Ratios, ", "), e.Periods)
}

// CheckHistory reports whether the growth ratios had the history they need.
// On a single period it returns an InsufficientHistoryError the caller may
// log; the ratio set itself already carries the undefined markers.
func (rs *RatioSet) CheckHistory() error {
	if rs.Periods >= 2 {
		return nil
	}
	return &InsufficientHistoryError{Ratios: GrowthRatioNames, Periods: rs.Periods}
}

// =============================================================================
// EBITDA
// =============================================================================

// EstimationMarginFallback is the heuristic share of revenue added to
// operating profit to approximate D&A when the depreciation line is missing.
// Unverified approximation carried from the modeling playbook; revisit
// against real data.
const EstimationMarginFallback = 0.03

// EBITDA returns EBITDA for a snapshot, estimating D&A when the line item is
// unavailable. The second return value is true when the estimate was used.
func EBITDA(pl *models.ProfitAndLoss) (float64, bool) {
	if pl.HasDepreciation {
		return pl.OperatingProfit + pl.DepreciationAmortization, false
	}
	return pl.OperatingProfit + EstimationMarginFallback*pl.Revenue, true
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes RatioSets. Pure and deterministic: identical inputs
// always yield an identical RatioSet.
type Calculator struct {
	// AssumedTaxRate feeds ROIC when the profile rate is not supplied.
	AssumedTaxRate float64
}

// NewCalculator returns a calculator with the given effective tax rate.
func NewCalculator(taxRate float64) *Calculator {
	return &Calculator{AssumedTaxRate: taxRate}
}

// Compute derives the full RatioSet from the current snapshot plus optional
// prior periods, most recent first. Growth ratios are undefined unless at
// least one prior period exists.
func (c *Calculator) Compute(current *models.FinancialStatementSet, priors ...*models.FinancialStatementSet) *RatioSet {
	rs := &RatioSet{
		CompanyID:   current.CompanyID,
		PeriodEnd:   current.PeriodEnd,
		Periods:     1 + len(priors),
		Ratios:      make(map[string]Ratio, 24),
		DataQuality: current.DataQuality,
	}

	pl := &current.ProfitAndLoss
	bs := &current.BalanceSheet
	cf := &current.CashFlow

	ebitda, estimated := EBITDA(pl)
	rs.EBITDA = ebitda
	rs.EBITDAEstimated = estimated

	set := func(name string, numerator, denominator float64) {
		rs.Ratios[name] = safeDiv(numerator, denominator)
	}
	setPct := func(name string, numerator, denominator float64) {
		r := safeDiv(numerator, denominator)
		r.Value *= 100
		rs.Ratios[name] = r
	}

	// Liquidity
	set(CurrentRatio, bs.TotalCurrentAssets, bs.TotalCurrentLiabilities)
	set(QuickRatio, bs.TotalCurrentAssets-bs.Inventory, bs.TotalCurrentLiabilities)
	set(CashRatio, bs.CashAndEquivalents, bs.TotalCurrentLiabilities)
	set(OperatingCFRatio, cf.OperatingCashFlow, bs.TotalCurrentLiabilities)

	// Profitability
	setPct(GrossMargin, pl.GrossProfit, pl.Revenue)
	setPct(OperatingMargin, pl.OperatingProfit, pl.Revenue)
	setPct(NetMargin, pl.NetProfit, pl.Revenue)
	setPct(EBITDAMargin, ebitda, pl.Revenue)
	setPct(ReturnOnAssets, pl.NetProfit, bs.TotalAssets)
	setPct(ReturnOnEquity, pl.NetProfit, bs.TotalEquity)
	setPct(ReturnOnInvestedCapital, pl.OperatingProfit*(1-c.AssumedTaxRate), bs.TotalAssets-bs.TotalCurrentLiabilities)

	// Leverage
	set(DebtToEquity, bs.TotalDebt(), bs.TotalEquity)
	set(DebtToAssets, bs.TotalDebt(), bs.TotalAssets)
	set(InterestCoverage, pl.OperatingProfit, pl.InterestExpense)
	set(DebtServiceCoverage, cf.OperatingCashFlow, cf.AnnualDebtService)
	set(EquityMultiplier, bs.TotalAssets, bs.TotalEquity)

	// Efficiency (average balances when a prior period exists)
	var prior *models.FinancialStatementSet
	if len(priors) > 0 {
		prior = priors[0]
	}
	set(AssetTurnover, pl.Revenue, averageBalance(bs.TotalAssets, prior, func(b *models.BalanceSheet) float64 { return b.TotalAssets }))
	set(InventoryTurnover, pl.CostOfGoodsSold, averageBalance(bs.Inventory, prior, func(b *models.BalanceSheet) float64 { return b.Inventory }))
	set(ReceivablesTurnover, pl.Revenue, averageBalance(bs.AccountsReceivable, prior, func(b *models.BalanceSheet) float64 { return b.AccountsReceivable }))
	set(PayablesTurnover, pl.CostOfGoodsSold, averageBalance(bs.AccountsPayable, prior, func(b *models.BalanceSheet) float64 { return b.AccountsPayable }))

	// Growth
	if prior == nil {
		for _, name := range GrowthRatioNames {
			rs.Ratios[name] = Ratio{Undefined: true}
		}
	} else {
		rs.Ratios[RevenueGrowth] = growthRate(pl.Revenue, prior.ProfitAndLoss.Revenue)
		rs.Ratios[ProfitGrowth] = growthRate(pl.NetProfit, prior.ProfitAndLoss.NetProfit)
		rs.Ratios[AssetGrowth] = growthRate(bs.TotalAssets, prior.BalanceSheet.TotalAssets)
	}

	return rs
}

// =============================================================================
// HELPERS
// =============================================================================

// safeDiv implements the division-by-zero policy: 0.0, marked undefined.
func safeDiv(numerator, denominator float64) Ratio {
	if denominator == 0 {
		return Ratio{Value: 0.0, Undefined: true}
	}
	return Ratio{Value: numerator / denominator}
}

// growthRate is the period-over-period percentage change.
func growthRate(current, prior float64) Ratio {
	if prior == 0 {
		return Ratio{Value: 0.0, Undefined: true}
	}
	return Ratio{Value: (current - prior) / prior * 100}
}

// averageBalance averages the current balance with the prior period's, or
// returns the current balance when no prior exists.
func averageBalance(current float64, prior *models.FinancialStatementSet, pick func(*models.BalanceSheet) float64) float64 {
	if prior == nil {
		return current
	}
	return (current + pick(&prior.BalanceSheet)) / 2
}
