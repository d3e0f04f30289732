package valuation

import (
	"valuation_engine/pkg/models"
)

// WACCInput holds the cost-of-capital parameters. Beta arrives levered, per
// industry or company profile.
type WACCInput struct {
	Beta              float64
	RiskFreeRate      float64
	EquityRiskPremium float64
	PreTaxCostOfDebt  float64
	TaxRate           float64

	// Capital structure from the latest balance sheet.
	Equity float64
	Debt   float64
}

// WACCResult holds the calculated rates.
type WACCResult struct {
	CostOfEquity float64
	CostOfDebt   float64 // After-tax
	WACC         float64
	WeightEquity float64
	WeightDebt   float64
}

// CalculateWACC computes the weighted-average cost of capital.
//
//	Ke = Rf + Beta * ERP          (CAPM)
//	Kd = PreTaxKd * (1 - t)
//	WACC = Ke * E/(E+D) + Kd * D/(E+D)
//
// With no capital on either side the weights collapse to all-equity.
func CalculateWACC(input WACCInput) WACCResult {
	ke := input.RiskFreeRate + input.Beta*input.EquityRiskPremium
	kd := input.PreTaxCostOfDebt * (1 - input.TaxRate)

	total := input.Equity + input.Debt
	we, wd := 1.0, 0.0
	if total > 0 {
		we = input.Equity / total
		wd = input.Debt / total
	}

	return WACCResult{
		CostOfEquity: ke,
		CostOfDebt:   kd,
		WACC:         ke*we + kd*wd,
		WeightEquity: we,
		WeightDebt:   wd,
	}
}

// WACCFromProfile derives the WACC inputs from a company profile, the latest
// balance sheet and the market assumptions.
func WACCFromProfile(profile *models.CompanyProfile, bs *models.BalanceSheet, riskFree, equityRiskPremium float64) WACCResult {
	return CalculateWACC(WACCInput{
		Beta:              profile.Beta,
		RiskFreeRate:      riskFree,
		EquityRiskPremium: equityRiskPremium,
		PreTaxCostOfDebt:  profile.PreTaxCostOfDebt,
		TaxRate:           profile.EffectiveTaxRate,
		Equity:            bs.TotalEquity,
		Debt:              bs.TotalDebt(),
	})
}
