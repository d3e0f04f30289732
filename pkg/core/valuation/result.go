// Package valuation implements the independent valuation methods: a
// discounted-cash-flow model with Monte Carlo sensitivity analysis, and
// multiple-based comparable-company and precedent-transaction models.
package valuation

// Method identifiers used across results and synthesis weights.
const (
	MethodDCF        = "dcf_monte_carlo"
	MethodComparable = "comparable_companies"
	MethodPrecedent  = "precedent_transactions"
)

// SensitivityTable is a discount-rate x terminal-growth grid of enterprise
// values around the base case. Cells where the rate does not exceed the
// growth are left at zero (terminal value undefined there).
type SensitivityTable struct {
	DiscountRates    []float64   `json:"discount_rates"`
	GrowthRates      []float64   `json:"growth_rates"`
	EnterpriseValues [][]float64 `json:"enterprise_values"` // [rate][growth]
}

// ValuationResult is the outcome of one method.
type ValuationResult struct {
	Method          string  `json:"method"`
	EnterpriseValue float64 `json:"enterprise_value"`
	EquityValue     float64 `json:"equity_value"`

	// Confidence is 0..1; each method documents its own mapping.
	Confidence float64 `json:"confidence"`

	Assumptions map[string]float64 `json:"assumptions,omitempty"`
	Sensitivity *SensitivityTable  `json:"sensitivity,omitempty"`
	RiskFactors []string           `json:"risk_factors,omitempty"`
}
