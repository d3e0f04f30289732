// Package models defines the canonical financial-statement contract the
// valuation engine consumes. Statement sets are produced by an external
// ingestion/standardization collaborator; the engine only reads them.
package models

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// CANONICAL STATEMENTS
// =============================================================================

// ProfitAndLoss holds the income-statement line items for one period.
// All amounts are in major currency units.
type ProfitAndLoss struct {
	Revenue                  float64 `json:"revenue"`
	CostOfGoodsSold          float64 `json:"cost_of_goods_sold"`
	GrossProfit              float64 `json:"gross_profit"`
	OperatingExpenses        float64 `json:"operating_expenses"`
	OperatingProfit          float64 `json:"operating_profit"`
	DepreciationAmortization float64 `json:"depreciation_amortization"`
	InterestExpense          float64 `json:"interest_expense"`
	TaxExpense               float64 `json:"tax_expense"`
	NetProfit                float64 `json:"net_profit"`

	// HasDepreciation distinguishes a genuine zero from a missing line item.
	// When false, EBITDA falls back to an estimation heuristic downstream.
	HasDepreciation bool `json:"has_depreciation"`
}

// BalanceSheet holds the balance-sheet line items for one period.
type BalanceSheet struct {
	CashAndEquivalents      float64 `json:"cash_and_equivalents"`
	AccountsReceivable      float64 `json:"accounts_receivable"`
	Inventory               float64 `json:"inventory"`
	TotalCurrentAssets      float64 `json:"total_current_assets"`
	TotalAssets             float64 `json:"total_assets"`
	AccountsPayable         float64 `json:"accounts_payable"`
	TotalCurrentLiabilities float64 `json:"total_current_liabilities"`
	ShortTermDebt           float64 `json:"short_term_debt"`
	LongTermDebt            float64 `json:"long_term_debt"`
	TotalLiabilities        float64 `json:"total_liabilities"`
	TotalEquity             float64 `json:"total_equity"`
}

// TotalDebt returns interest-bearing debt (short + long term).
func (b *BalanceSheet) TotalDebt() float64 {
	return b.ShortTermDebt + b.LongTermDebt
}

// NetDebt returns total debt less cash.
func (b *BalanceSheet) NetDebt() float64 {
	return b.TotalDebt() - b.CashAndEquivalents
}

// CashFlowStatement holds the cash-flow line items for one period.
type CashFlowStatement struct {
	OperatingCashFlow  float64 `json:"operating_cash_flow"`
	CapitalExpenditure float64 `json:"capital_expenditure"` // Positive magnitude
	AnnualDebtService  float64 `json:"annual_debt_service"` // Principal + interest due
	NetCashFlow        float64 `json:"net_cash_flow"`
}

// FinancialStatementSet is an immutable snapshot of one company/period,
// currency-tagged, with the extraction timestamp and the provider's
// pre-computed data-quality score carried alongside.
type FinancialStatementSet struct {
	CompanyID   string    `json:"company_id"`
	Currency    string    `json:"currency"` // ISO 4217, e.g. "GBP"
	PeriodEnd   time.Time `json:"period_end"`
	ExtractedAt time.Time `json:"extracted_at"`

	ProfitAndLoss ProfitAndLoss     `json:"profit_and_loss"`
	BalanceSheet  BalanceSheet      `json:"balance_sheet"`
	CashFlow      CashFlowStatement `json:"cash_flow"`

	// DataQuality is 0..1; the ingestion provider seeds it, the engine may
	// lower it when the balance-sheet identity fails.
	DataQuality float64 `json:"data_quality"`
}

// =============================================================================
// DATA QUALITY
// =============================================================================

// BalanceTolerance is the allowed gap for Assets = Liabilities + Equity,
// in major currency units: 1000 smallest currency units.
const BalanceTolerance = 10.00

// QualityPenalty is subtracted from the data-quality score when the
// balance-sheet identity fails beyond tolerance. Floor is 0.
const QualityPenalty = 0.2

// DataQualityError reports a non-fatal quality problem. The run continues;
// the score is lowered instead.
type DataQualityError struct {
	CompanyID string
	Gap       float64
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("balance sheet for %s does not balance: gap %.2f exceeds tolerance %.2f", e.CompanyID, e.Gap, BalanceTolerance)
}

// BalanceGap returns |TotalAssets - (TotalLiabilities + TotalEquity)|.
func (s *FinancialStatementSet) BalanceGap() float64 {
	return math.Abs(s.BalanceSheet.TotalAssets - (s.BalanceSheet.TotalLiabilities + s.BalanceSheet.TotalEquity))
}

// CheckQuality verifies the balance-sheet identity. On a violation beyond
// tolerance it returns a lowered quality score (fixed penalty, never below 0)
// and a DataQualityError the caller may log; the snapshot itself is not
// mutated.
func (s *FinancialStatementSet) CheckQuality() (float64, error) {
	gap := s.BalanceGap()
	if gap <= BalanceTolerance {
		return s.DataQuality, nil
	}
	adjusted := s.DataQuality - QualityPenalty
	if adjusted < 0 {
		adjusted = 0
	}
	return adjusted, &DataQualityError{CompanyID: s.CompanyID, Gap: gap}
}

// =============================================================================
// COMPANY PROFILE
// =============================================================================

// CompanyProfile carries the per-company valuation inputs that do not live
// on the statements themselves.
type CompanyProfile struct {
	Name              string  `json:"name"`
	Industry          string  `json:"industry"` // Benchmark-table key
	Beta              float64 `json:"beta"`     // Levered, per industry or company
	PreTaxCostOfDebt  float64 `json:"pre_tax_cost_of_debt"`
	EffectiveTaxRate  float64 `json:"effective_tax_rate"`
	SharesOutstanding float64 `json:"shares_outstanding"`
}
