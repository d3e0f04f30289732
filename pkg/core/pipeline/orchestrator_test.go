package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation_engine/pkg/core/benchmark"
	"valuation_engine/pkg/core/projection"
	"valuation_engine/pkg/core/ratio"
	"valuation_engine/pkg/core/valuation"
	"valuation_engine/pkg/models"
)

func testStatements() *models.FinancialStatementSet {
	return &models.FinancialStatementSet{
		CompanyID: "acme",
		Currency:  "GBP",
		PeriodEnd: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		ProfitAndLoss: models.ProfitAndLoss{
			Revenue:                  10_000_000,
			CostOfGoodsSold:          6_000_000,
			GrossProfit:              4_000_000,
			OperatingProfit:          1_500_000,
			DepreciationAmortization: 500_000,
			HasDepreciation:          true,
			InterestExpense:          200_000,
			NetProfit:                1_000_000,
		},
		BalanceSheet: models.BalanceSheet{
			CashAndEquivalents:      1_000_000,
			Inventory:               1_500_000,
			TotalCurrentAssets:      4_000_000,
			TotalAssets:             12_000_000,
			TotalCurrentLiabilities: 2_500_000,
			ShortTermDebt:           500_000,
			LongTermDebt:            3_500_000,
			TotalLiabilities:        7_000_000,
			TotalEquity:             5_000_000,
		},
		CashFlow: models.CashFlowStatement{
			OperatingCashFlow:  1_800_000,
			CapitalExpenditure: 600_000,
			AnnualDebtService:  900_000,
		},
		DataQuality: 1.0,
	}
}

func testProfile() *models.CompanyProfile {
	return &models.CompanyProfile{
		Name:              "Acme Ltd",
		Industry:          "manufacturing",
		Beta:              1.1,
		PreTaxCostOfDebt:  0.06,
		EffectiveTaxRate:  0.20,
		SharesOutstanding: 1_000_000,
	}
}

func testBenchmarks() *benchmark.Engine {
	return benchmark.NewEngine(&benchmark.Table{
		Industries: map[string]map[string]benchmark.Quartiles{
			"manufacturing": {
				ratio.RevenueGrowth: {P25: 1, P50: 4, P75: 8},
				ratio.EBITDAMargin:  {P25: 10, P50: 18, P75: 26},
			},
		},
	})
}

func testPeers(multiples ...float64) []valuation.PeerComparable {
	peers := make([]valuation.PeerComparable, len(multiples))
	for i, m := range multiples {
		peers[i] = valuation.PeerComparable{Name: "peer", EBITDA: 1_000_000, EnterpriseValue: 1_000_000 * m}
	}
	return peers
}

func TestFullRunReachesCompleted(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())

	syn, run, err := o.RunValuation(
		context.Background(),
		testStatements(), testProfile(),
		testPeers(8.0, 8.5, 9.0),
		testPeers(9.5, 10.0, 10.5),
		Options{Iterations: 300, Seed: 11},
	)
	require.NoError(t, err)
	require.NotNil(t, syn)

	assert.Equal(t, StateCompleted, run.State)
	assert.Contains(t, run.Trace, StateMethodsRunning)
	assert.Contains(t, run.Trace, StateSynthesizing)
	assert.Len(t, syn.Methods, 3)
	assert.Empty(t, syn.Failures)

	assert.GreaterOrEqual(t, syn.WeightedEnterpriseValue, syn.RangeLow)
	assert.LessOrEqual(t, syn.WeightedEnterpriseValue, syn.RangeHigh)
	assert.Greater(t, syn.OverallConfidence, 0.0)
	assert.LessOrEqual(t, syn.OverallConfidence, 1.0)
}

func TestDCFFailureDoesNotAbortRun(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())

	// Terminal growth far above any plausible WACC: the DCF method must
	// fail with an undefined terminal value while the multiple-based
	// methods complete.
	syn, run, err := o.RunValuation(
		context.Background(),
		testStatements(), testProfile(),
		testPeers(8.0, 8.5, 9.0),
		testPeers(9.5, 10.0, 10.5),
		Options{Iterations: 100, Seed: 1, TerminalGrowth: 0.50},
	)
	require.NoError(t, err)
	require.NotNil(t, syn)

	assert.Equal(t, StateCompleted, run.State)
	assert.Len(t, syn.Methods, 2)
	require.Len(t, syn.Failures, 1)
	assert.Equal(t, valuation.MethodDCF, syn.Failures[0].Method)

	for _, m := range syn.Methods {
		assert.NotEqual(t, valuation.MethodDCF, m.Method)
	}
}

func TestAllMethodsFailedFailsRun(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())

	// No peer or precedent sets and an impossible terminal growth: the only
	// attempted method (DCF) fails.
	syn, run, err := o.RunValuation(
		context.Background(),
		testStatements(), testProfile(),
		nil, nil,
		Options{Iterations: 100, Seed: 1, TerminalGrowth: 0.50},
	)
	require.Error(t, err)
	assert.Nil(t, syn)
	assert.Equal(t, StateFailed, run.State)

	var allFailed *AllMethodsFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Failures, 1)
	assert.Equal(t, valuation.MethodDCF, allFailed.Failures[0].Method)
}

func TestCancelledRunProducesNoSynthesis(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syn, run, err := o.RunValuation(ctx, testStatements(), testProfile(), testPeers(8.0), nil, Options{Seed: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, syn)
	assert.Equal(t, StateFailed, run.State)
	assert.NotContains(t, run.Trace, StateCompleted)
}

func TestRunIsDeterministicWithFixedSeed(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())
	opts := Options{Iterations: 400, Seed: 99}

	a, _, err := o.RunValuation(context.Background(), testStatements(), testProfile(), testPeers(8.0, 8.5), testPeers(10.0, 10.5), opts)
	require.NoError(t, err)
	b, _, err := o.RunValuation(context.Background(), testStatements(), testProfile(), testPeers(8.0, 8.5), testPeers(10.0, 10.5), opts)
	require.NoError(t, err)

	assert.Equal(t, a.WeightedEnterpriseValue, b.WeightedEnterpriseValue)
	assert.Equal(t, a.OverallConfidence, b.OverallConfidence)
}

// blockingProvider never answers until its context is cancelled.
type blockingProvider struct{}

func (p *blockingProvider) Name() string { return "blocking_advisory" }

func (p *blockingProvider) Assumptions(ctx context.Context, _ projection.Request) ([]projection.YearlyAssumptions, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSlowExternalProviderFallsBackToRuleBased(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())
	o.SetAssumptionProvider(&blockingProvider{})

	start := time.Now()
	syn, run, err := o.RunValuation(
		context.Background(),
		testStatements(), testProfile(),
		testPeers(8.0, 8.5, 9.0), nil,
		Options{Iterations: 100, Seed: 5, ProviderTimeout: 50 * time.Millisecond},
	)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The DCF method ran on the fallback projections.
	methods := make([]string, len(syn.Methods))
	for i, m := range syn.Methods {
		methods[i] = m.Method
	}
	assert.Contains(t, methods, valuation.MethodDCF)
}

func TestMethodWeightOverridesFlowThrough(t *testing.T) {
	o := NewOrchestrator(testBenchmarks(), zerolog.Nop())

	syn, _, err := o.RunValuation(
		context.Background(),
		testStatements(), testProfile(),
		testPeers(8.0, 8.1, 8.2),
		testPeers(20.0, 20.1, 20.2),
		Options{
			Iterations:    100,
			Seed:          3,
			MethodWeights: map[string]float64{valuation.MethodPrecedent: 0},
		},
	)
	require.NoError(t, err)

	// With precedents zero-weighted, the weighted EV must sit inside the
	// span of the remaining methods.
	var lo, hi float64
	for _, m := range syn.Methods {
		if m.Method == valuation.MethodPrecedent {
			continue
		}
		if lo == 0 || m.EnterpriseValue < lo {
			lo = m.EnterpriseValue
		}
		if m.EnterpriseValue > hi {
			hi = m.EnterpriseValue
		}
	}
	assert.GreaterOrEqual(t, syn.WeightedEnterpriseValue, lo)
	assert.LessOrEqual(t, syn.WeightedEnterpriseValue, hi)
}
