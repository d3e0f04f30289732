// Package pipeline orchestrates a full valuation run: statements -> ratios
// -> projections -> {DCF+MonteCarlo, comparables, precedents} in parallel ->
// synthesis. Method valuators are mutually independent once the projection
// and ratio sets exist; the synthesizer is a join barrier.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"valuation_engine/pkg/core/benchmark"
	"valuation_engine/pkg/core/projection"
	"valuation_engine/pkg/core/ratio"
	"valuation_engine/pkg/core/synthesis"
	"valuation_engine/pkg/core/valuation"
	"valuation_engine/pkg/models"
)

// =============================================================================
// RUN STATE MACHINE
// =============================================================================

// RunState tracks a valuation run through its lifecycle.
type RunState string

const (
	StatePending          RunState = "pending"
	StateStandardizing    RunState = "standardizing"
	StateRatiosComputed   RunState = "ratios_computed"
	StateProjectionsBuilt RunState = "projections_built"
	StateMethodsRunning   RunState = "methods_running"
	StateSynthesizing     RunState = "synthesizing"
	StateCompleted        RunState = "completed"
	StateFailed           RunState = "failed"
)

// Run is the mutable record of one valuation run. Trace keeps the visited
// states in order for observability and tests.
type Run struct {
	ID        string
	CompanyID string
	State     RunState
	Trace     []RunState
	StartedAt time.Time

	FailReason string
}

func newRun(companyID string) *Run {
	r := &Run{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		StartedAt: time.Now().UTC(),
	}
	r.transition(StatePending)
	return r
}

func (r *Run) transition(next RunState) {
	r.State = next
	r.Trace = append(r.Trace, next)
}

// AllMethodsFailedError is fatal for the run: every method valuator failed.
// It carries the per-method failure markers as the partial results.
type AllMethodsFailedError struct {
	Failures []synthesis.MethodFailure
}

func (e *AllMethodsFailedError) Error() string {
	reasons := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		reasons[i] = fmt.Sprintf("%s: %s", f.Method, f.Reason)
	}
	return "all valuation methods failed: " + strings.Join(reasons, "; ")
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options tunes one valuation run. Zero values fall back to defaults.
type Options struct {
	// Monte Carlo controls.
	Iterations int
	Seed       uint64

	// Method weight overrides passed through to the synthesizer.
	MethodWeights map[string]float64

	// Market assumptions.
	RiskFreeRate      float64 // Default 0.04
	EquityRiskPremium float64 // Default 0.055
	TerminalGrowth    float64 // Default 0.02

	// ProviderTimeout bounds the wait on an external assumption provider
	// before falling back to the rule-based default. Default 10s.
	ProviderTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RiskFreeRate == 0 {
		o.RiskFreeRate = 0.04
	}
	if o.EquityRiskPremium == 0 {
		o.EquityRiskPremium = 0.055
	}
	if o.TerminalGrowth == 0 {
		o.TerminalGrowth = 0.02
	}
	if o.ProviderTimeout == 0 {
		o.ProviderTimeout = 10 * time.Second
	}
	return o
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator wires the engine components for repeated runs. Benchmarks are
// injected read-only at construction; an external assumption provider is
// optional and always backstopped by the rule-based default.
type Orchestrator struct {
	benchmarks *benchmark.Engine
	provider   projection.AssumptionProvider // Optional external strategy
	log        zerolog.Logger
}

// NewOrchestrator builds an orchestrator around a benchmark engine.
func NewOrchestrator(benchmarks *benchmark.Engine, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		benchmarks: benchmarks,
		log:        log.With().Str("component", "valuation_pipeline").Logger(),
	}
}

// SetAssumptionProvider injects an external assumption strategy (advisory
// service, user-supplied set). The rule-based default remains the fallback.
func (o *Orchestrator) SetAssumptionProvider(p projection.AssumptionProvider) {
	o.provider = p
}

// ComputeRatios derives the RatioSet for a statement snapshot plus optional
// prior periods, applying the profile's effective tax rate to ROIC.
func (o *Orchestrator) ComputeRatios(statements *models.FinancialStatementSet, profile *models.CompanyProfile, priors ...*models.FinancialStatementSet) *ratio.RatioSet {
	return ratio.NewCalculator(profile.EffectiveTaxRate).Compute(statements, priors...)
}

// RunValuation executes the full pipeline. A method failure does not abort
// the run; only every method failing does. Cancellation is cooperative at
// stage boundaries: a cancelled run discards partial results and returns the
// context error without producing a synthesis.
func (o *Orchestrator) RunValuation(
	ctx context.Context,
	statements *models.FinancialStatementSet,
	profile *models.CompanyProfile,
	peers []valuation.PeerComparable,
	precedents []valuation.PeerComparable,
	opts Options,
	priors ...*models.FinancialStatementSet,
) (*synthesis.ValuationSynthesis, *Run, error) {
	opts = opts.withDefaults()
	run := newRun(statements.CompanyID)
	log := o.log.With().Str("run_id", run.ID).Str("company", statements.CompanyID).Logger()
	start := time.Now()

	// Stage 1: standardization checks. The snapshot is owned by the
	// ingestion collaborator; quality adjustments happen on a local copy.
	run.transition(StateStandardizing)
	working := *statements
	if adjusted, err := statements.CheckQuality(); err != nil {
		var dq *models.DataQualityError
		if errors.As(err, &dq) {
			log.Warn().Float64("gap", dq.Gap).Float64("quality", adjusted).Msg("balance sheet identity violated, quality lowered")
		}
		working.DataQuality = adjusted
	}
	if err := checkpoint(ctx, run); err != nil {
		return nil, run, err
	}

	// Stage 2: ratios.
	ratios := o.ComputeRatios(&working, profile, priors...)
	if err := ratios.CheckHistory(); err != nil {
		log.Warn().Err(err).Msg("growth ratios unavailable, projections will anchor on industry medians")
	}
	run.transition(StateRatiosComputed)
	if err := checkpoint(ctx, run); err != nil {
		return nil, run, err
	}

	// Stage 3: projections, with bounded wait + fallback on the external
	// provider.
	projections, err := o.buildProjections(ctx, &working, ratios, profile, opts, log)
	if err != nil {
		// Projections feed only the DCF; multiple-based methods can still
		// run. Recorded as a DCF failure downstream.
		log.Warn().Err(err).Msg("projection build failed, DCF method unavailable")
	}
	run.transition(StateProjectionsBuilt)
	if err := checkpoint(ctx, run); err != nil {
		return nil, run, err
	}

	// Stage 4: fan out the method valuators.
	run.transition(StateMethodsRunning)
	results, failures := o.runMethods(&working, ratios, projections, profile, peers, precedents, opts, log)
	if err := checkpoint(ctx, run); err != nil {
		return nil, run, err
	}

	// Stage 5: join barrier reached; synthesize.
	run.transition(StateSynthesizing)
	if len(results) == 0 {
		failErr := &AllMethodsFailedError{Failures: failures}
		run.FailReason = failErr.Error()
		run.transition(StateFailed)
		log.Error().Err(failErr).Msg("run failed")
		return nil, run, failErr
	}

	synthesizer := synthesis.NewSynthesizer(synthesis.Config{Weights: opts.MethodWeights})
	syn, err := synthesizer.Synthesize(working.CompanyID, results, failures)
	if err != nil {
		run.FailReason = err.Error()
		run.transition(StateFailed)
		return nil, run, err
	}

	run.transition(StateCompleted)
	log.Info().
		Int("methods", len(results)).
		Int("failures", len(failures)).
		Float64("weighted_ev", syn.WeightedEnterpriseValue).
		Float64("confidence", syn.OverallConfidence).
		Dur("elapsed", time.Since(start)).
		Msg("valuation run completed")
	return syn, run, nil
}

// checkpoint is a cooperative cancellation point between method-task
// boundaries.
func checkpoint(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		run.FailReason = err.Error()
		run.transition(StateFailed)
		return err
	}
	return nil
}

// buildProjections runs the configured external provider under a bounded
// wait and falls back to the rule-based default rather than blocking
// indefinitely or failing the stage.
func (o *Orchestrator) buildProjections(
	ctx context.Context,
	statements *models.FinancialStatementSet,
	ratios *ratio.RatioSet,
	profile *models.CompanyProfile,
	opts Options,
	log zerolog.Logger,
) (*projection.ProjectionSet, error) {
	builder := projection.NewBuilder(profile.EffectiveTaxRate)

	if o.provider != nil {
		bounded, cancel := context.WithTimeout(ctx, opts.ProviderTimeout)
		ps, err := builder.BuildWithIndustry(bounded, statements, ratios, o.provider, profile.Industry)
		cancel()
		if err == nil {
			return ps, nil
		}
		log.Warn().Err(err).Str("provider", o.provider.Name()).Msg("external assumption provider unavailable, using rule-based default")
	}

	fallback := projection.NewRuleBasedProvider(o.benchmarks)
	return builder.BuildWithIndustry(ctx, statements, ratios, fallback, profile.Industry)
}

// runMethods executes the independent valuators concurrently and waits for
// every one to reach a terminal state. Method-level errors are converted to
// failure markers here, at the task boundary.
func (o *Orchestrator) runMethods(
	statements *models.FinancialStatementSet,
	ratios *ratio.RatioSet,
	projections *projection.ProjectionSet,
	profile *models.CompanyProfile,
	peers []valuation.PeerComparable,
	precedents []valuation.PeerComparable,
	opts Options,
	log zerolog.Logger,
) ([]*valuation.ValuationResult, []synthesis.MethodFailure) {
	type outcome struct {
		result *valuation.ValuationResult
		fail   *synthesis.MethodFailure
	}

	target := valuation.TargetMetrics{
		Revenue: statements.ProfitAndLoss.Revenue,
		EBITDA:  ratios.EBITDA,
		NetDebt: statements.BalanceSheet.NetDebt(),
	}

	tasks := map[string]func() (*valuation.ValuationResult, error){
		valuation.MethodDCF: func() (*valuation.ValuationResult, error) {
			if projections == nil {
				return nil, fmt.Errorf("no projection set available")
			}
			wacc := valuation.WACCFromProfile(profile, &statements.BalanceSheet, opts.RiskFreeRate, opts.EquityRiskPremium)
			sim := valuation.NewSimulator(valuation.MonteCarloConfig{Iterations: opts.Iterations, Seed: opts.Seed})
			return sim.Result(valuation.DCFInput{
				Projections:    projections,
				DiscountRate:   wacc.WACC,
				TerminalGrowth: opts.TerminalGrowth,
				NetDebt:        target.NetDebt,
			})
		},
	}
	if len(peers) > 0 {
		tasks[valuation.MethodComparable] = func() (*valuation.ValuationResult, error) {
			return valuation.CalculateComparables(target, peers)
		}
	}
	if len(precedents) > 0 {
		tasks[valuation.MethodPrecedent] = func() (*valuation.ValuationResult, error) {
			return valuation.CalculatePrecedents(target, precedents)
		}
	}

	outcomes := make(chan outcome, len(tasks))
	var wg sync.WaitGroup
	for method, task := range tasks {
		wg.Add(1)
		go func(method string, task func() (*valuation.ValuationResult, error)) {
			defer wg.Done()
			res, err := task()
			if err != nil {
				log.Warn().Err(err).Str("method", method).Msg("method valuator failed")
				outcomes <- outcome{fail: &synthesis.MethodFailure{Method: method, Reason: err.Error()}}
				return
			}
			outcomes <- outcome{result: res}
		}(method, task)
	}
	wg.Wait()
	close(outcomes)

	var results []*valuation.ValuationResult
	var failures []synthesis.MethodFailure
	for out := range outcomes {
		if out.result != nil {
			results = append(results, out.result)
		} else {
			failures = append(failures, *out.fail)
		}
	}

	// Stable ordering keeps the synthesis reduction reproducible regardless
	// of goroutine completion order.
	sort.Slice(results, func(i, j int) bool { return results[i].Method < results[j].Method })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Method < failures[j].Method })
	return results, failures
}
