package valuation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// =============================================================================
// CONFIG
// =============================================================================

// MonteCarloConfig controls the simulation. The sigmas are the documented
// perturbation widths; the seed makes runs reproducible.
type MonteCarloConfig struct {
	Iterations int    // Default 1000
	Seed       uint64 // Same seed + same inputs => identical output

	DiscountRateSigma   float64 // Default 0.02
	TerminalGrowthSigma float64 // Default 0.005
	RevenueSigma        float64 // Default 0.10, multiplier around 1.0
	EBITDASigma         float64 // Default 0.15, multiplier around 1.0

	Workers int // 0 = GOMAXPROCS
}

func (c MonteCarloConfig) withDefaults() MonteCarloConfig {
	if c.Iterations <= 0 {
		c.Iterations = 1000
	}
	if c.DiscountRateSigma == 0 {
		c.DiscountRateSigma = 0.02
	}
	if c.TerminalGrowthSigma == 0 {
		c.TerminalGrowthSigma = 0.005
	}
	if c.RevenueSigma == 0 {
		c.RevenueSigma = 0.10
	}
	if c.EBITDASigma == 0 {
		c.EBITDASigma = 0.15
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// MonteCarloResult summarises the simulated enterprise-value distribution.
type MonteCarloResult struct {
	BaseCase DCFResult

	MeanEV   float64
	StdDevEV float64
	LowEV    float64 // Distribution min
	HighEV   float64 // Distribution max

	// Confidence = max(0.5, 1 - 2*CV), capped at 1.0, CV = stddev/mean.
	// Documented heuristic, not a derived statistical guarantee.
	Confidence float64

	Iterations int
	Discarded  int // Draws where sampled r <= sampled g
}

// =============================================================================
// SIMULATOR
// =============================================================================

// Simulator wraps the DCF model with stochastic sensitivity analysis. All
// randomness is pre-drawn from a single seeded source, so EV evaluation can
// fan out across cores without changing the result.
type Simulator struct {
	cfg MonteCarloConfig
}

// NewSimulator applies defaults to the config.
func NewSimulator(cfg MonteCarloConfig) *Simulator {
	return &Simulator{cfg: cfg.withDefaults()}
}

// draw is one iteration's sampled inputs.
type draw struct {
	rate    float64
	growth  float64
	revMult []float64
	ebMult  []float64
}

// Run simulates the EV distribution around a base-case DCF. The base case
// must itself be valid: r <= g fails the whole method with
// UndefinedTerminalValueError.
func (s *Simulator) Run(input DCFInput) (*MonteCarloResult, error) {
	base, err := CalculateDCF(input)
	if err != nil {
		return nil, err
	}

	years := len(input.Projections.Years)
	draws := s.sample(input, years)

	evs := make([]float64, len(draws))
	var wg sync.WaitGroup
	chunk := (len(draws) + s.cfg.Workers - 1) / s.cfg.Workers
	for w := 0; w < s.cfg.Workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(draws))
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				evs[i] = evaluateDraw(input, draws[i])
			}
		}(lo, hi)
	}
	wg.Wait()

	valid := evs[:0:0]
	discarded := 0
	for _, ev := range evs {
		if math.IsNaN(ev) {
			discarded++
			continue
		}
		valid = append(valid, ev)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("monte carlo: all %d draws had rate <= growth", len(evs))
	}

	mean := stat.Mean(valid, nil)
	sd := stat.StdDev(valid, nil)
	lo, hi := valid[0], valid[0]
	for _, ev := range valid {
		lo = math.Min(lo, ev)
		hi = math.Max(hi, ev)
	}

	return &MonteCarloResult{
		BaseCase:   base,
		MeanEV:     mean,
		StdDevEV:   sd,
		LowEV:      lo,
		HighEV:     hi,
		Confidence: confidenceFromCV(sd, mean),
		Iterations: len(valid),
		Discarded:  discarded,
	}, nil
}

// sample pre-draws every iteration's randomness in a single deterministic
// pass over one seeded PCG source.
func (s *Simulator) sample(input DCFInput, years int) []draw {
	src := rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15)
	rateDist := distuv.Normal{Mu: input.DiscountRate, Sigma: s.cfg.DiscountRateSigma, Src: src}
	growthDist := distuv.Normal{Mu: input.TerminalGrowth, Sigma: s.cfg.TerminalGrowthSigma, Src: src}
	revDist := distuv.Normal{Mu: 1.0, Sigma: s.cfg.RevenueSigma, Src: src}
	ebDist := distuv.Normal{Mu: 1.0, Sigma: s.cfg.EBITDASigma, Src: src}

	draws := make([]draw, s.cfg.Iterations)
	for i := range draws {
		d := draw{
			rate:    rateDist.Rand(),
			growth:  growthDist.Rand(),
			revMult: make([]float64, years),
			ebMult:  make([]float64, years),
		}
		for t := 0; t < years; t++ {
			d.revMult[t] = revDist.Rand()
			d.ebMult[t] = ebDist.Rand()
		}
		draws[i] = d
	}
	return draws
}

// evaluateDraw re-articulates each projected year under the sampled
// multipliers and discounts the perturbed cash flows. Revenue-proportional
// lines scale with the revenue multiplier; EBITDA additionally takes the
// margin multiplier. Returns NaN when the sampled rate does not exceed the
// sampled growth.
func evaluateDraw(input DCFInput, d draw) float64 {
	if d.rate <= d.growth {
		return math.NaN()
	}

	taxRate := input.Projections.TaxRate
	var pv, lastFCF float64
	for t, y := range input.Projections.Years {
		rm := d.revMult[t]
		em := d.ebMult[t]

		ebitda := y.EBITDA * rm * em
		da := (y.EBITDA - y.OperatingProfit) * rm
		taxes := (ebitda - da) * taxRate
		capex := y.Capex * rm
		deltaWC := y.WorkingCapitalChange * rm

		fcf := ebitda - taxes - capex - deltaWC
		pv += fcf / math.Pow(1+d.rate, float64(t+1))
		lastFCF = fcf
	}

	n := len(input.Projections.Years)
	tv := lastFCF * (1 + d.growth) / (d.rate - d.growth)
	return pv + tv/math.Pow(1+d.rate, float64(n))
}

// confidenceFromCV maps the coefficient of variation of the simulated EVs to
// a confidence score: max(0.5, 1 - 2*CV), capped at 1.0.
func confidenceFromCV(sd, mean float64) float64 {
	if mean == 0 {
		return 0.5
	}
	cv := math.Abs(sd / mean)
	conf := 1 - 2*cv
	if conf < 0.5 {
		conf = 0.5
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// Result runs the simulation and packages it as a method ValuationResult,
// using the simulated mean EV and the base-case net debt bridge.
func (s *Simulator) Result(input DCFInput) (*ValuationResult, error) {
	mc, err := s.Run(input)
	if err != nil {
		return nil, err
	}

	var risks []string
	if mc.BaseCase.EnterpriseValue != 0 && mc.BaseCase.PVTerminal/mc.BaseCase.EnterpriseValue > 0.75 {
		risks = append(risks, "terminal value dominates enterprise value")
	}
	if mc.MeanEV != 0 && mc.StdDevEV/mc.MeanEV > 0.25 {
		risks = append(risks, "wide simulated value dispersion")
	}

	return &ValuationResult{
		Method:          MethodDCF,
		EnterpriseValue: mc.MeanEV,
		EquityValue:     mc.MeanEV - input.NetDebt,
		Confidence:      mc.Confidence,
		Assumptions: map[string]float64{
			"discount_rate":   input.DiscountRate,
			"terminal_growth": input.TerminalGrowth,
			"iterations":      float64(mc.Iterations),
			"ev_stddev":       mc.StdDevEV,
		},
		Sensitivity: Sensitivity(input),
		RiskFactors: risks,
	}, nil
}
