package valuation

import (
	"fmt"
	"math"

	"valuation_engine/pkg/core/projection"
)

// UndefinedTerminalValueError reports a Gordon-growth terminal value with
// discount rate <= terminal growth. Fatal for the DCF method only; other
// methods are unaffected.
type UndefinedTerminalValueError struct {
	DiscountRate   float64
	TerminalGrowth float64
}

func (e *UndefinedTerminalValueError) Error() string {
	return fmt.Sprintf("terminal value undefined: discount rate %.4f <= terminal growth %.4f", e.DiscountRate, e.TerminalGrowth)
}

// DCFInput encapsulates the inputs for a discounted-cash-flow valuation.
type DCFInput struct {
	Projections    *projection.ProjectionSet
	DiscountRate   float64 // WACC
	TerminalGrowth float64 // e.g. 0.025
	NetDebt        float64
}

// DCFResult holds the valuation outputs.
type DCFResult struct {
	EnterpriseValue float64
	EquityValue     float64
	PVExplicit      float64 // PV of the explicit-horizon FCFs
	PVTerminal      float64
	TerminalValue   float64
}

// CalculateDCF discounts the projected free cash flows plus a Gordon-growth
// terminal value:
//
//	EV = sum FCF_t / (1+r)^t  +  TV / (1+r)^N
//	TV = FCF_N * (1+g) / (r-g)
//
// Returns UndefinedTerminalValueError when r <= g; no value is produced.
func CalculateDCF(input DCFInput) (DCFResult, error) {
	r := input.DiscountRate
	g := input.TerminalGrowth
	if r <= g {
		return DCFResult{}, &UndefinedTerminalValueError{DiscountRate: r, TerminalGrowth: g}
	}

	fcfs := input.Projections.FreeCashFlows()
	if len(fcfs) == 0 {
		return DCFResult{}, fmt.Errorf("dcf: empty projection set")
	}

	var pvExplicit float64
	for t, fcf := range fcfs {
		pvExplicit += fcf / math.Pow(1+r, float64(t+1))
	}

	n := len(fcfs)
	tv := fcfs[n-1] * (1 + g) / (r - g)
	pvTerminal := tv / math.Pow(1+r, float64(n))

	ev := pvExplicit + pvTerminal
	return DCFResult{
		EnterpriseValue: ev,
		EquityValue:     ev - input.NetDebt,
		PVExplicit:      pvExplicit,
		PVTerminal:      pvTerminal,
		TerminalValue:   tv,
	}, nil
}

// Sensitivity builds the discount-rate x growth grid around the base case:
// rate +/- 1% in 0.5% steps, growth +/- 0.5% in 0.25% steps. Cells with
// r <= g stay zero.
func Sensitivity(input DCFInput) *SensitivityTable {
	rates := offsets(input.DiscountRate, 0.005, 2)
	growths := offsets(input.TerminalGrowth, 0.0025, 2)

	table := &SensitivityTable{
		DiscountRates:    rates,
		GrowthRates:      growths,
		EnterpriseValues: make([][]float64, len(rates)),
	}
	for i, r := range rates {
		row := make([]float64, len(growths))
		for j, g := range growths {
			cell := input
			cell.DiscountRate = r
			cell.TerminalGrowth = g
			if res, err := CalculateDCF(cell); err == nil {
				row[j] = res.EnterpriseValue
			}
		}
		table.EnterpriseValues[i] = row
	}
	return table
}

func offsets(center, step float64, each int) []float64 {
	out := make([]float64, 0, 2*each+1)
	for i := -each; i <= each; i++ {
		out = append(out, center+float64(i)*step)
	}
	return out
}
