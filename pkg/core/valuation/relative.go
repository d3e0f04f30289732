package valuation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TargetMetrics holds the target company's current metrics (LTM).
type TargetMetrics struct {
	Revenue float64
	EBITDA  float64
	NetDebt float64
}

// PeerComparable is one comparable company or precedent deal.
type PeerComparable struct {
	Name            string  `json:"name"`
	Revenue         float64 `json:"revenue"`
	EBITDA          float64 `json:"ebitda"`
	EnterpriseValue float64 `json:"enterprise_value"`
}

// Multiples derived for one peer. Zero when the denominator was unusable.
func (p *PeerComparable) EVRevenue() float64 {
	if p.Revenue <= 0 {
		return 0
	}
	return p.EnterpriseValue / p.Revenue
}

func (p *PeerComparable) EVEBITDA() float64 {
	if p.EBITDA <= 0 {
		return 0
	}
	return p.EnterpriseValue / p.EBITDA
}

// Dispersion->confidence mapping, shared by both multiple-based methods:
//
//	confidence = clamp(1 - 1.5*CV, 0.2, 1.0)
//
// where CV is the coefficient of variation of the peer multiples, averaged
// across the multiple types in use. Monotonically decreasing in CV; the 1.5
// slope and 0.2 floor are documented choices.
const (
	dispersionSlope = 1.5
	confidenceFloor = 0.2
)

// CalculateComparables runs comparable-company analysis: the median peer
// EV/Revenue and EV/EBITDA multiple applied to the target's metric, implied
// EVs averaged into the method value.
func CalculateComparables(target TargetMetrics, peers []PeerComparable) (*ValuationResult, error) {
	return multipleValuation(MethodComparable, target, peers)
}

// CalculatePrecedents runs precedent-transaction analysis. Same mechanics as
// comparables over the deal set; transaction multiples typically embed a
// control premium, which is why the sets are kept separate.
func CalculatePrecedents(target TargetMetrics, deals []PeerComparable) (*ValuationResult, error) {
	return multipleValuation(MethodPrecedent, target, deals)
}

func multipleValuation(method string, target TargetMetrics, peers []PeerComparable) (*ValuationResult, error) {
	var revMults, ebitdaMults []float64
	for i := range peers {
		if m := peers[i].EVRevenue(); m > 0 {
			revMults = append(revMults, m)
		}
		if m := peers[i].EVEBITDA(); m > 0 {
			ebitdaMults = append(ebitdaMults, m)
		}
	}

	var implied []float64
	var cvs []float64
	assumptions := map[string]float64{"peer_count": float64(len(peers))}

	if len(revMults) > 0 && target.Revenue > 0 {
		m := median(revMults)
		implied = append(implied, m*target.Revenue)
		cvs = append(cvs, coefficientOfVariation(revMults))
		assumptions["median_ev_revenue"] = m
	}
	if len(ebitdaMults) > 0 && target.EBITDA > 0 {
		m := median(ebitdaMults)
		implied = append(implied, m*target.EBITDA)
		cvs = append(cvs, coefficientOfVariation(ebitdaMults))
		assumptions["median_ev_ebitda"] = m
	}

	if len(implied) == 0 {
		return nil, fmt.Errorf("%s: no usable peer multiples", method)
	}

	ev := stat.Mean(implied, nil)

	avgCV := stat.Mean(cvs, nil)
	conf := 1 - dispersionSlope*avgCV
	if conf < confidenceFloor {
		conf = confidenceFloor
	}
	if conf > 1 {
		conf = 1
	}

	var risks []string
	if avgCV > 0.3 {
		risks = append(risks, "peer multiples widely dispersed")
	}
	if len(peers) < 4 {
		risks = append(risks, "thin peer set")
	}

	assumptions["multiple_cv"] = avgCV
	return &ValuationResult{
		Method:          method,
		EnterpriseValue: ev,
		EquityValue:     ev - target.NetDebt,
		Confidence:      conf,
		Assumptions:     assumptions,
		RiskFactors:     risks,
	}, nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func coefficientOfVariation(values []float64) float64 {
	mean := stat.Mean(values, nil)
	if mean == 0 {
		return 0
	}
	return math.Abs(stat.StdDev(values, nil) / mean)
}
