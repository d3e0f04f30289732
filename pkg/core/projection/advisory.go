package projection

import (
	"context"
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"valuation_engine/pkg/core/llm"
)

const advisorySystemPrompt = `You are a sell-side financial analyst producing forecast assumptions for a private-company valuation.
Respond with a JSON array of exactly %d objects, one per forecast year, each shaped as:
{"revenue_growth": 0.05, "ebitda_margin": 0.20, "capex_percent": 0.04}
All values are decimals. Revenue growth must stay within [-0.50, 1.00] and EBITDA margin within [-1.00, 1.00]. Respond with JSON only.`

// AdvisoryProvider asks a reasoning service for the assumption set. Model
// output is repaired before parsing and funneled through the same bounds
// validation as any other external set; a malformed or out-of-bounds answer
// is an error the pipeline handles by falling back to the rule-based default.
type AdvisoryProvider struct {
	Client llm.Provider
}

// NewAdvisoryProvider wraps a reasoning provider.
func NewAdvisoryProvider(client llm.Provider) *AdvisoryProvider {
	return &AdvisoryProvider{Client: client}
}

func (p *AdvisoryProvider) Name() string { return "advisory_llm" }

func (p *AdvisoryProvider) Assumptions(ctx context.Context, req Request) ([]YearlyAssumptions, error) {
	if p.Client == nil {
		return nil, fmt.Errorf("advisory provider has no client attached")
	}
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	prompt := fmt.Sprintf(
		"Industry: %s\nTrailing revenue growth: %.4f (observed: %t)\nTrailing EBITDA margin: %.4f\nTrailing capex %% of revenue: %.4f\nForecast the next %d years.",
		req.Industry, req.CurrentGrowth, req.GrowthObserved, req.CurrentMargin, req.CurrentCapex, horizon,
	)

	raw, err := p.Client.GenerateResponse(ctx, prompt, fmt.Sprintf(advisorySystemPrompt, horizon))
	if err != nil {
		return nil, fmt.Errorf("advisory generation failed: %w", err)
	}

	// Model JSON is frequently wrapped in fences or mildly malformed.
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("advisory output unrepairable: %w", err)
	}

	var set []YearlyAssumptions
	if err := json.Unmarshal([]byte(repaired), &set); err != nil {
		return nil, fmt.Errorf("advisory output does not match schema: %w", err)
	}
	if err := ValidateAssumptions(set, horizon); err != nil {
		return nil, fmt.Errorf("advisory assumptions rejected: %w", err)
	}
	return set, nil
}
