// Package narrative is the optional commentary capability. The engine never
// depends on it: syntheses are complete without commentary, and the
// rule-based provider keeps the capability testable offline.
package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"

	"valuation_engine/pkg/core/llm"
	"valuation_engine/pkg/core/synthesis"
)

// Provider produces human-readable commentary for a completed synthesis.
type Provider interface {
	Commentary(ctx context.Context, syn *synthesis.ValuationSynthesis) (string, error)
}

// =============================================================================
// RULE-BASED DEFAULT
// =============================================================================

// RuleBased renders a deterministic markdown summary from the synthesis
// numbers alone.
type RuleBased struct{}

var _ Provider = (*RuleBased)(nil)

func (RuleBased) Commentary(_ context.Context, syn *synthesis.ValuationSynthesis) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## Valuation summary: %s\n\n", syn.CompanyID)
	fmt.Fprintf(&b, "Weighted enterprise value **%.0f**, within a method range of %.0f to %.0f. ", syn.WeightedEnterpriseValue, syn.RangeLow, syn.RangeHigh)
	fmt.Fprintf(&b, "Overall confidence %.0f%%.\n\n", syn.OverallConfidence*100)

	for _, m := range syn.Methods {
		fmt.Fprintf(&b, "- %s: EV %.0f (confidence %.0f%%)\n", m.Method, m.EnterpriseValue, m.Confidence*100)
	}
	for _, f := range syn.Failures {
		fmt.Fprintf(&b, "- %s: unavailable (%s)\n", f.Method, f.Reason)
	}
	return b.String(), nil
}

// =============================================================================
// LLM-BACKED PROVIDER
// =============================================================================

const commentarySystemPrompt = `You are writing the valuation commentary section of an information memorandum.
Summarize the methods, their agreement or disagreement, and the key risk factors, in restrained sell-side prose.
Respond in plain Markdown without code fences.`

// LLMProvider asks a reasoning service for commentary, then cleans and
// validates the markdown before returning it.
type LLMProvider struct {
	Client llm.Provider
}

var _ Provider = (*LLMProvider)(nil)

func (p *LLMProvider) Commentary(ctx context.Context, syn *synthesis.ValuationSynthesis) (string, error) {
	if p.Client == nil {
		return "", fmt.Errorf("narrative provider has no client attached")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Company: %s\nWeighted EV: %.0f\nRange: %.0f - %.0f\nOverall confidence: %.2f\n", syn.CompanyID, syn.WeightedEnterpriseValue, syn.RangeLow, syn.RangeHigh, syn.OverallConfidence)
	for _, m := range syn.Methods {
		fmt.Fprintf(&prompt, "Method %s: EV %.0f, confidence %.2f, risks: %s\n", m.Method, m.EnterpriseValue, m.Confidence, strings.Join(m.RiskFactors, ", "))
	}
	for _, f := range syn.Failures {
		fmt.Fprintf(&prompt, "Method %s failed: %s\n", f.Method, f.Reason)
	}

	raw, err := p.Client.GenerateResponse(ctx, prompt.String(), commentarySystemPrompt)
	if err != nil {
		return "", fmt.Errorf("commentary generation failed: %w", err)
	}

	cleaned := CleanMarkdown(raw)
	if !ValidateMarkdown(cleaned) {
		return "", fmt.Errorf("commentary is not valid markdown")
	}
	return cleaned, nil
}

// =============================================================================
// MARKDOWN HELPERS
// =============================================================================

// CleanMarkdown strips outer wrapping code fences models like to add.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)

	if strings.HasPrefix(cleaned, "```markdown") && strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```markdown")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	} else if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	return cleaned
}

// ValidateMarkdown checks the string parses under Goldmark. Goldmark is very
// permissive, so this is a basic sanity gate.
func ValidateMarkdown(input string) bool {
	parser := goldmark.DefaultParser()
	reader := text.NewReader([]byte(input))
	return parser.Parse(reader) != nil
}
