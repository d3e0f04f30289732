// Package llm defines the optional reasoning-service capability. The
// valuation engine is fully functional and tested without any provider
// attached; providers only feed the advisory assumption and narrative paths.
package llm

import (
	"context"
)

// Provider is the interface for all reasoning providers.
type Provider interface {
	// GenerateResponse returns the raw model output for a prompt pair.
	// Implementations should request JSON output when the system prompt
	// asks for it.
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string) (string, error)
}
