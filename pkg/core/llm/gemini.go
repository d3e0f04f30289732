package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider against Google's Gemini models.
type GeminiProvider struct {
	Model string // e.g. "gemini-2.0-flash-exp"
}

var _ Provider = (*GeminiProvider)(nil)

// GenerateResponse sends a generateContent request via the official GenAI SDK.
// Requires GEMINI_API_KEY in the environment.
func (p *GeminiProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	model := p.Model
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create GenAI client: %w", err)
	}

	// Low temperature: assumption and commentary outputs feed quantitative
	// paths and must stay conservative.
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)),
	}
	if strings.Contains(strings.ToLower(systemPrompt), "json") {
		config.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return result.Text(), nil
}
