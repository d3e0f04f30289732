package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"valuation_engine/pkg/core/synthesis"
)

// SynthesisRepository is the persistence contract; a custom implementation
// can be injected for testing.
type SynthesisRepository interface {
	Save(ctx context.Context, runID string, syn *synthesis.ValuationSynthesis) error
	Load(ctx context.Context, companyID string) (*synthesis.ValuationSynthesis, error)
}

// SynthesisRepo stores completed syntheses keyed by company, newest wins.
type SynthesisRepo struct{}

// NewSynthesisRepo creates a new repository instance.
func NewSynthesisRepo() *SynthesisRepo {
	return &SynthesisRepo{}
}

var _ SynthesisRepository = (*SynthesisRepo)(nil)

// Save upserts the synthesis as a JSONB blob.
//
// Schema assumption (migrations managed elsewhere):
//
//	CREATE TABLE IF NOT EXISTS valuation_synthesis (
//	  company_id TEXT PRIMARY KEY,
//	  run_id TEXT,
//	  synthesis_json JSONB,
//	  updated_at TIMESTAMPTZ
//	);
func (r *SynthesisRepo) Save(ctx context.Context, runID string, syn *synthesis.ValuationSynthesis) error {
	pool := Pool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	jsonData, err := json.Marshal(syn)
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis: %w", err)
	}

	query := `
		INSERT INTO valuation_synthesis (company_id, run_id, synthesis_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id)
		DO UPDATE SET
			run_id = EXCLUDED.run_id,
			synthesis_json = EXCLUDED.synthesis_json,
			updated_at = EXCLUDED.updated_at;
	`

	if _, err := pool.Exec(ctx, query, syn.CompanyID, runID, jsonData, time.Now()); err != nil {
		return fmt.Errorf("failed to save synthesis: %w", err)
	}
	return nil
}

// Load retrieves the latest synthesis for a company.
func (r *SynthesisRepo) Load(ctx context.Context, companyID string) (*synthesis.ValuationSynthesis, error) {
	pool := Pool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	var jsonData []byte
	err := pool.QueryRow(ctx, `SELECT synthesis_json FROM valuation_synthesis WHERE company_id = $1`, companyID).Scan(&jsonData)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no synthesis found for company %s", companyID)
		}
		return nil, fmt.Errorf("failed to load synthesis: %w", err)
	}

	var syn synthesis.ValuationSynthesis
	if err := json.Unmarshal(jsonData, &syn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal synthesis: %w", err)
	}
	return &syn, nil
}
