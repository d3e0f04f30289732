// Command valuation runs the full engine against a case file: canonical
// statements plus a company profile in JSON, industry benchmarks in HJSON,
// and optional peer/precedent sets. Prints the synthesis and, when a
// database is configured, persists it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"

	"valuation_engine/pkg/core/benchmark"
	"valuation_engine/pkg/core/llm"
	"valuation_engine/pkg/core/narrative"
	"valuation_engine/pkg/core/peers"
	"valuation_engine/pkg/core/pipeline"
	"valuation_engine/pkg/core/projection"
	"valuation_engine/pkg/core/store"
	"valuation_engine/pkg/core/valuation"
	"valuation_engine/pkg/models"
)

// CaseFile is the JSON input: one company snapshot plus optional history,
// oldest last.
type CaseFile struct {
	Profile models.CompanyProfile          `json:"profile"`
	Current models.FinancialStatementSet   `json:"current"`
	History []models.FinancialStatementSet `json:"history"`
}

// EngineConfig is the YAML run configuration. Zero values fall back to the
// engine defaults.
type EngineConfig struct {
	Iterations        int                `yaml:"iterations"`
	Seed              uint64             `yaml:"seed"`
	RiskFreeRate      float64            `yaml:"risk_free_rate"`
	EquityRiskPremium float64            `yaml:"equity_risk_premium"`
	TerminalGrowth    float64            `yaml:"terminal_growth"`
	ProviderTimeoutMS int                `yaml:"provider_timeout_ms"`
	MethodWeights     map[string]float64 `yaml:"method_weights"`
}

func loadConfig(path string) (EngineConfig, error) {
	var cfg EngineConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func loadCase(path string) (*CaseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file %s: %w", path, err)
	}
	var cf CaseFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse case file %s: %w", path, err)
	}
	if cf.Current.CompanyID == "" {
		return nil, fmt.Errorf("case file %s has no current statement set", path)
	}
	return &cf, nil
}

func loadPeerFile(path string) ([]valuation.PeerComparable, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read peer file %s: %w", path, err)
	}
	return peers.LoadJSON(data)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	casePath := flag.String("case", "", "path to the company case file (JSON)")
	benchPath := flag.String("benchmarks", "configs/benchmarks.hjson", "path to the industry benchmark table (HJSON)")
	configPath := flag.String("config", "", "optional engine config (YAML)")
	peersPath := flag.String("peers", "", "optional comparable-company set (JSON)")
	precedentsPath := flag.String("precedents", "", "optional precedent-transaction set (JSON)")
	useAdvisor := flag.Bool("advisor", false, "use the LLM assumption advisor (requires GEMINI_API_KEY)")
	withNarrative := flag.Bool("narrative", false, "print commentary for the synthesis")
	save := flag.Bool("save", false, "persist the synthesis (requires DATABASE_URL)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *casePath == "" {
		logger.Fatal().Msg("-case is required")
	}
	cf, err := loadCase(*casePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("case load failed")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}

	table, err := benchmark.LoadTable(*benchPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("benchmark table load failed")
	}
	engine := benchmark.NewEngine(table)

	peerSet, err := loadPeerFile(*peersPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("peer set load failed")
	}
	precedentSet, err := loadPeerFile(*precedentsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("precedent set load failed")
	}

	orch := pipeline.NewOrchestrator(engine, logger)
	if *useAdvisor {
		orch.SetAssumptionProvider(&projection.AdvisoryProvider{Client: &llm.GeminiProvider{}})
	}

	ctx := context.Background()
	priors := make([]*models.FinancialStatementSet, len(cf.History))
	for i := range cf.History {
		priors[i] = &cf.History[i]
	}

	opts := pipeline.Options{
		Iterations:        cfg.Iterations,
		Seed:              cfg.Seed,
		MethodWeights:     cfg.MethodWeights,
		RiskFreeRate:      cfg.RiskFreeRate,
		EquityRiskPremium: cfg.EquityRiskPremium,
		TerminalGrowth:    cfg.TerminalGrowth,
		ProviderTimeout:   time.Duration(cfg.ProviderTimeoutMS) * time.Millisecond,
	}

	syn, run, err := orch.RunValuation(ctx, &cf.Current, &cf.Profile, peerSet, precedentSet, opts, priors...)
	if err != nil {
		logger.Fatal().Err(err).Str("run_id", run.ID).Str("state", string(run.State)).Msg("valuation run failed")
	}

	out, err := json.MarshalIndent(syn, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("synthesis marshal failed")
	}
	fmt.Println(string(out))

	if *withNarrative {
		commentary, err := narrative.RuleBased{}.Commentary(ctx, syn)
		if err != nil {
			logger.Error().Err(err).Msg("commentary failed")
		} else {
			fmt.Println(commentary)
		}
	}

	if *save {
		if err := store.Connect(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database connect failed")
		}
		defer store.Close()
		if err := store.NewSynthesisRepo().Save(ctx, run.ID, syn); err != nil {
			logger.Fatal().Err(err).Msg("synthesis save failed")
		}
		logger.Info().Str("company", syn.CompanyID).Msg("synthesis persisted")
	}
}
