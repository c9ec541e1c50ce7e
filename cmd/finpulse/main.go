package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"finpulse/pkg/core/ingest"
	"finpulse/pkg/core/llm"
	"finpulse/pkg/core/pipeline"
	"finpulse/pkg/core/store"
	"finpulse/pkg/core/utils"
)

// cliConfig mirrors the optional HJSON config file. Flags override file
// values.
type cliConfig struct {
	Ticker          string `json:"ticker"`
	Scope           string `json:"scope"`
	Query           string `json:"query"`
	Provider        string `json:"provider"`
	TopK            int    `json:"top_k"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	CacheDir        string `json:"cache_dir"`
	DatabaseURL     string `json:"database_url"`
}

func main() {
	godotenv.Load()

	configPath := flag.String("config", "", "Optional HJSON config file")
	ticker := flag.String("ticker", "", "Stock ticker, e.g. AAPL")
	scope := flag.String("scope", "", "Report scope: quarterly/10Q or annual/10K")
	query := flag.String("query", "", "Retrieval question (defaults by scope)")
	provider := flag.String("provider", "", "LLM provider: gemini, gemini-legacy or deepseek")
	topK := flag.Int("top-k", 0, "Number of evidence passages to retrieve")
	outPath := flag.String("out", "", "Write the rendered report to this file instead of stdout")
	flag.Parse()

	var cfg cliConfig
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Printf("[ERROR] Failed to read config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		if err := utils.ParseHJSONToStruct(string(data), &cfg); err != nil {
			fmt.Printf("[ERROR] Failed to parse config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	if *ticker != "" {
		cfg.Ticker = *ticker
	}
	if *scope != "" {
		cfg.Scope = *scope
	}
	if *query != "" {
		cfg.Query = *query
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *topK > 0 {
		cfg.TopK = *topK
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".cache/finpulse"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("FINPULSE_DATABASE_URL")
	}

	if cfg.Ticker == "" {
		fmt.Println("Usage: finpulse -ticker AAPL [-scope quarterly|annual] [-query \"...\"]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	aiProvider, err := llm.NewProvider(cfg.Provider)
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}

	// Postgres is optional; without it the chunk store runs on local files.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			fmt.Printf("[WARNING] Postgres unavailable, using file store: %v\n", err)
			pool = nil
		}
	}

	source := ingest.NewEDGARClient(cfg.CacheDir)
	chunks := store.NewChunkStore(pool, "")
	orchestrator := pipeline.NewOrchestrator(source, chunks, aiProvider)

	opts := pipeline.Options{
		Scope:           cfg.Scope,
		Query:           cfg.Query,
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if cfg.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	report, err := orchestrator.Run(context.Background(), cfg.Ticker, opts)
	if err != nil {
		var failure *pipeline.Failure
		if errors.As(err, &failure) {
			fmt.Printf("[ERROR] %v\n", failure)
			os.Exit(exitCodeFor(failure.Kind))
		}
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}

	rendered := report.Render()
	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(rendered), 0644); err != nil {
			fmt.Printf("[ERROR] Failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[DONE] Report %s written to %s\n", report.RunID, *outPath)
		return
	}
	fmt.Println(rendered)
}

func exitCodeFor(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindNotFound, pipeline.KindNoFilings:
		return 3
	case pipeline.KindInvalidQuery:
		return 2
	case pipeline.KindTimeout:
		return 4
	default:
		return 1
	}
}
