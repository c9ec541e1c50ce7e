package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"finpulse/pkg/api/report"
	"finpulse/pkg/core/ingest"
	"finpulse/pkg/core/llm"
	"finpulse/pkg/core/pipeline"
	"finpulse/pkg/core/store"
)

type serverConfig struct {
	Port        int    `yaml:"port"`
	Provider    string `yaml:"provider"`
	CacheDir    string `yaml:"cache_dir"`
	DatabaseURL string `yaml:"database_url"`
}

func main() {
	godotenv.Load()

	cfg := serverConfig{Port: 8080, CacheDir: ".cache/finpulse"}
	if data, err := os.ReadFile("config/server.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			fmt.Printf("[WARNING] Failed to parse config/server.yaml: %v\n", err)
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("FINPULSE_DATABASE_URL")
	}

	provider, err := llm.NewProvider(cfg.Provider)
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			fmt.Printf("[WARNING] Postgres unavailable, using file store: %v\n", err)
			pool = nil
		} else {
			fmt.Println("[STORE] Postgres chunk store enabled")
		}
	}

	source := ingest.NewEDGARClient(cfg.CacheDir)
	chunks := store.NewChunkStore(pool, "")
	report.InitHandler(pipeline.NewOrchestrator(source, chunks, provider))

	http.HandleFunc("/api/report/generate", report.HandleGenerateReport)
	http.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("[SERVER] FinPulse API listening on %s\n", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Printf("[ERROR] Server failed: %v\n", err)
		os.Exit(1)
	}
}
