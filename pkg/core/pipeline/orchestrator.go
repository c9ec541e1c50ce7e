// Package pipeline orchestrates the end-to-end report flow:
// Fetch -> Extract -> Chunk -> Retrieve -> Prompt -> Generate -> Assemble.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finpulse/pkg/core/ingest"
	"finpulse/pkg/core/kpi"
	"finpulse/pkg/core/llm"
	"finpulse/pkg/core/prompt"
	"finpulse/pkg/core/rag"
	"finpulse/pkg/core/utils"
)

// State identifies the pipeline stage a run is in. Failures carry the state
// they happened in.
type State string

const (
	StateFetching   State = "Fetching"
	StateExtracting State = "Extracting"
	StateChunking   State = "Chunking"
	StateRetrieving State = "Retrieving"
	StatePrompting  State = "Prompting"
	StateGenerating State = "Generating"
	StateAssembled  State = "Assembled"
	StateFailed     State = "Failed"
)

// FilingSource supplies filings and XBRL facts. Implemented by
// ingest.EDGARClient; tests substitute mocks.
type FilingSource interface {
	FetchFilings(ctx context.Context, ticker, formType string, limit int) ([]ingest.FilingDocument, error)
	FetchCompanyFacts(ctx context.Context, ticker string) ([]byte, error)
}

// ChunkStore persists filing chunks between runs, keyed by company.
type ChunkStore interface {
	Load(ctx context.Context, companyID string) ([]rag.Chunk, error)
	Save(ctx context.Context, companyID string, chunks []rag.Chunk) error
	Has(ctx context.Context, companyID, filingID string) (bool, error)
}

// Options controls a single pipeline run. Zero values get defaults.
type Options struct {
	Scope           string // "quarterly" (10-Q) or "annual" (10-K)
	Query           string
	MaxFilings      int
	MaxOutputTokens int
	Sampling        string // "deterministic", "balanced" or "creative"
	Timeout         time.Duration
	TopK            int
	ChunkSize       int
	ChunkOverlap    int
}

// normalize validates the scope, resolves aliases and fills defaults.
// Scope accepts "quarterly"/"10Q"/"10-Q" and "annual"/"10K"/"10-K"; anything
// else is rejected rather than silently mapped to a form type.
func (o Options) normalize() (Options, error) {
	switch strings.ToUpper(strings.ReplaceAll(o.Scope, "-", "")) {
	case "", "QUARTERLY", "10Q":
		o.Scope = "quarterly"
	case "ANNUAL", "10K":
		o.Scope = "annual"
	default:
		return o, fmt.Errorf("%w: %q", errInvalidScope, o.Scope)
	}
	if o.Query == "" {
		if o.Scope == "annual" {
			o.Query = "annual performance and outlook"
		} else {
			o.Query = "latest quarterly performance"
		}
	}
	if o.MaxFilings <= 0 {
		o.MaxFilings = 3
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 1024
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = rag.DefaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = rag.DefaultChunkOverlap
	}
	return o, nil
}

func (o Options) formType() string {
	if o.Scope == "annual" {
		return "10-K"
	}
	return "10-Q"
}

func (o Options) temperature() float64 {
	switch o.Sampling {
	case "deterministic":
		return 0.0
	case "creative":
		return 0.7
	default:
		return 0.2
	}
}

// Orchestrator runs the report pipeline.
type Orchestrator struct {
	source   FilingSource
	chunks   ChunkStore
	provider llm.Provider

	// retry sleep, injectable for tests
	retryBackoff time.Duration
	sleep        func(time.Duration)
}

// NewOrchestrator wires the pipeline dependencies.
func NewOrchestrator(source FilingSource, chunks ChunkStore, provider llm.Provider) *Orchestrator {
	return &Orchestrator{
		source:       source,
		chunks:       chunks,
		provider:     provider,
		retryBackoff: 2 * time.Second,
		sleep:        time.Sleep,
	}
}

// narrativeResponse is the structured payload the model is asked to return.
type narrativeResponse struct {
	Narrative  string   `json:"narrative"`
	Highlights []string `json:"highlights"`
}

// Run executes the full pipeline for a ticker. On failure the returned error
// is a *Failure carrying the stage and classification.
func (o *Orchestrator) Run(ctx context.Context, ticker string, opts Options) (*Report, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, classify(StateFetching, err)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	companyID := ticker

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	fmt.Printf("[PIPELINE] Starting run for %s (scope=%s, query=%q)\n", ticker, opts.Scope, opts.Query)

	// Stage 1: Fetch filings
	filings, err := o.source.FetchFilings(ctx, ticker, opts.formType(), opts.MaxFilings)
	if err != nil {
		return nil, classify(StateFetching, err)
	}
	if len(filings) == 0 {
		return nil, classify(StateFetching, fmt.Errorf("%w: %s %s", errNoFilings, ticker, opts.formType()))
	}
	sortFilings(filings)

	// Stage 2: Extract KPIs. Facts are best-effort; the narrative can stand
	// on filing evidence alone.
	companyName := ticker
	var latestKPIs []kpi.Record
	factsRaw, err := o.source.FetchCompanyFacts(ctx, ticker)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classify(StateExtracting, ctx.Err())
		}
		fmt.Printf("[WARNING] Company facts unavailable for %s: %v\n", ticker, err)
	} else {
		facts, perr := kpi.Parse(factsRaw)
		if perr != nil {
			fmt.Printf("[WARNING] Company facts unparseable for %s: %v\n", ticker, perr)
		} else {
			if facts.EntityName != "" {
				companyName = facts.EntityName
			}
			latestKPIs = kpi.Latest(kpi.Extract(facts))
		}
	}

	// Stage 3: Chunk filings, skipping ones already stored.
	allChunks, err := o.chunkFilings(ctx, companyID, filings, opts)
	if err != nil {
		return nil, classify(StateChunking, err)
	}

	// Stage 4: Retrieve
	scored, err := rag.Retrieve(opts.Query, allChunks, opts.TopK)
	if err != nil {
		return nil, classify(StateRetrieving, err)
	}
	if len(scored) == 0 {
		fmt.Printf("[WARNING] No passages matched query %q; generating from KPI data only\n", opts.Query)
	}

	// Stage 5: Prompt
	citations, fragments, err := rag.AssembleCitations(scored)
	if err != nil {
		return nil, classify(StatePrompting, err)
	}
	userPrompt, err := prompt.BuildReportPrompt(prompt.Input{
		Company:   companyName,
		Query:     opts.Query,
		KPITable:  prompt.KPITable(latestKPIs),
		Fragments: fragments,
	})
	if err != nil {
		return nil, classify(StatePrompting, err)
	}

	// Stage 6: Generate, with a single retry.
	raw, err := o.generate(ctx, userPrompt, opts)
	if err != nil {
		return nil, classify(StateGenerating, err)
	}

	// Stage 7: Assemble
	narrative, highlights := parseNarrative(raw)

	report := &Report{
		RunID:       uuid.NewString(),
		Ticker:      ticker,
		Company:     companyName,
		Query:       opts.Query,
		Scope:       opts.Scope,
		GeneratedAt: time.Now().UTC(),
		State:       StateAssembled,
		Narrative:   narrative,
		Highlights:  highlights,
		Citations:   citations,
		KPIs:        latestKPIs,
		Filings:     filings,
	}
	fmt.Printf("[PIPELINE] Run %s assembled (%d citations, %d KPIs)\n", report.RunID, len(citations), len(latestKPIs))
	return report, nil
}

// chunkFilings splits new filings concurrently and merges them with stored
// chunks in filing order (date asc, accession asc) so retrieval input is
// deterministic across runs.
func (o *Orchestrator) chunkFilings(ctx context.Context, companyID string, filings []ingest.FilingDocument, opts Options) ([]rag.Chunk, error) {
	stored, err := o.chunks.Load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	byFiling := make(map[string][]rag.Chunk)
	for _, c := range stored {
		byFiling[c.FilingID] = append(byFiling[c.FilingID], c)
	}

	type result struct {
		idx    int
		chunks []rag.Chunk
		err    error
	}

	results := make([]result, len(filings))
	var wg sync.WaitGroup
	var newCount int

	for i, filing := range filings {
		has, err := o.chunks.Has(ctx, companyID, filing.FilingID())
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		newCount++
		wg.Add(1)
		go func(i int, filing ingest.FilingDocument) {
			defer wg.Done()
			chunks, err := rag.SplitText(filing.FilingID(), filing.SourceURL, filing.Text, opts.ChunkSize, opts.ChunkOverlap)
			results[i] = result{idx: i, chunks: chunks, err: err}
		}(i, filing)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if len(r.chunks) > 0 {
			byFiling[r.chunks[0].FilingID] = r.chunks
		}
	}

	fetched := make(map[string]bool, len(filings))
	var current []rag.Chunk
	for _, filing := range filings {
		fetched[filing.FilingID()] = true
		chunks := byFiling[filing.FilingID()]
		sort.Slice(chunks, func(a, b int) bool {
			return chunks[a].SequenceIndex < chunks[b].SequenceIndex
		})
		current = append(current, chunks...)
	}

	if newCount > 0 {
		// Persist the whole company set: stored chunks from filings outside
		// this fetch (e.g. the other scope's form type) must survive the save.
		persist := append([]rag.Chunk{}, current...)
		var otherIDs []string
		for id := range byFiling {
			if !fetched[id] {
				otherIDs = append(otherIDs, id)
			}
		}
		sort.Strings(otherIDs)
		for _, id := range otherIDs {
			persist = append(persist, byFiling[id]...)
		}
		if err := o.chunks.Save(ctx, companyID, persist); err != nil {
			return nil, err
		}
		fmt.Printf("[PIPELINE] Chunked %d new filings (%d chunks persisted)\n", newCount, len(persist))
	}
	return current, nil
}

// generate calls the provider, retrying once after a backoff on failure.
func (o *Orchestrator) generate(ctx context.Context, userPrompt string, opts Options) (string, error) {
	options := map[string]interface{}{
		"temperature":       opts.temperature(),
		"max_output_tokens": opts.MaxOutputTokens,
		"response_format":   map[string]interface{}{"type": "json_object"},
	}

	raw, err := o.provider.GenerateResponse(ctx, userPrompt, prompt.SystemPrompt, options)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	fmt.Printf("[WARNING] Generation failed, retrying once: %v\n", err)
	o.sleep(o.retryBackoff)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	raw, err = o.provider.GenerateResponse(ctx, userPrompt, prompt.SystemPrompt, options)
	if err != nil {
		return "", fmt.Errorf("generation failed after retry: %w", err)
	}
	return raw, nil
}

// parseNarrative extracts the structured response, degrading to the raw text
// when the model ignored the JSON instruction.
func parseNarrative(raw string) (string, []string) {
	var resp narrativeResponse
	if _, err := utils.SmartParse(raw, &resp); err == nil && resp.Narrative != "" {
		return resp.Narrative, resp.Highlights
	}
	fmt.Printf("[WARNING] Model response was not structured JSON, using raw text\n")
	return utils.CleanNarrative(raw), nil
}

// sortFilings orders filings by filing date asc, then accession number asc.
func sortFilings(filings []ingest.FilingDocument) {
	sort.Slice(filings, func(a, b int) bool {
		if !filings[a].FilingDate.Equal(filings[b].FilingDate) {
			return filings[a].FilingDate.Before(filings[b].FilingDate)
		}
		return filings[a].AccessionNumber < filings[b].AccessionNumber
	})
}
