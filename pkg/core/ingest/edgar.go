// Package ingest provides SEC EDGAR API integration for fetching company
// filings and XBRL company facts.
// API Documentation: https://www.sec.gov/developer
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// SEC EDGAR hosts. Submissions and XBRL facts live on data.sec.gov;
	// filing documents are served from the www.sec.gov archives.
	DefaultDataBaseURL    = "https://data.sec.gov"
	DefaultArchiveBaseURL = "https://www.sec.gov"
	DefaultTickerMapURL   = "https://www.sec.gov/files/company_tickers.json"

	// Required User-Agent per SEC guidelines; override via FINPULSE_USER_AGENT.
	DefaultUserAgent = "FinPulse/1.0 (team@example.com)"
)

var (
	// ErrTickerNotFound means the ticker could not be resolved to a CIK.
	ErrTickerNotFound = errors.New("ticker not found")
	// ErrUpstream means the SEC API transport failed or returned an error status.
	ErrUpstream = errors.New("SEC EDGAR request failed")
)

// FilingDocument is one fetched SEC filing: identity plus raw text body.
// Immutable once fetched; the pipeline only reads it.
type FilingDocument struct {
	Ticker          string    `json:"ticker"`
	CIK             string    `json:"cik"`
	AccessionNumber string    `json:"accession_number"`
	FormType        string    `json:"form_type"`
	FilingDate      time.Time `json:"filing_date"`
	ReportDate      time.Time `json:"report_date"`
	PrimaryDocument string    `json:"primary_document"`
	SourceURL       string    `json:"source_url"`
	Text            string    `json:"-"`
}

// FilingID returns the filing's stable identity (the accession number).
func (d FilingDocument) FilingID() string {
	return d.AccessionNumber
}

// secSubmissions is the submissions response; filing attributes arrive as
// parallel arrays.
type secSubmissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// EDGARClient handles SEC EDGAR API requests.
type EDGARClient struct {
	httpClient *http.Client
	cacheDir   string

	// Overridable for tests.
	DataBaseURL    string
	ArchiveBaseURL string
	TickerMapURL   string
}

// NewEDGARClient creates a new SEC EDGAR client. If cacheDir is non-empty
// the ticker->CIK mapping is cached there between runs.
func NewEDGARClient(cacheDir string) *EDGARClient {
	if cacheDir != "" {
		os.MkdirAll(cacheDir, 0755)
	}
	return &EDGARClient{
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		cacheDir:       cacheDir,
		DataBaseURL:    DefaultDataBaseURL,
		ArchiveBaseURL: DefaultArchiveBaseURL,
		TickerMapURL:   DefaultTickerMapURL,
	}
}

func userAgent() string {
	if ua := os.Getenv("FINPULSE_USER_AGENT"); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

// get performs a GET with the SEC-mandated headers.
func (c *EDGARClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", ErrUpstream, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}
	return body, nil
}

// =============================================================================
// TICKER -> CIK RESOLUTION
// =============================================================================

// Hardcoded fallback for common companies, used when the SEC ticker mapping
// is unreachable and nothing is cached.
var commonTickers = map[string]string{
	"AAPL":  "0000320193", // Apple Inc.
	"MSFT":  "0000789019", // Microsoft Corporation
	"GOOGL": "0001652044", // Alphabet Inc.
	"GOOG":  "0001652044", // Alphabet Inc.
	"AMZN":  "0001018724", // Amazon.com Inc.
	"TSLA":  "0001318605", // Tesla Inc.
	"META":  "0001326801", // Meta Platforms Inc.
	"NVDA":  "0001045810", // NVIDIA Corporation
	"NFLX":  "0001065280", // Netflix Inc.
	"AMD":   "0000002488", // Advanced Micro Devices Inc.
	"INTC":  "0000050863", // Intel Corporation
	"CRM":   "0001108524", // Salesforce Inc.
	"ADBE":  "0000796343", // Adobe Inc.
	"ORCL":  "0001341439", // Oracle Corporation
	"IBM":   "0000051143", // International Business Machines Corp
	"CSCO":  "0000858877", // Cisco Systems Inc.
}

// ResolveTicker converts a ticker symbol to a zero-padded 10-digit CIK.
// Resolution order: cached mapping, live SEC mapping, hardcoded fallback.
func (c *EDGARClient) ResolveTicker(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("%w: empty ticker", ErrTickerNotFound)
	}

	if mapping := c.loadCachedTickers(); mapping != nil {
		if cik, ok := mapping[ticker]; ok {
			return cik, nil
		}
	}

	mapping, err := c.fetchTickerMapping(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		fmt.Printf("[INGEST] Ticker mapping fetch failed (%v), using fallback table\n", err)
		mapping = commonTickers
	} else {
		c.cacheTickers(mapping)
	}

	if cik, ok := mapping[ticker]; ok {
		return cik, nil
	}
	return "", fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
}

// fetchTickerMapping downloads the official SEC ticker -> CIK mapping.
// Response structure: { "0": {"cik_str": 320193, "ticker": "AAPL", ...}, ... }
func (c *EDGARClient) fetchTickerMapping(ctx context.Context) (map[string]string, error) {
	body, err := c.get(ctx, c.TickerMapURL)
	if err != nil {
		return nil, err
	}

	var raw map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ticker mapping: %w", err)
	}

	mapping := make(map[string]string, len(raw))
	for _, entry := range raw {
		mapping[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
	}
	return mapping, nil
}

func (c *EDGARClient) tickersPath() string {
	if c.cacheDir == "" {
		return ""
	}
	return filepath.Join(c.cacheDir, "company_tickers.json")
}

func (c *EDGARClient) loadCachedTickers() map[string]string {
	path := c.tickersPath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		fmt.Printf("[WARNING] Failed to load cached tickers: %v\n", err)
		return nil
	}
	return mapping
}

func (c *EDGARClient) cacheTickers(mapping map[string]string) {
	path := c.tickersPath()
	if path == "" {
		return
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Printf("[WARNING] Failed to cache tickers: %v\n", err)
	}
}

// =============================================================================
// FILINGS
// =============================================================================

// FetchFilings returns the most recent filings of the given form type,
// newest first, each with its document text already fetched and reduced to
// plain text. limit <= 0 defaults to 3.
func (c *EDGARClient) FetchFilings(ctx context.Context, ticker, formType string, limit int) ([]FilingDocument, error) {
	if limit <= 0 {
		limit = 3
	}

	cik, err := c.ResolveTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.DataBaseURL, cik)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var subs secSubmissions
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("%w: parsing submissions: %v", ErrUpstream, err)
	}

	recent := subs.Filings.Recent
	// The parallel arrays are only safe to index up to the shortest one;
	// upstream has served ragged responses.
	rows := len(recent.AccessionNumber)
	for _, n := range []int{len(recent.FilingDate), len(recent.ReportDate), len(recent.Form), len(recent.PrimaryDocument)} {
		if n < rows {
			rows = n
		}
	}
	if rows < len(recent.AccessionNumber) {
		fmt.Printf("[WARNING] Ragged submissions response: using %d of %d rows\n", rows, len(recent.AccessionNumber))
	}

	var docs []FilingDocument
	for i := 0; i < rows; i++ {
		if recent.Form[i] != formType {
			continue
		}
		filingDate, _ := time.Parse("2006-01-02", recent.FilingDate[i])
		reportDate, _ := time.Parse("2006-01-02", recent.ReportDate[i])

		doc := FilingDocument{
			Ticker:          strings.ToUpper(ticker),
			CIK:             cik,
			AccessionNumber: recent.AccessionNumber[i],
			FormType:        recent.Form[i],
			FilingDate:      filingDate,
			ReportDate:      reportDate,
			PrimaryDocument: recent.PrimaryDocument[i],
		}
		doc.SourceURL = c.filingURL(cik, doc.AccessionNumber, doc.PrimaryDocument)

		text, err := c.fetchFilingText(ctx, doc.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("filing %s: %w", doc.AccessionNumber, err)
		}
		doc.Text = text

		docs = append(docs, doc)
		if len(docs) >= limit {
			break
		}
	}

	return docs, nil
}

// filingURL builds the archive download URL. Documents are served from the
// www.sec.gov archives (not data.sec.gov) with the accession dashes removed.
func (c *EDGARClient) filingURL(cik, accession, document string) string {
	accessionClean := strings.ReplaceAll(accession, "-", "")
	cikTrimmed := strings.TrimLeft(cik, "0")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.ArchiveBaseURL, cikTrimmed, accessionClean, document)
}

// fetchFilingText downloads a filing document and extracts its plain text.
func (c *EDGARClient) fetchFilingText(ctx context.Context, url string) (string, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	text, err := ExtractText(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to extract filing text: %w", err)
	}
	return text, nil
}

// =============================================================================
// COMPANY FACTS
// =============================================================================

// FetchCompanyFacts returns the raw XBRL companyfacts document for a ticker.
func (c *EDGARClient) FetchCompanyFacts(ctx context.Context, ticker string) ([]byte, error) {
	cik, err := c.ResolveTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.DataBaseURL, cik)
	return c.get(ctx, url)
}
