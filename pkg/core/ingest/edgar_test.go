package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const tickerMapJSON = `{
	"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
	"1": {"cik_str": 789019, "ticker": "MSFT", "title": "Microsoft Corp"}
}`

const submissionsJSON = `{
	"cik": "320193",
	"name": "Apple Inc.",
	"filings": {
		"recent": {
			"accessionNumber": ["0000320193-24-000123", "0000320193-24-000081", "0000320193-24-000069"],
			"filingDate": ["2024-11-01", "2024-08-02", "2024-05-03"],
			"reportDate": ["2024-09-28", "2024-06-29", "2024-03-30"],
			"form": ["10-K", "10-Q", "10-Q"],
			"primaryDocument": ["aapl-20240928.htm", "aapl-20240629.htm", "aapl-20240330.htm"]
		}
	}
}`

// newTestClient wires an EDGARClient entirely against the given test server.
func newTestClient(t *testing.T, server *httptest.Server) *EDGARClient {
	t.Helper()
	c := NewEDGARClient(t.TempDir())
	c.DataBaseURL = server.URL
	c.ArchiveBaseURL = server.URL
	c.TickerMapURL = server.URL + "/files/company_tickers.json"
	return c
}

func edgarHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected User-Agent header on SEC request")
		}
		fmt.Fprint(w, tickerMapJSON)
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissionsJSON)
	})
	mux.HandleFunc("/Archives/edgar/data/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><style>p{color:red}</style></head><body><p>Revenue   increased</p><script>x()</script><p>during the period.</p></body></html>`)
	})
	mux.HandleFunc("/api/xbrl/companyfacts/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entityName":"Apple Inc.","facts":{}}`)
	})
	return mux
}

func TestResolveTicker(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	defer server.Close()
	client := newTestClient(t, server)

	cik, err := client.ResolveTicker(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("ResolveTicker failed: %v", err)
	}
	if cik != "0000320193" {
		t.Errorf("expected zero-padded CIK 0000320193, got %s", cik)
	}
}

func TestResolveTickerNotFound(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	defer server.Close()
	client := newTestClient(t, server)

	_, err := client.ResolveTicker(context.Background(), "ZZZZ99")
	if !errors.Is(err, ErrTickerNotFound) {
		t.Errorf("expected ErrTickerNotFound, got %v", err)
	}
}

func TestResolveTickerFallbackWhenMappingUnreachable(t *testing.T) {
	client := NewEDGARClient(t.TempDir())
	client.TickerMapURL = "http://127.0.0.1:1/unreachable"

	cik, err := client.ResolveTicker(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("expected fallback table to resolve MSFT: %v", err)
	}
	if cik != "0000789019" {
		t.Errorf("expected fallback CIK 0000789019, got %s", cik)
	}
}

func TestResolveTickerUsesCache(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	client := newTestClient(t, server)

	if _, err := client.ResolveTicker(context.Background(), "AAPL"); err != nil {
		t.Fatalf("first resolution failed: %v", err)
	}
	server.Close()

	// Second resolution must come from the on-disk cache.
	cik, err := client.ResolveTicker(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("cached resolution failed: %v", err)
	}
	if cik != "0000789019" {
		t.Errorf("expected cached CIK 0000789019, got %s", cik)
	}
}

func TestFetchFilingsFiltersFormAndLimits(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	defer server.Close()
	client := newTestClient(t, server)

	docs, err := client.FetchFilings(context.Background(), "AAPL", "10-Q", 1)
	if err != nil {
		t.Fatalf("FetchFilings failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 filing, got %d", len(docs))
	}
	doc := docs[0]
	if doc.FormType != "10-Q" {
		t.Errorf("expected form 10-Q, got %s", doc.FormType)
	}
	if doc.AccessionNumber != "0000320193-24-000081" {
		t.Errorf("expected newest 10-Q first, got %s", doc.AccessionNumber)
	}
	if doc.FilingID() != doc.AccessionNumber {
		t.Errorf("FilingID should equal accession number")
	}
	if !strings.Contains(doc.SourceURL, "/Archives/edgar/data/320193/000032019324000081/") {
		t.Errorf("unexpected source URL: %s", doc.SourceURL)
	}
	if doc.Text != "Revenue increased during the period." {
		t.Errorf("unexpected extracted text: %q", doc.Text)
	}
}

func TestFetchFilingsAllOfForm(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	defer server.Close()
	client := newTestClient(t, server)

	docs, err := client.FetchFilings(context.Background(), "AAPL", "10-Q", 5)
	if err != nil {
		t.Fatalf("FetchFilings failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 10-Q filings, got %d", len(docs))
	}
}

func TestFetchFilingsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/files/") {
			fmt.Fprint(w, tickerMapJSON)
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := newTestClient(t, server)

	_, err := client.FetchFilings(context.Background(), "AAPL", "10-K", 1)
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestFetchFilingsContextCancellation(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	defer server.Close()
	client := newTestClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchFilings(ctx, "AAPL", "10-K", 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetchFilingsRaggedArrays(t *testing.T) {
	// Form and PrimaryDocument are one row short of AccessionNumber.
	ragged := `{
		"cik": "320193",
		"filings": {
			"recent": {
				"accessionNumber": ["0000320193-24-000123", "0000320193-24-000081", "0000320193-24-000069"],
				"filingDate": ["2024-11-01", "2024-08-02", "2024-05-03"],
				"reportDate": ["2024-09-28", "2024-06-29", "2024-03-30"],
				"form": ["10-K", "10-Q"],
				"primaryDocument": ["aapl-20240928.htm", "aapl-20240629.htm"]
			}
		}
	}`
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tickerMapJSON)
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ragged)
	})
	mux.HandleFunc("/Archives/edgar/data/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Filing body.</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	client := newTestClient(t, server)

	docs, err := client.FetchFilings(context.Background(), "AAPL", "10-Q", 5)
	if err != nil {
		t.Fatalf("FetchFilings failed on ragged response: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 complete 10-Q row, got %d", len(docs))
	}
	if docs[0].AccessionNumber != "0000320193-24-000081" {
		t.Errorf("unexpected filing: %s", docs[0].AccessionNumber)
	}
}

func TestFetchCompanyFacts(t *testing.T) {
	server := httptest.NewServer(edgarHandler(t))
	defer server.Close()
	client := newTestClient(t, server)

	body, err := client.FetchCompanyFacts(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchCompanyFacts failed: %v", err)
	}
	if !strings.Contains(string(body), "Apple Inc.") {
		t.Errorf("unexpected companyfacts body: %s", body)
	}
}

func TestExtractTextStripsNoise(t *testing.T) {
	html := `<html><body><script>alert(1)</script><div>Net  sales</div><style>x</style><div>were strong</div></body></html>`
	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if text != "Net sales were strong" {
		t.Errorf("unexpected text: %q", text)
	}
}
