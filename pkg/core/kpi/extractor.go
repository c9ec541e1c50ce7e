// Package kpi extracts key financial metrics from SEC XBRL company facts.
// Data source: https://data.sec.gov/api/xbrl/companyfacts/CIK{cik}.json
package kpi

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Metric names the fixed set of extracted US-GAAP concepts.
type Metric string

const (
	Revenues      Metric = "Revenues"
	NetIncomeLoss Metric = "NetIncomeLoss"
	EPSDiluted    Metric = "EarningsPerShareDiluted"
	Cash          Metric = "CashAndCashEquivalentsAtCarryingValue"
	LongTermDebt  Metric = "LongTermDebtNoncurrent"
)

// Metrics returns the extraction set in display order.
func Metrics() []Metric {
	return []Metric{Revenues, NetIncomeLoss, EPSDiluted, Cash, LongTermDebt}
}

// =============================================================================
// XBRL COMPANY FACTS TYPES
// =============================================================================

// CompanyFacts is the top-level companyfacts response.
// Facts are keyed taxonomy -> concept tag -> concept.
type CompanyFacts struct {
	EntityName string                        `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"`
}

// Concept holds the reported values of one tag, grouped by unit.
type Concept struct {
	Units map[string][]Fact `json:"units"`
}

// Fact is one reported value with its fiscal period end.
type Fact struct {
	Value float64 `json:"val"`
	End   string  `json:"end"`   // fiscal period end, "2024-09-28"
	Form  string  `json:"form"`  // "10-K", "10-Q"
	Filed string  `json:"filed"` // filing date
}

// Record is one extracted financial fact. Records are immutable once
// created; several records per metric form a time series.
type Record struct {
	Metric Metric    `json:"metric"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit"`
	End    time.Time `json:"end"`
	Form   string    `json:"form"`
	Filed  string    `json:"filed"`
}

// Parse decodes a raw companyfacts document.
func Parse(raw []byte) (*CompanyFacts, error) {
	var facts CompanyFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, fmt.Errorf("failed to parse company facts: %w", err)
	}
	return &facts, nil
}

// Extract pulls the full time series for every metric in Metrics() from the
// us-gaap taxonomy. Missing concepts and unparseable dates are skipped, not
// fatal: a partially extracted KPI set is still reportable.
func Extract(facts *CompanyFacts) []Record {
	var records []Record
	if facts == nil {
		return records
	}
	usGAAP, ok := facts.Facts["us-gaap"]
	if !ok {
		fmt.Println("[KPI] No US-GAAP facts found in company data")
		return records
	}

	for _, metric := range Metrics() {
		concept, ok := usGAAP[string(metric)]
		if !ok {
			continue
		}
		unit, series := pickUnit(metric, concept.Units)
		for _, f := range series {
			end, err := time.Parse("2006-01-02", f.End)
			if err != nil {
				continue
			}
			records = append(records, Record{
				Metric: metric,
				Value:  f.Value,
				Unit:   unit,
				End:    end,
				Form:   f.Form,
				Filed:  f.Filed,
			})
		}
	}
	return records
}

// pickUnit selects the reporting unit for a metric: USD for monetary
// concepts, USD/shares for per-share figures, then whatever is available.
func pickUnit(metric Metric, units map[string][]Fact) (string, []Fact) {
	preferred := "USD"
	if metric == EPSDiluted {
		preferred = "USD/shares"
	}
	for _, u := range []string{preferred, "USD", "USD/shares"} {
		if series, ok := units[u]; ok && len(series) > 0 {
			return u, series
		}
	}

	// Fall back to the first populated unit, in sorted order for determinism.
	names := make([]string, 0, len(units))
	for name := range units {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(units[name]) > 0 {
			return name, units[name]
		}
	}
	return "", nil
}

// Latest reduces a time series to one record per metric, the most recent by
// period end. When two records share a date exactly, the later-extracted one
// wins. Output follows Metrics() order.
func Latest(records []Record) []Record {
	byMetric := make(map[Metric]Record)
	for _, r := range records {
		cur, ok := byMetric[r.Metric]
		if !ok || !r.End.Before(cur.End) {
			byMetric[r.Metric] = r
		}
	}

	out := make([]Record, 0, len(byMetric))
	for _, m := range Metrics() {
		if r, ok := byMetric[m]; ok {
			out = append(out, r)
		}
	}
	return out
}

// PeriodLabel renders a fiscal period end as a human-readable quarter label,
// e.g. "Q3 2024".
func PeriodLabel(end time.Time) string {
	if end.IsZero() {
		return "Unknown"
	}
	quarter := (int(end.Month())-1)/3 + 1
	return fmt.Sprintf("Q%d %d", quarter, end.Year())
}
