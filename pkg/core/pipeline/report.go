package pipeline

import (
	"fmt"
	"strings"
	"time"

	"finpulse/pkg/core/ingest"
	"finpulse/pkg/core/kpi"
	"finpulse/pkg/core/prompt"
	"finpulse/pkg/core/rag"
	"finpulse/pkg/core/utils"
)

// Report is the assembled output of a pipeline run.
type Report struct {
	RunID       string                  `json:"run_id"`
	Ticker      string                  `json:"ticker"`
	Company     string                  `json:"company"`
	Query       string                  `json:"query"`
	Scope       string                  `json:"scope"`
	GeneratedAt time.Time               `json:"generated_at"`
	State       State                   `json:"state"`
	Narrative   string                  `json:"narrative"`
	Highlights  []string                `json:"highlights,omitempty"`
	Citations   []rag.Citation          `json:"citations"`
	KPIs        []kpi.Record            `json:"kpis,omitempty"`
	Filings     []ingest.FilingDocument `json:"filings"`
}

// Render produces the final markdown report with the KPI table, narrative,
// highlights and a Sources footer mapping each citation to its filing URL.
func (r *Report) Render() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s (%s) - %s\n\n", r.Company, r.Ticker, r.Query))
	sb.WriteString(fmt.Sprintf("_Generated %s | Run %s_\n\n", r.GeneratedAt.Format("2006-01-02 15:04 UTC"), r.RunID))

	if table := prompt.KPITable(r.KPIs); table != "" {
		sb.WriteString("## Key Metrics\n\n")
		sb.WriteString(table)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(r.Narrative)
	sb.WriteString("\n")

	if len(r.Highlights) > 0 {
		sb.WriteString("\n## Highlights\n\n")
		for _, h := range r.Highlights {
			sb.WriteString(fmt.Sprintf("- %s\n", h))
		}
	}

	if len(r.Citations) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, c := range r.Citations {
			sb.WriteString(fmt.Sprintf("- [%s] Filing %s: %s\n", c.ID, c.FilingID, c.SourceURL))
		}
	}

	out := sb.String()
	if !utils.ValidateMarkdown(out) {
		fmt.Printf("[WARNING] Rendered report failed markdown validation\n")
	}
	return out
}
