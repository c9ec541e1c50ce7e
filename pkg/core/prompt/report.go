// Package prompt builds the grounded report prompt sent to the LLM and
// renders the supporting KPI table.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"finpulse/pkg/core/kpi"
	"finpulse/pkg/core/rag"
)

// SystemPrompt instructs the model to stay grounded in the supplied evidence
// and respond as JSON.
const SystemPrompt = `You are a financial analyst assistant. You write concise, factual summaries of SEC filings.
Rules:
- Base every claim ONLY on the evidence excerpts and KPI data provided.
- Cite evidence by its marker, e.g. [S1] or [S2], after each claim it supports.
- If the evidence does not cover the question, say so instead of speculating.
- Respond with a JSON object: {"narrative": "<markdown narrative with [Sn] citations>", "highlights": ["<short bullet>", ...]}`

const reportTemplateText = `Company: {{.Company}}
Question: {{.Query}}

Key financial metrics (from XBRL company facts):
{{.KPITable}}

Evidence excerpts from SEC filings:
{{range .Fragments}}{{.}}

{{end}}Write a grounded summary answering the question. Cite every claim with its [Sn] marker.`

var reportTemplate = template.Must(template.New("report").Parse(reportTemplateText))

// Input carries everything the report prompt needs.
type Input struct {
	Company   string
	Query     string
	KPITable  string
	Fragments []string
}

// BuildReportPrompt renders the user prompt from retrieved evidence and KPI
// data. Fragments must already carry their [Sn] markers.
func BuildReportPrompt(in Input) (string, error) {
	if in.KPITable == "" {
		in.KPITable = "(no KPI data available)"
	}
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("failed to render report prompt: %w", err)
	}
	return buf.String(), nil
}

// FragmentsFromCitations converts citations into prompt-ready evidence lines.
func FragmentsFromCitations(citations []rag.Citation) []string {
	fragments := make([]string, 0, len(citations))
	for _, c := range citations {
		fragments = append(fragments, c.Fragment())
	}
	return fragments
}

// KPITable renders latest-per-metric records as a markdown table.
// Monetary values are shortened to $B/$M/$K, per-share values shown raw.
func KPITable(records []kpi.Record) string {
	if len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("| Metric | Value | Period | Form |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			r.Metric, FormatValue(r.Value, r.Unit), kpi.PeriodLabel(r.End), r.Form))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatValue renders a metric value for display. USD amounts collapse to
// billions, millions or thousands; everything else keeps two decimals.
func FormatValue(value float64, unit string) string {
	if unit != "USD" {
		return fmt.Sprintf("%.2f %s", value, unit)
	}
	abs := value
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", value/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", value/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("$%.2fK", value/1e3)
	default:
		return fmt.Sprintf("$%.2f", value)
	}
}
