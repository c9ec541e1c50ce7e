package utils

import (
	"strings"
	"testing"
)

type narrativeSchema struct {
	Narrative  string   `json:"narrative"`
	Highlights []string `json:"highlights"`
}

func TestSmartParseStrictJSON(t *testing.T) {
	input := `{"narrative": "Revenue grew.", "highlights": ["growth"]}`
	var out narrativeSchema
	if _, err := SmartParse(input, &out); err != nil {
		t.Fatalf("SmartParse failed on valid JSON: %v", err)
	}
	if out.Narrative != "Revenue grew." {
		t.Errorf("unexpected narrative: %q", out.Narrative)
	}
}

func TestSmartParseRepairsFencedJSON(t *testing.T) {
	input := "```json\n{\"narrative\": \"Margins expanded\", \"highlights\": [\"margins\",]}\n```"
	var out narrativeSchema
	if _, err := SmartParse(input, &out); err != nil {
		t.Fatalf("SmartParse failed on fenced JSON: %v", err)
	}
	if out.Narrative != "Margins expanded" {
		t.Errorf("unexpected narrative: %q", out.Narrative)
	}
}

func TestSmartParseHJSONFallback(t *testing.T) {
	input := `{
  # model got chatty with the syntax
  narrative: "Cash position is solid"
  highlights: ["cash"]
}`
	var out narrativeSchema
	if _, err := SmartParse(input, &out); err != nil {
		t.Fatalf("SmartParse failed on hjson input: %v", err)
	}
	if out.Narrative != "Cash position is solid" {
		t.Errorf("unexpected narrative: %q", out.Narrative)
	}
}

func TestSmartParseFailsOnGarbage(t *testing.T) {
	var out narrativeSchema
	if _, err := SmartParse("<<<not a document>>>", &out); err == nil {
		t.Error("expected error on unparseable input")
	}
}

func TestParseHJSONToStruct(t *testing.T) {
	input := `{
  ticker: AAPL
  scope: quarterly
}`
	var cfg struct {
		Ticker string `json:"ticker"`
		Scope  string `json:"scope"`
	}
	if err := ParseHJSONToStruct(input, &cfg); err != nil {
		t.Fatalf("ParseHJSONToStruct failed: %v", err)
	}
	if cfg.Ticker != "AAPL" || cfg.Scope != "quarterly" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestCleanNarrative(t *testing.T) {
	cases := map[string]string{
		"```markdown\n# Report\n```": "# Report",
		"```\nplain\n```":            "plain",
		"  already clean  ":          "already clean",
	}
	for input, want := range cases {
		if got := CleanNarrative(input); got != want {
			t.Errorf("CleanNarrative(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestValidateMarkdown(t *testing.T) {
	report := strings.Join([]string{"# FinPulse Report", "", "| Metric | Value |", "|---|---|"}, "\n")
	if !ValidateMarkdown(report) {
		t.Error("expected report markdown to validate")
	}
}
