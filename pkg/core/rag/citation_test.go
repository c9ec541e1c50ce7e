package rag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAssembleCitations_NumbersInInputOrder(t *testing.T) {
	scored := []ScoredChunk{
		{Chunk: mkChunk("acc-1-3", 3, "gross margin expanded"), Score: 0.9},
		{Chunk: mkChunk("acc-1-0", 0, "revenue grew"), Score: 0.5},
		{Chunk: mkChunk("acc-2-1", 1, "debt was repaid"), Score: 0.2},
	}

	citations, fragments, err := AssembleCitations(scored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(citations) != 3 || len(fragments) != 3 {
		t.Fatalf("expected 3 citations and 3 fragments, got %d/%d", len(citations), len(fragments))
	}

	seen := make(map[string]bool)
	for i, c := range citations {
		wantID := fmt.Sprintf("S%d", i+1)
		if c.ID != wantID {
			t.Errorf("citation %d: expected id %s, got %s", i, wantID, c.ID)
		}
		if seen[c.ID] {
			t.Errorf("duplicate citation id %s", c.ID)
		}
		seen[c.ID] = true
		if c.SourceURL == "" {
			t.Errorf("citation %s has empty source URL", c.ID)
		}
		if !strings.HasPrefix(fragments[i], "["+wantID+"] ") {
			t.Errorf("fragment %d not keyed by %s: %q", i, wantID, fragments[i])
		}
	}

	if citations[0].ChunkID != "acc-1-3" {
		t.Errorf("highest-ranked chunk should receive S1, got chunk %s", citations[0].ChunkID)
	}
}

func TestAssembleCitations_Empty(t *testing.T) {
	citations, fragments, err := AssembleCitations(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(citations) != 0 || len(fragments) != 0 {
		t.Error("expected empty output for empty input")
	}
}

func TestAssembleCitations_RejectsMissingURL(t *testing.T) {
	scored := []ScoredChunk{{
		Chunk: Chunk{ID: "acc-1-0", Text: "orphaned text", FilingID: "acc-1"},
		Score: 0.4,
	}}

	_, _, err := AssembleCitations(scored)
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
}
