package rag

import (
	"errors"
	"testing"
)

func mkChunk(id string, seq int, text string) Chunk {
	return Chunk{
		ID:            id,
		Text:          text,
		FilingID:      "acc-1",
		SourceURL:     "https://sec.gov/doc.htm",
		SequenceIndex: seq,
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Revenue grew 12% in Q3, driven by iPhone sales!")
	want := []string{"revenue", "grew", "12", "in", "q3", "driven", "by", "iphone", "sales"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], tokens[i])
		}
	}
}

func TestTokenize_DropsShortTokens(t *testing.T) {
	tokens := Tokenize("a I x revenue")
	if len(tokens) != 1 || tokens[0] != "revenue" {
		t.Errorf("expected single token 'revenue', got %v", tokens)
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	chunks := []Chunk{mkChunk("acc-1-0", 0, "revenue increased")}

	for _, q := range []string{"", "   ", "a ! ?"} {
		_, err := Retrieve(q, chunks, 5)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("query %q: expected ErrEmptyQuery, got %v", q, err)
		}
	}
}

func TestRetrieve_EmptyChunkSet(t *testing.T) {
	results, err := Retrieve("revenue growth", nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for empty chunk set, got %d", len(results))
	}
}

func TestRetrieve_ExcludesZeroScores(t *testing.T) {
	chunks := []Chunk{
		mkChunk("acc-1-0", 0, "revenue increased twelve percent"),
		mkChunk("acc-1-1", 1, "the board declared a dividend"),
		mkChunk("acc-1-2", 2, "cost of revenue was flat"),
	}

	results, err := Retrieve("revenue", chunks, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Score <= 0 {
			t.Errorf("chunk %s returned with non-positive score %f", r.Chunk.ID, r.Score)
		}
		if r.Chunk.ID == "acc-1-1" {
			t.Error("chunk with zero overlap was returned")
		}
	}
}

func TestRetrieve_LengthNormalization(t *testing.T) {
	// Same single hit; the shorter chunk must score higher.
	short := mkChunk("acc-1-0", 0, "revenue grew")
	long := mkChunk("acc-1-1", 1, "revenue grew while operating expenses and interest costs also grew across segments")

	results, err := Retrieve("revenue", []Chunk{long, short}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "acc-1-0" {
		t.Errorf("expected the shorter chunk first, got %s", results[0].Chunk.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected descending scores, got %f then %f", results[0].Score, results[1].Score)
	}
}

func TestRetrieve_TieBreakBySequenceIndex(t *testing.T) {
	// Identical text scores identically; earlier sequence index wins.
	chunks := []Chunk{
		mkChunk("acc-1-5", 5, "net income rose"),
		mkChunk("acc-1-2", 2, "net income rose"),
		mkChunk("acc-1-8", 8, "net income rose"),
	}

	results, err := Retrieve("income", chunks, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, wantSeq := range []int{2, 5, 8} {
		if results[i].Chunk.SequenceIndex != wantSeq {
			t.Errorf("position %d: expected sequence index %d, got %d", i, wantSeq, results[i].Chunk.SequenceIndex)
		}
	}
}

func TestRetrieve_TruncatesToK(t *testing.T) {
	var chunks []Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, mkChunk(chunkID("acc-1", i), i, "cash and debt balances"))
	}

	results, err := Retrieve("cash debt", chunks, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestRetrieve_TermFrequencyWeighting(t *testing.T) {
	a := mkChunk("acc-1-0", 0, "cash cash cash reserves")
	b := mkChunk("acc-1-1", 1, "cash flow from operations")

	results, err := Retrieve("cash", []Chunk{b, a}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Chunk.ID != "acc-1-0" {
		t.Errorf("expected the repeated-term chunk first, got %s", results[0].Chunk.ID)
	}
}
