package rag

import (
	"fmt"
)

// Citation maps a retrieved chunk to a short citation id (S1, S2, ...).
// Ids are assigned in retrieval rank order within one report run and are not
// stable across runs.
type Citation struct {
	ID        string  `json:"id"`
	ChunkID   string  `json:"chunkId"`
	FilingID  string  `json:"filingId"`
	SourceURL string  `json:"sourceUrl"`
	Score     float64 `json:"score"`
	Text      string  `json:"-"`
}

// Fragment returns the prompt-ready evidence line for this citation.
func (c Citation) Fragment() string {
	return fmt.Sprintf("[%s] %s", c.ID, c.Text)
}

// AssembleCitations assigns S1..Sn in input order (highest relevance first)
// and returns the citation list alongside the prompt evidence fragments.
// A chunk without a source URL is rejected: every citation must resolve to
// a filing URL.
func AssembleCitations(scored []ScoredChunk) ([]Citation, []string, error) {
	citations := make([]Citation, 0, len(scored))
	fragments := make([]string, 0, len(scored))

	for i, sc := range scored {
		if sc.Chunk.SourceURL == "" {
			return nil, nil, fmt.Errorf("chunk %s: %w", sc.Chunk.ID, ErrMissingSource)
		}
		cit := Citation{
			ID:        fmt.Sprintf("S%d", i+1),
			ChunkID:   sc.Chunk.ID,
			FilingID:  sc.Chunk.FilingID,
			SourceURL: sc.Chunk.SourceURL,
			Score:     sc.Score,
			Text:      sc.Chunk.Text,
		}
		citations = append(citations, cit)
		fragments = append(fragments, cit.Fragment())
	}

	return citations, fragments, nil
}
