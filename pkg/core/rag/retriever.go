package rag

import (
	"errors"
	"sort"
	"strings"
	"unicode"
)

// ErrEmptyQuery is returned when a query contains no scorable tokens.
var ErrEmptyQuery = errors.New("query contains no scorable tokens")

// ScoredChunk pairs a chunk with its relevance score for one query.
// Scores are ephemeral; they are never persisted.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Tokenize lowercases text and splits it on non-alphanumeric boundaries,
// dropping tokens shorter than two characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Retrieve scores every chunk against the query by keyword overlap and
// returns at most k chunks, best first.
//
// Scoring is deliberately lexical, not semantic: the score is the term
// frequency of query tokens within the chunk, divided by the chunk's token
// count so long chunks gain no advantage. Chunks with no overlap are
// excluded entirely, even if that leaves fewer than k results.
//
// Ordering is deterministic: descending score, then ascending sequence
// index, then filing id.
func Retrieve(query string, chunks []Chunk, k int) ([]ScoredChunk, error) {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, ErrEmptyQuery
	}
	if len(chunks) == 0 || k <= 0 {
		return []ScoredChunk{}, nil
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		tokens := Tokenize(c.Text)
		if len(tokens) == 0 {
			continue
		}
		hits := 0
		for _, t := range tokens {
			if _, ok := querySet[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk: c,
			Score: float64(hits) / float64(len(tokens)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Chunk.SequenceIndex != scored[j].Chunk.SequenceIndex {
			return scored[i].Chunk.SequenceIndex < scored[j].Chunk.SequenceIndex
		}
		return scored[i].Chunk.FilingID < scored[j].Chunk.FilingID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
