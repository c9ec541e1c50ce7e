// Package rag implements the retrieval core: chunking filing text into
// overlapping passages, scoring passages against a query by keyword overlap,
// and assembling numbered citations for grounded prompts.
package rag

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Chunking defaults. ChunkOverlap is shared between neighboring chunks so
// sentences near a cut survive in at least one chunk intact.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// ErrMissingSource is returned when a document has no traceable source URL.
// Chunks must be citable; a chunk without a URL can never back a citation.
var ErrMissingSource = errors.New("document has no source URL")

// Chunk is a bounded passage of filing text with provenance.
type Chunk struct {
	ID            string `json:"chunkId"`
	Text          string `json:"text"`
	FilingID      string `json:"filingId"`
	SourceURL     string `json:"sourceUrl"`
	SequenceIndex int    `json:"sequenceIndex"`
}

// chunkID derives the stable chunk identifier from filing identity and
// position. Re-chunking the same filing must reproduce the same ids.
func chunkID(filingID string, seq int) string {
	return fmt.Sprintf("%s-%d", filingID, seq)
}

// SplitText splits text into consecutive windows of at most maxLen
// characters. Each window after the first starts overlap characters before
// the previous window's end, so boundary context is duplicated into both
// neighbors. Cuts prefer the nearest preceding whitespace within a small
// lookback window to avoid splitting mid-word.
//
// Splitting is deterministic: identical (text, maxLen, overlap) always yields
// identical boundaries and ids. Empty text yields no chunks.
func SplitText(filingID, sourceURL, text string, maxLen, overlap int) ([]Chunk, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("filing %s: %w", filingID, ErrMissingSource)
	}
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	if overlap < 0 || overlap >= maxLen {
		return nil, fmt.Errorf("invalid overlap %d for max length %d", overlap, maxLen)
	}
	if len(text) == 0 {
		return []Chunk{}, nil
	}

	// Lookback window for the whitespace boundary search.
	lookback := maxLen / 10
	if lookback > 80 {
		lookback = 80
	}

	var chunks []Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + maxLen
		if end >= len(text) {
			end = len(text)
		} else if cut := lastSpaceBefore(text, start+overlap, end, lookback); cut > 0 {
			// Never cut inside the overlap region: progress must stay positive.
			end = cut
		} else {
			// Hard cut: back off to a rune boundary so no chunk carries a
			// torn multi-byte character.
			for end > start+overlap+1 && !utf8.RuneStart(text[end]) {
				end--
			}
		}

		chunks = append(chunks, Chunk{
			ID:            chunkID(filingID, seq),
			Text:          text[start:end],
			FilingID:      filingID,
			SourceURL:     sourceURL,
			SequenceIndex: seq,
		})

		if end == len(text) {
			break
		}
		start = end - overlap
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
	}

	return chunks, nil
}

// lastSpaceBefore scans backwards from end for an ASCII whitespace boundary,
// giving up after lookback bytes or at the floor position. Only single-byte
// whitespace qualifies; bytes inside multi-byte runes can alias whitespace
// code points (0xA0 is both a UTF-8 continuation byte and NBSP). Returns 0
// if no acceptable boundary exists (caller hard-cuts).
func lastSpaceBefore(text string, floor, end, lookback int) int {
	limit := end - lookback
	if limit <= floor {
		limit = floor + 1
	}
	for i := end - 1; i >= limit; i-- {
		if text[i] < utf8.RuneSelf && unicode.IsSpace(rune(text[i])) {
			return i + 1
		}
	}
	return 0
}
