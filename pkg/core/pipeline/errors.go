package pipeline

import (
	"context"
	"errors"
	"fmt"

	"finpulse/pkg/core/ingest"
	"finpulse/pkg/core/rag"
	"finpulse/pkg/core/store"
)

// ErrorKind classifies a pipeline failure for callers (CLI exit codes,
// HTTP status mapping).
type ErrorKind string

const (
	KindNotFound     ErrorKind = "ticker_not_found"
	KindNoFilings    ErrorKind = "no_filings"
	KindInvalidQuery ErrorKind = "invalid_query"
	KindStorage      ErrorKind = "storage"
	KindUpstream     ErrorKind = "upstream"
	KindGeneration   ErrorKind = "generation"
	KindTimeout      ErrorKind = "timeout"
)

// Failure wraps an error with its classification and the pipeline state it
// occurred in.
type Failure struct {
	Kind  ErrorKind
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline failed during %s (%s): %v", f.State, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// classify maps an underlying error to its failure kind based on the known
// sentinel errors of each stage.
func classify(state State, err error) *Failure {
	kind := KindGeneration
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, ingest.ErrTickerNotFound):
		kind = KindNotFound
	case errors.Is(err, ingest.ErrUpstream):
		kind = KindUpstream
	case errors.Is(err, rag.ErrEmptyQuery):
		kind = KindInvalidQuery
	case errors.Is(err, rag.ErrMissingSource):
		kind = KindGeneration
	case errors.Is(err, store.ErrCorrupt):
		kind = KindStorage
	case errors.Is(err, errNoFilings):
		kind = KindNoFilings
	case errors.Is(err, errInvalidScope):
		kind = KindInvalidQuery
	}
	if kind == KindGeneration && state == StateChunking {
		// Chunking only touches the splitter and the store; whatever the
		// store wrapped (file I/O, rename, DB) is a storage failure.
		kind = KindStorage
	}
	return &Failure{Kind: kind, State: state, Err: err}
}

var (
	errNoFilings    = errors.New("no filings of the requested form were found")
	errInvalidScope = errors.New("unrecognized report scope")
)
