// Package report exposes the report pipeline over HTTP.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finpulse/pkg/core/pipeline"
)

var orchestrator *pipeline.Orchestrator

// InitHandler wires the shared orchestrator used by all report requests.
func InitHandler(o *pipeline.Orchestrator) {
	orchestrator = o
}

type ReportRequest struct {
	Ticker          string `json:"ticker"`
	Scope           string `json:"scope"`
	Query           string `json:"query"`
	TopK            int    `json:"top_k"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

type ReportResponse struct {
	Report   *pipeline.Report `json:"report"`
	Markdown string           `json:"markdown"`
}

type errorResponse struct {
	Error string             `json:"error"`
	Kind  pipeline.ErrorKind `json:"kind,omitempty"`
	State pipeline.State     `json:"state,omitempty"`
}

// HandleGenerateReport runs the pipeline for a ticker and returns the
// assembled report as JSON plus rendered markdown.
func HandleGenerateReport(w http.ResponseWriter, r *http.Request) {
	// CORS
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "ticker is required"})
		return
	}

	opts := pipeline.Options{
		Scope:           req.Scope,
		Query:           req.Query,
		TopK:            req.TopK,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	fmt.Printf("[REPORT] Request: %s (scope=%s)\n", strings.ToUpper(req.Ticker), req.Scope)

	result, err := orchestrator.Run(r.Context(), req.Ticker, opts)
	if err != nil {
		var failure *pipeline.Failure
		if errors.As(err, &failure) {
			writeError(w, statusFor(failure.Kind), errorResponse{
				Error: failure.Error(),
				Kind:  failure.Kind,
				State: failure.State,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ReportResponse{
		Report:   result,
		Markdown: result.Render(),
	})
}

// statusFor maps a failure classification to an HTTP status code.
func statusFor(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindNotFound, pipeline.KindNoFilings:
		return http.StatusNotFound
	case pipeline.KindInvalidQuery:
		return http.StatusBadRequest
	case pipeline.KindUpstream:
		return http.StatusBadGateway
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
