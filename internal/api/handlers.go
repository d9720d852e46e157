package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"marketintel/pkg/intel"
)

// maxRequestBody limits intelligence request bodies to 1MB.
const maxRequestBody = 1 << 20

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// intelligence grounds the caller's prompts in live market data and returns
// the model's JSON reply as the whole response body.
func (h *handler) intelligence(w http.ResponseWriter, r *http.Request) {
	setIntelligenceCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var payload intel.Request
	if err := decodeJSON(w, r, &payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	addLogAttrs(w, "mode", payload.Mode, "tickers", payload.Tickers)

	result, stats, err := h.svc.RunWithStats(r.Context(), payload)
	addLogAttrs(w, runStatsAttrs(stats)...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// runStatsAttrs lists the generation fields of stats that were reached.
func runStatsAttrs(stats intel.RunStats) []any {
	if stats.Mode == "" {
		return nil
	}
	attrs := []any{"context_bytes", stats.ContextBytes}
	if stats.Attempts > 0 {
		attrs = append(attrs,
			"model", stats.Model,
			"attempts", stats.Attempts,
			"finish_reason", stats.FinishReason,
		)
	}
	return attrs
}

func setIntelligenceCORSHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
}

// decodeJSON reads a bounded JSON body. An empty body decodes to the zero
// value so field validation reports what is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
