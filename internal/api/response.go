package api

import (
	"encoding/json"
	"net/http"

	"marketintel/pkg/intel"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, map[string]any{"error": message})
}

// writeErrorBody writes an error envelope and records its message for the
// request log.
func writeErrorBody(w http.ResponseWriter, status int, body map[string]any) {
	if recorder, ok := w.(interface{ SetErrorMessage(string) }); ok {
		if message, ok := body["error"].(string); ok {
			recorder.SetErrorMessage(message)
		}
	}
	writeJSON(w, status, body)
}

// writeServiceError maps a pipeline error onto its HTTP status and body.
func writeServiceError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeErrorBody(w, status, body)
}

func errorResponse(err error) (int, map[string]any) {
	e, ok := intel.AsError(err)
	if !ok {
		return http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"message": err.Error(),
		}
	}

	switch e.Code {
	case intel.ErrCodeInvalidInput:
		return http.StatusBadRequest, map[string]any{"error": e.Message}

	case intel.ErrCodeConfiguration:
		return http.StatusInternalServerError, map[string]any{"error": e.Message}

	case intel.ErrCodeGenerationUnavailable:
		status := e.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		body := map[string]any{"error": e.Message}
		if len(e.Details) > 0 {
			body["details"] = e.Details
		}
		return status, body

	case intel.ErrCodeEmptyGeneration, intel.ErrCodeEmptyContent, intel.ErrCodeMalformedJSON:
		// Diagnostics sit beside the message at the top level.
		return http.StatusInternalServerError, withDetails(e.Message, e.Details)
	}

	return http.StatusInternalServerError, map[string]any{
		"error":   "Internal server error",
		"message": e.Message,
	}
}

func withDetails(message string, details map[string]any) map[string]any {
	body := make(map[string]any, len(details)+1)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = message
	return body
}
