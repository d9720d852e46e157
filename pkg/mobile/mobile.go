// Package mobile exposes the intelligence pipeline through gomobile-friendly
// signatures: strings in, JSON strings out.
package mobile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"marketintel/pkg/intel"
)

// requestTimeout bounds one IntelligenceJSON call, retries included.
const requestTimeout = 6 * time.Minute

// Client wraps an intel.Service for gomobile bindings.
type Client struct {
	svc *intel.Service
}

// Open creates a client against the public Finnhub and Gemini endpoints.
// Missing keys are reported by each call, not here.
func Open(marketKey, modelKey string) (*Client, error) {
	return OpenWithEndpoints(marketKey, modelKey, "", "")
}

// OpenWithEndpoints is Open with explicit base URLs; empty values use the
// public endpoints.
func OpenWithEndpoints(marketKey, modelKey, marketBaseURL, modelBaseURL string) (*Client, error) {
	svc := intel.NewService(intel.Options{
		FinnhubAPIKey:  marketKey,
		FinnhubBaseURL: marketBaseURL,
		GeminiAPIKey:   modelKey,
		GeminiBaseURL:  modelBaseURL,
	})
	return &Client{svc: svc}, nil
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

// IntelligenceJSON runs one request. requestJSON has the same shape as the
// HTTP body; the result is the model's JSON. Errors carry a JSON envelope
// matching the HTTP error bodies.
func (c *Client) IntelligenceJSON(requestJSON string) (string, error) {
	if c == nil || c.svc == nil {
		return "", errors.New(`{"error":"client not open"}`)
	}
	var req intel.Request
	if strings.TrimSpace(requestJSON) != "" {
		if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
			return "", envelopeError(intel.WrapError(intel.ErrCodeInvalidInput, "Invalid JSON body", err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := c.svc.Run(ctx, req)
	if err != nil {
		return "", envelopeError(err)
	}
	return marshalJSON(result)
}

// ContextJSON returns the labeled market-data block for a mode and a
// comma-separated symbol list.
func (c *Client) ContextJSON(mode, symbolsCSV string) (string, error) {
	if c == nil || c.svc == nil {
		return "", errors.New(`{"error":"client not open"}`)
	}
	if err := c.svc.CheckCredentials(); err != nil {
		return "", envelopeError(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	symbols := intel.NormalizeSymbols(strings.Split(symbolsCSV, ","))
	block, err := intel.AssembleContext(ctx, c.svc.MarketData(), intel.ParseMode(mode), symbols)
	if err != nil {
		return "", envelopeError(err)
	}
	return block, nil
}

// MetricsJSON computes derived metrics for a JSON array of closes.
func MetricsJSON(pricesJSON string) (string, error) {
	var prices []float64
	if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
		return "", err
	}
	return marshalJSON(intel.ComputeMetrics(prices))
}

// SanitizeJSON strips fences and prose from model text and returns compact JSON.
func SanitizeJSON(raw string) (string, error) {
	value, err := intel.SanitizeAndParse(raw)
	if err != nil {
		return "", envelopeError(err)
	}
	return marshalJSON(value)
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// envelopeError renders err as {"error": message, "errorCode": code, ...details}.
func envelopeError(err error) error {
	body := map[string]any{}
	if e, ok := intel.AsError(err); ok {
		for k, v := range e.Details {
			body[k] = v
		}
		body["error"] = e.Message
		body["errorCode"] = string(e.Code)
	} else {
		body["error"] = "Internal server error"
		body["message"] = err.Error()
	}
	data, mErr := json.Marshal(body)
	if mErr != nil {
		return err
	}
	return errors.New(string(data))
}
