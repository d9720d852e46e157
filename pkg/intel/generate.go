package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Generation settings. The values are untuned and kept for parity with the
// dashboard's prompts; they are candidates for recalibration.
const (
	DefaultGeminiModel     = "gemini-2.5-flash-preview-09-2025"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	GenerationTemperature  = float32(0.1)
	GenerationMaxOutTokens = int32(2048)

	defaultAttemptTimeout = 60 * time.Second
)

// Generator sends a prompt pair to a language model and returns its raw text.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (*Generation, error)
}

// Generation is the raw model output before sanitization.
type Generation struct {
	Text         string
	Model        string
	FinishReason string
	Attempts     int
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	AttemptTimeout time.Duration
	Backoff        Backoff
	Logger         *slog.Logger
}

// GeminiClient implements Generator with the Gemini generateContent API.
type GeminiClient struct {
	apiKey         string
	baseURL        string
	model          string
	attemptTimeout time.Duration
	backoff        Backoff
	logger         *slog.Logger
	sleep          sleepFunc
}

// NewGeminiClient creates a generation client.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	backoff := opts.Backoff
	if backoff.MaxAttempts == 0 {
		backoff = DefaultBackoff
	}
	return &GeminiClient{
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        strings.TrimSpace(opts.BaseURL),
		model:          model,
		attemptTimeout: defaultDuration(opts.AttemptTimeout, defaultAttemptTimeout),
		backoff:        backoff,
		logger:         logger,
		sleep:          sleepContext,
	}
}

// Generate requests a JSON-only completion. Transport failures are retried
// on the backoff schedule; an empty candidate list or candidate content is
// reported as ErrCodeEmptyGeneration without retrying.
func (g *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (*Generation, error) {
	if g.apiKey == "" {
		return nil, NewError(ErrCodeConfiguration, "GEMINI_API_KEY not configured on server")
	}
	clientConfig, err := buildGeminiClientConfig(g.baseURL, g.apiKey)
	if err != nil {
		return nil, WrapError(ErrCodeInternal, "invalid gemini endpoint", err)
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, WrapError(ErrCodeInternal, "create gemini client failed", err)
	}

	g.logger.Debug("ai request prompt",
		"model", g.model,
		"system_prompt", systemPrompt,
		"user_prompt", userPrompt,
	)

	requestConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:      genai.Ptr(GenerationTemperature),
		MaxOutputTokens:  GenerationMaxOutTokens,
		ResponseMIMEType: "application/json",
	}
	contents := genai.Text(userPrompt)

	attempts := g.backoff.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := g.generateOnce(ctx, client, contents, requestConfig)
		if err == nil {
			generation, err := interpretResponse(response, g.model)
			if generation != nil {
				generation.Attempts = attempt
			}
			return generation, err
		}
		lastErr = err
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		delay := g.backoff.Delay(attempt)
		g.logger.Warn("gemini request failed; retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"err", err,
		)
		if err := g.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	g.logger.Error("gemini request failed", "attempts", attempts, "err", lastErr)
	return nil, generationUnavailable(lastErr)
}

func (g *GeminiClient) generateOnce(ctx context.Context, client *genai.Client, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()
	return client.Models.GenerateContent(attemptCtx, g.model, contents, config)
}

func interpretResponse(response *genai.GenerateContentResponse, requestedModel string) (*Generation, error) {
	if response == nil || len(response.Candidates) == 0 {
		e := NewError(ErrCodeEmptyGeneration, "Model returned empty response")
		if response != nil {
			e.WithDetail("usageMetadata", response.UsageMetadata)
		}
		return nil, e
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		e := NewError(ErrCodeEmptyGeneration, "Model returned empty content")
		if candidate != nil {
			e.WithDetail("finishReason", string(candidate.FinishReason))
		}
		return nil, e
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		text.WriteString(part.Text)
	}

	model := strings.TrimSpace(response.ModelVersion)
	if model == "" {
		model = requestedModel
	}
	return &Generation{
		Text:         text.String(),
		Model:        model,
		FinishReason: string(candidate.FinishReason),
	}, nil
}

func generationUnavailable(err error) *Error {
	e := WrapError(ErrCodeGenerationUnavailable, "Gemini API error", err)
	if apiErr, ok := asAPIError(err); ok {
		e.Status = apiErr.Code
		e.Details = map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"status":  apiErr.Status,
		}
		if len(apiErr.Details) > 0 {
			e.Details["details"] = apiErr.Details
		}
		return e
	}
	if err != nil {
		e.Details = map[string]any{"message": err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Status = http.StatusGatewayTimeout
	}
	return e
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func buildGeminiClientConfig(endpoint, apiKey string) (*genai.ClientConfig, error) {
	baseURL, apiVersion, err := parseGeminiBaseURLAndVersion(endpoint)
	if err != nil {
		return nil, err
	}
	return &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		},
	}, nil
}

// parseGeminiBaseURLAndVersion splits ".../v1beta" style endpoints into the
// SDK's base URL and API version.
func parseGeminiBaseURLAndVersion(endpoint string) (string, string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = DefaultGeminiBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("invalid gemini endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("invalid gemini endpoint scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("invalid gemini endpoint host")
	}

	path := strings.Trim(parsed.Path, "/")
	var segments []string
	if path != "" {
		segments = strings.Split(path, "/")
	}

	apiVersion := "v1beta"
	prefix := segments
	for idx, segment := range segments {
		if strings.HasPrefix(strings.ToLower(segment), "v1") {
			apiVersion = segment
			prefix = segments[:idx]
			break
		}
	}

	baseURL := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	if basePath := strings.Join(prefix, "/"); basePath != "" {
		baseURL += basePath + "/"
	}
	return baseURL, apiVersion, nil
}
