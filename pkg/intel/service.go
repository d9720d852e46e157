package intel

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// Request is the input to one intelligence call.
type Request struct {
	SystemPrompt string   `json:"systemPrompt"`
	UserPrompt   string   `json:"userPrompt"`
	Mode         string   `json:"mode,omitempty"`
	Tickers      []string `json:"tickers,omitempty"`
}

// UnmarshalJSON decodes the prompts strictly. A mode that is not a string
// and tickers that are not an array are dropped, as are non-string tickers;
// such a request runs without market context.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		SystemPrompt string          `json:"systemPrompt"`
		UserPrompt   string          `json:"userPrompt"`
		Mode         json.RawMessage `json:"mode"`
		Tickers      json.RawMessage `json:"tickers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Request{SystemPrompt: raw.SystemPrompt, UserPrompt: raw.UserPrompt}

	var mode string
	if json.Unmarshal(raw.Mode, &mode) == nil {
		r.Mode = mode
	}
	var items []json.RawMessage
	if json.Unmarshal(raw.Tickers, &items) == nil {
		for _, item := range items {
			var symbol string
			if len(item) > 0 && item[0] == '"' && json.Unmarshal(item, &symbol) == nil {
				r.Tickers = append(r.Tickers, symbol)
			}
		}
	}
	return nil
}

// Validate checks the mandatory prompt fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SystemPrompt) == "" || strings.TrimSpace(r.UserPrompt) == "" {
		return NewError(ErrCodeInvalidInput, "Missing required fields")
	}
	return nil
}

// Options controls Service initialization.
type Options struct {
	FinnhubAPIKey     string
	FinnhubBaseURL    string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiModel       string
	HTTPTimeout       time.Duration
	GenerationTimeout time.Duration
	Logger            *slog.Logger

	// Optional overrides, mainly for tests.
	MarketData MarketData
	Generator  Generator
}

// Service runs the intelligence pipeline. It holds configuration only and is
// safe for concurrent use.
type Service struct {
	finnhubKey string
	geminiKey  string
	market     MarketData
	generator  Generator
	logger     *slog.Logger
}

// NewService wires the market-data gateway and generation client.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	market := opts.MarketData
	if market == nil {
		market = NewFinnhubClient(FinnhubOptions{
			APIKey:      opts.FinnhubAPIKey,
			BaseURL:     opts.FinnhubBaseURL,
			HTTPTimeout: opts.HTTPTimeout,
			Logger:      logger,
		})
	}
	generator := opts.Generator
	if generator == nil {
		generator = NewGeminiClient(GeminiOptions{
			APIKey:         opts.GeminiAPIKey,
			BaseURL:        opts.GeminiBaseURL,
			Model:          opts.GeminiModel,
			AttemptTimeout: opts.GenerationTimeout,
			Logger:         logger,
		})
	}
	return &Service{
		finnhubKey: strings.TrimSpace(opts.FinnhubAPIKey),
		geminiKey:  strings.TrimSpace(opts.GeminiAPIKey),
		market:     market,
		generator:  generator,
		logger:     logger,
	}
}

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger {
	return s.logger
}

// MarketData returns the configured gateway.
func (s *Service) MarketData() MarketData {
	return s.market
}

// CheckCredentials reports the first missing upstream key.
func (s *Service) CheckCredentials() error {
	if s.geminiKey == "" {
		return NewError(ErrCodeConfiguration, "GEMINI_API_KEY not configured on server")
	}
	if s.finnhubKey == "" {
		return NewError(ErrCodeConfiguration, "FINNHUB_API_KEY not configured on server")
	}
	return nil
}

// RunStats records how far one Run got. Fields stay zero for stages that
// were not reached.
type RunStats struct {
	Mode         string
	Symbols      []string
	ContextBytes int
	Model        string
	Attempts     int
	FinishReason string
}

// Run validates the request, grounds the system prompt in market data,
// calls the model and returns its parsed JSON reply.
func (s *Service) Run(ctx context.Context, req Request) (any, error) {
	result, _, err := s.RunWithStats(ctx, req)
	return result, err
}

// RunWithStats is Run plus the per-stage stats, returned on failure too.
func (s *Service) RunWithStats(ctx context.Context, req Request) (any, RunStats, error) {
	var stats RunStats
	if err := req.Validate(); err != nil {
		return nil, stats, err
	}
	if err := s.CheckCredentials(); err != nil {
		return nil, stats, err
	}

	mode := ParseMode(req.Mode)
	symbols := NormalizeSymbols(req.Tickers)
	stats.Mode = mode.String()
	stats.Symbols = symbols
	marketContext, err := AssembleContext(ctx, s.market, mode, symbols)
	if err != nil {
		return nil, stats, err
	}
	stats.ContextBytes = len(marketContext)
	s.logger.Info("market context assembled",
		"mode", stats.Mode,
		"symbols", symbols,
		"context_bytes", stats.ContextBytes,
	)

	generation, err := s.generator.Generate(ctx, BuildSystemPrompt(req.SystemPrompt, marketContext), req.UserPrompt)
	if err != nil {
		return nil, stats, err
	}
	stats.Model = generation.Model
	stats.Attempts = generation.Attempts
	stats.FinishReason = generation.FinishReason
	s.logger.Info("generation completed",
		"model", generation.Model,
		"attempts", generation.Attempts,
		"finish_reason", generation.FinishReason,
		"text_bytes", len(generation.Text),
	)

	result, err := SanitizeAndParse(generation.Text)
	if err != nil {
		if e, ok := AsError(err); ok && e.Code == ErrCodeEmptyContent {
			e.WithDetail("finishReason", generation.FinishReason)
		}
		if IsErrorCode(err, ErrCodeMalformedJSON) {
			s.logger.Error("model returned malformed JSON", "raw_text", generation.Text)
		}
		return nil, stats, err
	}
	return result, stats, nil
}
