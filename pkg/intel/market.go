package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFinnhubBaseURL is the public Finnhub REST root.
	DefaultFinnhubBaseURL = "https://finnhub.io/api/v1"

	// candleBufferDays pads the candle window so weekends and holidays
	// still leave enough trading days to trim from.
	candleBufferDays = 5

	// maxResponseSize limits market-data responses to 1MB.
	maxResponseSize = 1 << 20
)

// HTTPDoer is an interface for making HTTP requests. It enables dependency
// injection for testing without network calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// MarketData fetches per-symbol market data. Only Quote may fail; Profile and
// DailyCandles degrade to a bare profile and an empty series.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (QuoteSnapshot, error)
	Profile(ctx context.Context, symbol string) CompanyProfile
	DailyCandles(ctx context.Context, symbol string, count int) []float64
}

// QuoteSnapshot is a point-in-time quote. Any price may be missing upstream.
type QuoteSnapshot struct {
	Ticker    string  `json:"ticker"`
	Current   *Amount `json:"current,omitempty"`
	Open      *Amount `json:"open,omitempty"`
	High      *Amount `json:"high,omitempty"`
	Low       *Amount `json:"low,omitempty"`
	PrevClose *Amount `json:"prevClose,omitempty"`
}

// CompanyProfile is optional enrichment for a symbol.
type CompanyProfile struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Country  string `json:"country,omitempty"`
	Sector   string `json:"sector,omitempty"`
	IPO      string `json:"ipo,omitempty"`
}

// SymbolSnapshot is the merged quote, profile and metrics for one symbol, in
// the shape injected into the model prompt.
type SymbolSnapshot struct {
	Ticker    string  `json:"ticker"`
	Current   *Amount `json:"current,omitempty"`
	Open      *Amount `json:"open,omitempty"`
	High      *Amount `json:"high,omitempty"`
	Low       *Amount `json:"low,omitempty"`
	PrevClose *Amount `json:"prevClose,omitempty"`
	Name      string  `json:"name,omitempty"`
	Exchange  string  `json:"exchange,omitempty"`
	Country   string  `json:"country,omitempty"`
	Sector    string  `json:"sector,omitempty"`
	IPO       string  `json:"ipo,omitempty"`
	DerivedMetrics
}

// FinnhubOptions configures a FinnhubClient.
type FinnhubOptions struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
	HTTPClient  HTTPDoer // Optional: inject custom client for testing
	Logger      *slog.Logger
	Now         func() time.Time
}

// FinnhubClient implements MarketData against the Finnhub REST API.
type FinnhubClient struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
	now     func() time.Time
}

// NewFinnhubClient creates a market-data gateway.
func NewFinnhubClient(opts FinnhubOptions) *FinnhubClient {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: defaultDuration(opts.HTTPTimeout, 10*time.Second),
		}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultFinnhubBaseURL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FinnhubClient{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
		now:     now,
	}
}

type finnhubQuote struct {
	Current   *float64 `json:"c"`
	Open      *float64 `json:"o"`
	High      *float64 `json:"h"`
	Low       *float64 `json:"l"`
	PrevClose *float64 `json:"pc"`
}

type finnhubProfile struct {
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Country  string `json:"country"`
	Industry string `json:"finnhubIndustry"`
	IPO      string `json:"ipo"`
}

type finnhubCandles struct {
	Status string    `json:"s"`
	Close  []float64 `json:"c"`
}

// Quote fetches the latest quote. Failure is returned to the caller because a
// mode that asks for market data cannot ground the model without it.
func (f *FinnhubClient) Quote(ctx context.Context, symbol string) (QuoteSnapshot, error) {
	body, status, err := f.get(ctx, "/quote", url.Values{"symbol": {symbol}})
	if err != nil {
		return QuoteSnapshot{}, upstreamError(symbol, status, err)
	}
	var q finnhubQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return QuoteSnapshot{}, upstreamError(symbol, status, fmt.Errorf("decode quote: %w", err))
	}
	return QuoteSnapshot{
		Ticker:    symbol,
		Current:   amountPtr(q.Current),
		Open:      amountPtr(q.Open),
		High:      amountPtr(q.High),
		Low:       amountPtr(q.Low),
		PrevClose: amountPtr(q.PrevClose),
	}, nil
}

// Profile fetches company details, returning only the ticker on any failure.
func (f *FinnhubClient) Profile(ctx context.Context, symbol string) CompanyProfile {
	fallback := CompanyProfile{Ticker: symbol}
	body, _, err := f.get(ctx, "/stock/profile2", url.Values{"symbol": {symbol}})
	if err != nil {
		f.logger.Warn("profile fetch failed", "symbol", symbol, "err", err)
		return fallback
	}
	var p finnhubProfile
	if err := json.Unmarshal(body, &p); err != nil {
		f.logger.Warn("profile decode failed", "symbol", symbol, "err", err)
		return fallback
	}
	return CompanyProfile{
		Ticker:   symbol,
		Name:     p.Name,
		Exchange: p.Exchange,
		Country:  p.Country,
		Sector:   p.Industry,
		IPO:      p.IPO,
	}
}

// DailyCandles returns up to count most recent daily closes, oldest first.
// Any failure yields an empty series.
func (f *FinnhubClient) DailyCandles(ctx context.Context, symbol string, count int) []float64 {
	if count <= 0 {
		return []float64{}
	}
	to := f.now().Unix()
	from := to - int64(24*60*60*(count+candleBufferDays))
	body, _, err := f.get(ctx, "/stock/candle", url.Values{
		"symbol":     {symbol},
		"resolution": {"D"},
		"from":       {strconv.FormatInt(from, 10)},
		"to":         {strconv.FormatInt(to, 10)},
	})
	if err != nil {
		f.logger.Warn("candle fetch failed", "symbol", symbol, "err", err)
		return []float64{}
	}
	var c finnhubCandles
	if err := json.Unmarshal(body, &c); err != nil {
		f.logger.Warn("candle decode failed", "symbol", symbol, "err", err)
		return []float64{}
	}
	if c.Status != "ok" || c.Close == nil {
		f.logger.Warn("candle data unavailable", "symbol", symbol, "status", c.Status)
		return []float64{}
	}
	closes := c.Close
	if len(closes) > count {
		closes = closes[len(closes)-count:]
	}
	return closes
}

// get issues a GET against the provider and returns the body and status code.
// The status is 0 when the request never produced a response.
func (f *FinnhubClient) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	query.Set("token", f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, token included.
		if urlErr, ok := err.(*url.Error); ok {
			return nil, 0, fmt.Errorf("%s %s: %w", urlErr.Op, path, urlErr.Err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func upstreamError(symbol string, status int, err error) *Error {
	message := fmt.Sprintf("quote error for %s", symbol)
	if status != 0 {
		message = fmt.Sprintf("quote error for %s (%d)", symbol, status)
	}
	e := WrapError(ErrCodeUpstreamData, message, err)
	e.Status = status
	return e.WithDetail("symbol", symbol)
}

// FetchSnapshot gathers quote, profile and candles for one symbol concurrently
// and merges them with the derived metrics.
func FetchSnapshot(ctx context.Context, md MarketData, symbol string, candleCount int) (SymbolSnapshot, error) {
	var (
		quote   QuoteSnapshot
		profile CompanyProfile
		prices  []float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quote, err = md.Quote(gctx, symbol)
		return err
	})
	g.Go(func() error {
		profile = md.Profile(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		prices = md.DailyCandles(gctx, symbol, candleCount)
		return nil
	})
	if err := g.Wait(); err != nil {
		return SymbolSnapshot{}, err
	}
	return mergeSnapshot(symbol, quote, profile, ComputeMetrics(prices)), nil
}

func mergeSnapshot(symbol string, q QuoteSnapshot, p CompanyProfile, m DerivedMetrics) SymbolSnapshot {
	return SymbolSnapshot{
		Ticker:         symbol,
		Current:        q.Current,
		Open:           q.Open,
		High:           q.High,
		Low:            q.Low,
		PrevClose:      q.PrevClose,
		Name:           p.Name,
		Exchange:       p.Exchange,
		Country:        p.Country,
		Sector:         p.Sector,
		IPO:            p.IPO,
		DerivedMetrics: m,
	}
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
