package intel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// routeDoer implements HTTPDoer by dispatching on the request path.
type routeDoer struct {
	mu       sync.Mutex
	handlers map[string]func(*http.Request) (int, string)
	requests []*http.Request
	err      error
}

func newRouteDoer() *routeDoer {
	return &routeDoer{handlers: map[string]func(*http.Request) (int, string){}}
}

func (d *routeDoer) handle(path string, status int, body string) {
	d.handlers[path] = func(*http.Request) (int, string) { return status, body }
}

func (d *routeDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	path := strings.TrimPrefix(req.URL.Path, "/api/v1")
	h, ok := d.handlers[path]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(`{"error":"not found"}`)),
			Header:     make(http.Header),
		}, nil
	}
	status, body := h(req)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}, nil
}

func (d *routeDoer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

// fakeMarket implements MarketData in memory and counts calls.
type fakeMarket struct {
	mu           sync.Mutex
	prices       map[string][]float64
	quoteErr     map[string]error
	quoteCalls   int
	profileCalls int
	candleCalls  int
	candleCounts []int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{prices: map[string][]float64{}, quoteErr: map[string]error{}}
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (QuoteSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if err := f.quoteErr[symbol]; err != nil {
		return QuoteSnapshot{}, err
	}
	price := NewAmount(100)
	return QuoteSnapshot{Ticker: symbol, Current: &price}, nil
}

func (f *fakeMarket) Profile(_ context.Context, symbol string) CompanyProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	return CompanyProfile{Ticker: symbol, Name: symbol + " Corp"}
}

func (f *fakeMarket) DailyCandles(_ context.Context, symbol string, count int) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	f.candleCounts = append(f.candleCounts, count)
	return f.prices[symbol]
}

func (f *fakeMarket) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls + f.profileCalls + f.candleCalls
}

// fakeGenerator implements Generator with a canned reply.
type fakeGenerator struct {
	mu           sync.Mutex
	text         string
	finishReason string
	err          error
	calls        int
	systemPrompt string
	userPrompt   string
}

func (g *fakeGenerator) Generate(_ context.Context, systemPrompt, userPrompt string) (*Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.systemPrompt = systemPrompt
	g.userPrompt = userPrompt
	if g.err != nil {
		return nil, g.err
	}
	return &Generation{Text: g.text, Model: "fake", FinishReason: g.finishReason, Attempts: 1}, nil
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
