package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Mode selects how market data is gathered for the prompt.
type Mode int

const (
	ModeUnrecognized Mode = iota
	ModePortfolioConstruction
	ModeComparison
	ModeSingleNode
)

// MaxPortfolioSymbols caps how many symbols a portfolio request may ground.
const MaxPortfolioSymbols = 10

// Candle windows per mode.
const (
	portfolioCandleDays = 7
	nodeCandleDays      = 8
)

// Context block labels.
const (
	labelPortfolio = "REAL_MARKET_DATA_JSON"
	labelAlpha     = "NODE_ALPHA_REAL"
	labelBeta      = "NODE_BETA_REAL"
	labelNode      = "NODE_REAL"
)

const groundingInstruction = "\n\nYou are given JSON context with real market data and discrete metrics.\n" +
	"Use ONLY that context for numeric reasoning. Do not invent numbers.\n\n"

var modeNames = map[string]Mode{
	"portfolio-construction": ModePortfolioConstruction,
	"comparison":             ModeComparison,
	"single-node":            ModeSingleNode,
	// Names used by the dashboard views.
	"architect":  ModePortfolioConstruction,
	"comparator": ModeComparison,
	"pathfinder": ModeSingleNode,
}

// ParseMode maps a request mode string onto a Mode. Unknown or empty values
// map to ModeUnrecognized.
func ParseMode(raw string) Mode {
	if m, ok := modeNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return m
	}
	return ModeUnrecognized
}

func (m Mode) String() string {
	switch m {
	case ModePortfolioConstruction:
		return "portfolio-construction"
	case ModeComparison:
		return "comparison"
	case ModeSingleNode:
		return "single-node"
	default:
		return "unrecognized"
	}
}

// NormalizeSymbols trims and upper-cases symbols, dropping blanks and
// duplicates while keeping first-seen order.
func NormalizeSymbols(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// AssembleContext builds the labeled market-data block for the given mode.
// A symbol count that does not fit the mode yields an empty block and the
// request proceeds without grounding. Only an essential quote failure errors.
func AssembleContext(ctx context.Context, md MarketData, mode Mode, symbols []string) (string, error) {
	switch mode {
	case ModePortfolioConstruction:
		if len(symbols) == 0 {
			return "", nil
		}
		if len(symbols) > MaxPortfolioSymbols {
			symbols = symbols[:MaxPortfolioSymbols]
		}
		snapshots := make([]SymbolSnapshot, len(symbols))
		g, gctx := errgroup.WithContext(ctx)
		for i, symbol := range symbols {
			g.Go(func() error {
				snap, err := FetchSnapshot(gctx, md, symbol, portfolioCandleDays)
				if err != nil {
					return err
				}
				snapshots[i] = snap
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
		return renderBlocks(labeledBlock{labelPortfolio, snapshots})

	case ModeComparison:
		if len(symbols) != 2 {
			return "", nil
		}
		var alpha, beta SymbolSnapshot
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			alpha, err = FetchSnapshot(gctx, md, symbols[0], nodeCandleDays)
			return err
		})
		g.Go(func() error {
			var err error
			beta, err = FetchSnapshot(gctx, md, symbols[1], nodeCandleDays)
			return err
		})
		if err := g.Wait(); err != nil {
			return "", err
		}
		return renderBlocks(labeledBlock{labelAlpha, alpha}, labeledBlock{labelBeta, beta})

	case ModeSingleNode:
		if len(symbols) != 1 {
			return "", nil
		}
		snap, err := FetchSnapshot(ctx, md, symbols[0], nodeCandleDays)
		if err != nil {
			return "", err
		}
		return renderBlocks(labeledBlock{labelNode, snap})

	case ModeUnrecognized:
		return "", nil
	}
	return "", nil
}

// BuildSystemPrompt appends the grounding instruction and the market-data
// block to the caller's system prompt.
func BuildSystemPrompt(systemPrompt, marketContext string) string {
	return systemPrompt + groundingInstruction + marketContext
}

type labeledBlock struct {
	label string
	value any
}

func renderBlocks(blocks ...labeledBlock) (string, error) {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b.value); err != nil {
			return "", fmt.Errorf("encode %s: %w", b.label, err)
		}
		lines = append(lines, b.label+" = "+strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(lines, "\n"), nil
}
