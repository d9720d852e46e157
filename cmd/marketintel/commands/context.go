package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"marketintel/internal/config"
	"marketintel/pkg/intel"
)

func newContextCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "context SYMBOL...",
		Short: "Print the market-data block a request would inject",
		Long: `Fetch live market data and print the labeled context block that
POST /api/intelligence appends to the system prompt.

Modes: portfolio-construction (1-10 symbols), comparison (2), single-node (1).

Example:
  marketintel context --mode comparison MSFT AAPL`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := intel.ParseMode(mode)
			if m == intel.ModeUnrecognized {
				return fmt.Errorf("unknown mode %q", mode)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Finnhub.APIKey == "" {
				return errors.New("FINNHUB_API_KEY not configured")
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			market := intel.NewFinnhubClient(intel.FinnhubOptions{
				APIKey:      cfg.Finnhub.APIKey,
				BaseURL:     cfg.Finnhub.BaseURL,
				HTTPTimeout: cfg.Finnhub.HTTPTimeout,
				Logger:      logger,
			})

			block, err := intel.AssembleContext(cmd.Context(), market, m, intel.NormalizeSymbols(args))
			if err != nil {
				return err
			}
			if block == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "no context: %s does not take %d symbol(s)\n", m, len(args))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), block)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "single-node", "portfolio-construction, comparison or single-node")
	return cmd
}
