package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the marketintel command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketintel",
		Short: "Market-grounded LLM intelligence service",
		Long: `marketintel grounds dashboard prompts in live Finnhub market data
and returns the Gemini model's JSON answer.

Examples:
  marketintel serve --port 8000
  marketintel context --mode comparison MSFT AAPL
  marketintel metrics 100 101 102 103 104`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newContextCmd(), newMetricsCmd())
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
