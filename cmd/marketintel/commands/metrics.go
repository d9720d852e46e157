package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"marketintel/pkg/intel"
)

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [PRICE...]",
		Short: "Compute trend and volatility scores for a close series",
		Long: `Compute the derived metrics for an oldest-to-newest close series.
Prices come from the arguments, or from stdin when none are given.
Arguments are never parsed as flags, so negative prices work.

Example:
  marketintel metrics 100 101 102 103 104
  marketintel metrics -1 2 3`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && (args[0] == "-h" || args[0] == "--help") {
				return cmd.Help()
			}
			if len(args) > 0 && args[0] == "--" {
				args = args[1:]
			}
			prices, err := parsePrices(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(intel.ComputeMetrics(prices))
		},
	}
}

func parsePrices(args []string, stdin io.Reader) ([]float64, error) {
	fields := args
	if len(fields) == 0 {
		scanner := bufio.NewScanner(stdin)
		scanner.Split(bufio.ScanWords)
		for scanner.Scan() {
			fields = append(fields, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read prices: %w", err)
		}
	}
	prices := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q", field)
		}
		prices = append(prices, v)
	}
	return prices, nil
}
