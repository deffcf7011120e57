package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tickersLimit int

var tickersCmd = &cobra.Command{
	Use:   "tickers",
	Short: "List the largest coins as tickers",
	Long: `List the top coins by market cap as ticker symbols, largest first.

Examples:
  chartbracket tickers
  chartbracket tickers -n 50`,
	Args: cobra.NoArgs,
	RunE: runTickers,
}

func init() {
	tickersCmd.Flags().IntVarP(&tickersLimit, "limit", "n", 20, "max tickers")
}

func runTickers(cmd *cobra.Command, args []string) error {
	tickers, err := apiClient.TopTickers(context.Background(), tickersLimit)
	if err != nil {
		return fmt.Errorf("top tickers: %w", err)
	}
	if len(tickers) == 0 {
		fmt.Println("No tickers found.")
		return nil
	}
	for i, t := range tickers {
		fmt.Printf("%3d. %s\n", i+1, t)
	}
	return nil
}
