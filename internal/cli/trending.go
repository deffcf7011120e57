package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var trendingTickers bool

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Show the trending charts",
	Long: `Show the charts currently trending on the server's chart source.

With --tickers, print the trending ticker symbols instead and cache the
chart metadata on the server for a later 'play --trending-tickers'.

Examples:
  chartbracket trending
  chartbracket trending -v
  chartbracket trending --tickers`,
	Args: cobra.NoArgs,
	RunE: runTrending,
}

func init() {
	trendingCmd.Flags().BoolVar(&trendingTickers, "tickers", false, "print ticker symbols only")
}

func runTrending(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if trendingTickers {
		tickers, metadataID, err := apiClient.TrendingTickers(ctx)
		if err != nil {
			return fmt.Errorf("trending tickers: %w", err)
		}
		for _, t := range tickers {
			fmt.Println(t)
		}
		if verbose {
			fmt.Println(defaultTheme.hintStyle().Render("metadata: " + metadataID))
		}
		return nil
	}

	charts, err := apiClient.TrendingCharts(ctx)
	if err != nil {
		return fmt.Errorf("trending charts: %w", err)
	}
	if len(charts) == 0 {
		fmt.Println("No trending charts.")
		return nil
	}

	fmt.Printf("Trending (%d):\n\n", len(charts))
	for _, ch := range charts {
		fmt.Println("- " + defaultTheme.chartLine(ch.Chart))
		if verbose {
			fmt.Println("  " + defaultTheme.hintStyle().Render(ch.EmbedURL))
		}
	}
	return nil
}
