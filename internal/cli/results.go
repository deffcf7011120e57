package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chartbracket/internal/service"
)

var resultsCmd = &cobra.Command{
	Use:   "results SESSION_ID",
	Short: "Show the verdicts and ranking of a session",
	Long: `Show what was rated in a session and, once its tournament is done,
the final ranking.

Examples:
  chartbracket results 3f2b6c1e-8a4d-4c1f-9d0e-2b7a5f6c8e91
  chartbracket results 3f2b6c1e-8a4d-4c1f-9d0e-2b7a5f6c8e91 -v`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func runResults(cmd *cobra.Command, args []string) error {
	res, err := apiClient.Results(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}
	printResults(os.Stdout, res, verbose)
	return nil
}

func printResults(w io.Writer, res *service.Results, detailed bool) {
	t := defaultTheme
	fmt.Fprintf(w, "Session %s\n\n", res.SessionID)
	fmt.Fprintf(w, "  Charts rated: %d\n", res.TotalCharts)
	fmt.Fprintf(w, "  Green:        %s\n", t.greenStyle().Render(fmt.Sprint(res.GreenCount)))
	fmt.Fprintf(w, "  Red:          %s\n", t.redStyle().Render(fmt.Sprint(res.RedCount)))

	if detailed && len(res.Choices) > 0 {
		fmt.Fprintln(w, "\nVerdicts:")
		for _, c := range res.Choices {
			fmt.Fprintf(w, "  %3d. %-14s %s\n", c.ChartIndex+1, c.Chart.Symbol, t.verdict(c.Verdict))
		}
	}

	if len(res.Podium) == 0 {
		return
	}
	fmt.Fprintln(w, "\n"+t.titleStyle().Render("Ranking:"))
	for i, ref := range res.Podium {
		fmt.Fprintf(w, "  %d. %-14s $%s (%s%%)\n", i+1, ref.Symbol, ref.Price, ref.Change24h)
	}
}
