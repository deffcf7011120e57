package cli

import (
	"errors"
	"fmt"
	"os"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var bracketCmd = &cobra.Command{
	Use:   "bracket NAME NAME...",
	Short: "Run an offline double-elimination bracket",
	Long: `Run a double-elimination bracket over the given names without a server.
Names are seeded in the order given; duplicates are dropped.

Examples:
  chartbracket bracket BTC ETH SOL DOGE
  chartbracket bracket tea coffee mate`,
	Args: cobra.MinimumNArgs(2),
	// No server is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runBracket,
}

func runBracket(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("bracket needs an interactive terminal")
	}

	a, err := newLocalArena(args)
	if err != nil {
		return fmt.Errorf("seed bracket: %w", err)
	}

	m := newPlayModel(defaultTheme, "")
	m.arena = a
	m.stage = stageTournament

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return fmt.Errorf("bracket UI error: %w", err)
	}
	if pm, ok := final.(playModel); ok && pm.err != nil {
		return pm.err
	}
	return nil
}
