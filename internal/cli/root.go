// Package cli provides the command-line interface for chartbracket.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chartbracket/internal/client"
	"github.com/raphaelgruber/chartbracket/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and API client
	cfg       config.Config
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chartbracket",
	Short: "Rate charts, then rank your favourites in a tournament",
	Long: `chartbracket shows you a list of token charts one at a time. Rate each one
green or red; the green ones then face off in a double-elimination bracket
until a podium of your three favourites is left.

Most commands talk to a running chartbracket-server (see --server).
'chartbracket bracket' runs a tournament offline.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		url := cfg.ServerURL
		if serverURL != "" {
			url = serverURL
		}
		apiClient = client.New(url)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default from CHARTBRACKET_SERVER_URL)")

	rootCmd.AddCommand(trendingCmd)
	rootCmd.AddCommand(tickersCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(bracketCmd)
}
