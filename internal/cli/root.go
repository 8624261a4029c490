// Package cli implements the tempo command line: the scheduler daemon plus
// operator commands that talk to a running daemon's status API.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/tempo/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking TEMPO_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("TEMPO_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the tempo CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tempo",
		Short: "tempo schedules recurring data-pipeline jobs",
		Long:  "tempo fires tasks on their periods, resolves cross-task dependencies, and dispatches job instances to execution backends.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(flagLogLevel, flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "tempo server URL (or TEMPO_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newStatusCmd(),
		newInstancesCmd(),
		newCyclesCmd(),
	)

	return root
}
