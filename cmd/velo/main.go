package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/turfline/velo/internal/enginerun"
)

const (
	appName = "velo"
	version = "v12.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Deterministic race decision engine with an audit trail",
		Version: version,
		Long: `velo runs a deterministic decision pipeline over pre-race data:
chaos and manipulation signals, opponent models, a leakage firewall, a
Top-4 ranker and a learning gate, with every verdict persisted as a
replayable engine run. Governance review happens through the serve API.`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to yaml configuration (defaults apply when empty)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newShadowCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGreenlightCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the engine and pipeline versions",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (pipeline %s)\n", appName, version, enginerun.PipelineVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
