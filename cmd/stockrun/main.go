package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const version = "v1.0.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "stockrun",
		Short:   "Stock analysis and advisory service",
		Version: version,
		Long: `StockRun serves on-demand stock analysis: technical indicators, ML price
forecasts and news sentiment, assembled into reports and scored by the
advisor rule engine.

'serve' runs the HTTP API; the remaining commands are operational shims
around the same runtime.`,
	}

	// Flag names accept underscores as dashes (--log_level == --log-level).
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().String("config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override configured log level (trace|debug|info|warn|error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long:  "Starts the HTTP API with background warm-up, the job scheduler and the in-process backtest service",
		RunE:  runServe,
	}

	preloadCmd := &cobra.Command{
		Use:   "preload",
		Short: "Warm the model and news caches once, then exit",
		Long:  "Runs the same warm-up the server performs in the background; exits non-zero when any branch fails",
		RunE:  runPreload,
	}

	backtestCmd := &cobra.Command{
		Use:   "backtest [ticker...]",
		Short: "Prepare backtest contexts and print their final states",
		Long:  "Selects historical evaluation points, generates the reports and loads them; one line per ticker when done",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().Bool("all", false, "Prepare every ticker in the universe")

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "List advisor rules",
		Long:  "Prints the loaded rule catalog with purposes, statuses and tree hashes",
		RunE:  runRules,
	}
	rulesCmd.Flags().String("id", "", "Print the full tree of one rule instead of the listing")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(preloadCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(rulesCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
