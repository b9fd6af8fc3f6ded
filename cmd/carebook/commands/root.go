package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"carebook/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	dumpHTTP   string

	config  Config
	tracing telemetry.Tracing
)

var rootCmd = &cobra.Command{
	Use:   "carebook",
	Short: "carebook mirrors the Codmon parent portal to disk and compiles it into a notebook.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		cfg, err := LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		config = cfg

		tracing, err = telemetry.SetupTracing(cmd.Context(), "carebook", config.Otlp)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := tracing.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown tracing", "err", err.Error())
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The config file, json5 or yaml.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output.")
	rootCmd.PersistentFlags().StringVar(&dumpHTTP, "dump-http", "", "Write every portal request and response to this directory.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fatal logs `message` with the error and exits.
func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
