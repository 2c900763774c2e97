// Package cli implements the forecastrun command tree.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/logging"
)

const rootCmdExample = `  # Run every row of an input table through two workers
  forecastrun run --forecast_horizon 4 --model_path ./models --input rows.csv --workers 2

  # List the artifacts inside an archive
  forecastrun archive ls ./models/0b6c3f2e-1d5a-4c43-9d7e-5d2f1f7e8a90.zip`

// NewRootCmd creates the root command for the forecastrun CLI.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithEnv(ver, os.LookupEnv)
}

// NewRootCmdWithEnv creates the root command with an explicit environment
// lookup for testability.
func NewRootCmdWithEnv(ver string, lookupEnv func(string) (string, bool)) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "forecastrun",
		Short:   "Batch forecast entry worker and local driver",
		Long:    "forecastrun: process mini-batches of series rows into per-series model artifacts and package them per batch",
		Version: ver,
		Example: rootCmdExample,
		// Arguments meant for other stages of the host pipeline are ignored.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd, lookupEnv)
			return nil
		},
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "", "log format (auto, console, json)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging in console format")

	cmd.AddCommand(NewRunCmd(lookupEnv), NewArchiveCmd(), NewVersionCmd(ver))
	return cmd
}

// setupLogging builds the invocation logger from the config file, environment
// and flags, and stores it in the command context.
func setupLogging(cmd *cobra.Command, lookupEnv func(string) (string, bool)) {
	lc := config.New().Logging
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		// A broken file is reported by the command that loads the full config.
		if cfg, err := config.LoadFile(path); err == nil {
			lc = cfg.Logging
		}
	}
	if v, ok := lookupEnv(config.EnvLogLevel); ok && v != "" {
		lc.Level = v
	}
	if v, ok := lookupEnv(config.EnvLogFormat); ok && v != "" {
		lc.Format = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		lc.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		lc.Format = v
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		lc.Level = zerolog.DebugLevel.String()
		lc.Format = logging.FormatConsole
	}

	logCfg := lc.ToLoggingConfig()
	var logger zerolog.Logger
	if logCfg.Format == logging.FormatConsole || logCfg.Format == logging.FormatJSON {
		logger = logging.NewLoggerTo(logCfg, cmd.ErrOrStderr())
	} else {
		logger = logging.NewLogger(logCfg)
	}

	ctx := logger.WithContext(cmd.Context())
	ctx = logging.ContextWithTraceID(ctx, logging.GetOrGenerateTraceID(ctx))
	cmd.SetContext(ctx)

	cliLog := logging.ComponentLogger(*logging.FromContext(ctx), "cli")
	cliLog.Debug().Str("command", cmd.Name()).Msg("command started")
}
