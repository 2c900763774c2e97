package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/driver"
	"github.com/rshade/forecastrun/internal/logging"
	"github.com/rshade/forecastrun/internal/rows"
)

// ErrMissingInput is returned when run is invoked without --input.
var ErrMissingInput = errors.New("--input is required")

// runFlags holds the run command flag values.
type runFlags struct {
	forecastHorizon string
	modelPath       string
	input           string
	scratchRoot     string
	scratchPolicy   string
	errorPolicy     string
	miniBatchSize   int
	workers         int
	keepScratch     bool
	showStatuses    bool
}

// NewRunCmd creates the run command, which drives an input table through
// one or more workers.
func NewRunCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process an input table in mini-batches and package the artifacts",
		Long: `Reads rows from a CSV, JSON or JSONL file, splits them into mini-batches and
feeds the batches to independently initialized workers. Every row writes a
model_<code>_<company>.txt artifact into the worker scratch directory and every
batch is packaged into <model_path>/<uuid>.zip.

Row failures are reported in the summary; initialization and packaging
failures end the run with a non-zero exit code.`,
		Example: `  forecastrun run --forecast_horizon 4 --model_path ./models --input rows.csv
  forecastrun run --config forecast.yaml --input rows.jsonl --workers 4 --mini_batch_size 50`,
		// Unknown flags and leftover arguments belong to other pipeline stages.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, lookupEnv, &flags)
			if err != nil {
				return err
			}
			if flags.input == "" {
				return ErrMissingInput
			}

			input, err := rows.ReadFile(flags.input)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			log := logging.ComponentLogger(*logging.FromContext(ctx), "cli")
			log.Debug().Str("input", flags.input).Int("rows", len(input)).Msg("input loaded")

			report, err := driver.Drive(ctx, driver.Options{
				Worker:        cfg.Worker(),
				Workers:       cfg.Workers,
				MiniBatchSize: cfg.MiniBatchSize,
				KeepScratch:   flags.keepScratch,
			}, input)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			renderReport(cmd.OutOrStdout(), report, flags.showStatuses)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.forecastHorizon, "forecast_horizon", "", "forecast horizon passed to every worker (any string)")
	f.StringVar(&flags.modelPath, "model_path", "", "output directory for batch archives")
	f.StringVar(&flags.input, "input", "", "input table (.csv, .json, .jsonl)")
	f.StringVar(&flags.scratchRoot, "scratch_root", "", "parent directory for worker scratch space (default: OS temp dir)")
	f.StringVar(&flags.scratchPolicy, "scratch_policy", "", "scratch scoping: per_batch or shared")
	f.StringVar(&flags.errorPolicy, "error_policy", "", "row failure handling: isolate or abort")
	f.IntVar(&flags.miniBatchSize, "mini_batch_size", 0, "rows per mini-batch")
	f.IntVar(&flags.workers, "workers", 0, "number of parallel workers")
	f.BoolVar(&flags.keepScratch, "keep_scratch", false, "leave worker scratch directories in place")
	f.BoolVar(&flags.showStatuses, "statuses", false, "print every row status record")

	return cmd
}

// resolveConfig layers defaults, the config file, the environment and the
// flags that were set, then validates the result.
func resolveConfig(cmd *cobra.Command, lookupEnv func(string) (string, bool), flags *runFlags) (*config.Config, error) {
	cfg := config.New()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.MergeYAML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("forecast_horizon") {
		cfg.ForecastHorizon = flags.forecastHorizon
	}
	if f.Changed("model_path") {
		cfg.ModelPath = flags.modelPath
	}
	if f.Changed("scratch_root") {
		cfg.ScratchRoot = flags.scratchRoot
	}
	if f.Changed("scratch_policy") {
		cfg.ScratchPolicy = config.ScratchPolicy(flags.scratchPolicy)
	}
	if f.Changed("error_policy") {
		cfg.ErrorPolicy = config.ErrorPolicy(flags.errorPolicy)
	}
	if f.Changed("mini_batch_size") {
		cfg.MiniBatchSize = flags.miniBatchSize
	}
	if f.Changed("workers") {
		cfg.Workers = flags.workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
