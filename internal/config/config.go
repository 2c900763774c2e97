// Package config holds the forecastrun configuration model.
//
// Values are layered: built-in defaults, then a YAML file, then
// FORECASTRUN_* environment variables, then CLI flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rshade/forecastrun/internal/logging"
)

// ScratchPolicy selects how scratch space is scoped across batches.
type ScratchPolicy string

const (
	// ScratchPerBatch gives every batch a fresh scratch sub-directory that
	// is removed once the batch has been packaged.
	ScratchPerBatch ScratchPolicy = "per_batch"
	// ScratchShared writes every batch into the worker scratch directory and
	// never removes anything, so archives accumulate earlier artifacts.
	ScratchShared ScratchPolicy = "shared"
)

// ErrorPolicy selects how row failures affect the rest of a batch.
type ErrorPolicy string

const (
	// ErrorIsolate records a failed row and keeps processing the batch.
	ErrorIsolate ErrorPolicy = "isolate"
	// ErrorAbort stops the batch at the first failed row.
	ErrorAbort ErrorPolicy = "abort"
)

// Defaults.
const (
	DefaultMiniBatchSize = 10
	DefaultWorkers       = 1
	MaxMiniBatchSize     = 100000
	MaxWorkers           = 256
)

// Validation errors.
var (
	ErrInvalidScratchPolicy = errors.New("invalid scratch policy")
	ErrInvalidErrorPolicy   = errors.New("invalid error policy")
	ErrInvalidMiniBatchSize = errors.New("invalid mini-batch size")
	ErrInvalidWorkers       = errors.New("invalid worker count")
	ErrMissingModelPath     = errors.New("model_path is required")
)

// Config is the full forecastrun configuration.
type Config struct {
	ForecastHorizon string        `yaml:"forecast_horizon"`
	ModelPath       string        `yaml:"model_path"`
	ScratchRoot     string        `yaml:"scratch_root"`
	ScratchPolicy   ScratchPolicy `yaml:"scratch_policy"`
	ErrorPolicy     ErrorPolicy   `yaml:"error_policy"`
	MiniBatchSize   int           `yaml:"mini_batch_size"`
	Workers         int           `yaml:"workers"`
	Logging         LoggingConfig `yaml:"logging"`
}

// LoggingConfig is the logging section of the config file.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WorkerConfig is the subset of Config a single worker is initialized with.
type WorkerConfig struct {
	ForecastHorizon string
	ModelPath       string
	ScratchRoot     string
	ScratchPolicy   ScratchPolicy
	ErrorPolicy     ErrorPolicy
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		ScratchPolicy: ScratchPerBatch,
		ErrorPolicy:   ErrorIsolate,
		MiniBatchSize: DefaultMiniBatchSize,
		Workers:       DefaultWorkers,
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatAuto,
		},
	}
}

// Worker extracts the per-worker settings.
func (c *Config) Worker() WorkerConfig {
	return WorkerConfig{
		ForecastHorizon: c.ForecastHorizon,
		ModelPath:       c.ModelPath,
		ScratchRoot:     c.ScratchRoot,
		ScratchPolicy:   c.ScratchPolicy,
		ErrorPolicy:     c.ErrorPolicy,
	}
}

// ToLoggingConfig converts the logging section for the logging package.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if lc.Level != "" {
		cfg.Level = lc.Level
	}
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	return cfg
}

// Validate checks enum values and numeric bounds. The forecast horizon is
// opaque and any string is accepted.
func (c *Config) Validate() error {
	var errs []error

	if err := c.ScratchPolicy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ErrorPolicy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MiniBatchSize < 1 || c.MiniBatchSize > MaxMiniBatchSize {
		errs = append(errs, fmt.Errorf("%w: %d (must be between 1 and %d)",
			ErrInvalidMiniBatchSize, c.MiniBatchSize, MaxMiniBatchSize))
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		errs = append(errs, fmt.Errorf("%w: %d (must be between 1 and %d)",
			ErrInvalidWorkers, c.Workers, MaxWorkers))
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		errs = append(errs, ErrMissingModelPath)
	}

	return errors.Join(errs...)
}

// Validate reports whether p is a known scratch policy.
func (p ScratchPolicy) Validate() error {
	switch p {
	case ScratchPerBatch, ScratchShared:
		return nil
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidScratchPolicy, p, ScratchPerBatch, ScratchShared)
	}
}

// Validate reports whether p is a known error policy.
func (p ErrorPolicy) Validate() error {
	switch p {
	case ErrorIsolate, ErrorAbort:
		return nil
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidErrorPolicy, p, ErrorIsolate, ErrorAbort)
	}
}

// Environment variable names read by ApplyEnv.
const (
	EnvForecastHorizon = "FORECASTRUN_FORECAST_HORIZON"
	EnvModelPath       = "FORECASTRUN_MODEL_PATH"
	EnvScratchRoot     = "FORECASTRUN_SCRATCH_ROOT"
	EnvScratchPolicy   = "FORECASTRUN_SCRATCH_POLICY"
	EnvErrorPolicy     = "FORECASTRUN_ERROR_POLICY"
	EnvMiniBatchSize   = "FORECASTRUN_MINI_BATCH_SIZE"
	EnvWorkers         = "FORECASTRUN_WORKERS"
	EnvLogLevel        = "FORECASTRUN_LOG_LEVEL"
	EnvLogFormat       = "FORECASTRUN_LOG_FORMAT"
)

// ApplyEnv overlays environment variables found through lookup.
// Numeric variables that fail to parse are reported as errors.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str(EnvForecastHorizon, &c.ForecastHorizon)
	str(EnvModelPath, &c.ModelPath)
	str(EnvScratchRoot, &c.ScratchRoot)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvLogFormat, &c.Logging.Format)

	if v, ok := lookup(EnvScratchPolicy); ok && v != "" {
		c.ScratchPolicy = ScratchPolicy(v)
	}
	if v, ok := lookup(EnvErrorPolicy); ok && v != "" {
		c.ErrorPolicy = ErrorPolicy(v)
	}

	return errors.Join(
		num(EnvMiniBatchSize, &c.MiniBatchSize),
		num(EnvWorkers, &c.Workers),
	)
}
