package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"

	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/logging"
)

// scratchPattern is the os.MkdirTemp pattern for worker scratch directories.
const scratchPattern = "forecastrun-worker-*"

// ErrScratchDir marks a failure to allocate worker scratch space.
var ErrScratchDir = errors.New("creating scratch directory")

// State is the immutable per-worker state produced by Init and read by
// every batch on that worker.
type State struct {
	workerID        string
	forecastHorizon string
	modelOutputPath string
	scratchDir      string
	scratchPolicy   config.ScratchPolicy
	errorPolicy     config.ErrorPolicy
}

// Init allocates a private scratch directory and captures cfg.
// The horizon and output path are not validated here.
func Init(ctx context.Context, cfg config.WorkerConfig) (*State, error) {
	id := ulid.Make().String()
	log := logging.ComponentLogger(*logging.FromContext(ctx), "worker").With().Str("worker_id", id).Logger()

	dir, err := os.MkdirTemp(cfg.ScratchRoot, scratchPattern)
	if err != nil {
		log.Error().Err(err).Str("scratch_root", cfg.ScratchRoot).Msg("scratch allocation failed")
		return nil, fmt.Errorf("%w: %w", ErrScratchDir, err)
	}

	s := &State{
		workerID:        id,
		forecastHorizon: cfg.ForecastHorizon,
		modelOutputPath: cfg.ModelPath,
		scratchDir:      dir,
		scratchPolicy:   cfg.ScratchPolicy,
		errorPolicy:     cfg.ErrorPolicy,
	}
	if s.scratchPolicy == "" {
		s.scratchPolicy = config.ScratchPerBatch
	}
	if s.errorPolicy == "" {
		s.errorPolicy = config.ErrorIsolate
	}

	log.Info().
		Str("forecast_horizon", s.forecastHorizon).
		Str("model_path", s.modelOutputPath).
		Str("scratch_dir", s.scratchDir).
		Str("scratch_policy", string(s.scratchPolicy)).
		Str("error_policy", string(s.errorPolicy)).
		Msg("worker initialized")

	return s, nil
}

// WorkerID returns the ULID assigned at Init.
func (s *State) WorkerID() string { return s.workerID }

// ForecastHorizon returns the configured horizon, verbatim.
func (s *State) ForecastHorizon() string { return s.forecastHorizon }

// ModelOutputPath returns the directory archives are written to.
func (s *State) ModelOutputPath() string { return s.modelOutputPath }

// ScratchDir returns the worker's private scratch directory.
func (s *State) ScratchDir() string { return s.scratchDir }

// ScratchPolicy returns how scratch space is scoped across batches.
func (s *State) ScratchPolicy() config.ScratchPolicy { return s.scratchPolicy }

// ErrorPolicy returns how row failures are handled.
func (s *State) ErrorPolicy() config.ErrorPolicy { return s.errorPolicy }

// Close removes the scratch directory and everything in it.
func (s *State) Close() error {
	if err := os.RemoveAll(s.scratchDir); err != nil {
		return fmt.Errorf("removing scratch directory %s: %w", s.scratchDir, err)
	}
	return nil
}
