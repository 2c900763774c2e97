// Package worker implements the per-worker entry protocol of a batch
// inference step: Init once, then Run once per mini-batch.
//
// Run writes one artifact per row through the processor and then packages
// the batch's artifacts into a single archive. Row failures stay inside the
// returned BatchResult; packaging failures are returned as errors because
// they mean nothing from the batch was persisted. A batch whose context is
// cancelled is not packaged and returns the context error.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/logging"
	"github.com/rshade/forecastrun/internal/packager"
	"github.com/rshade/forecastrun/internal/processor"
	"github.com/rshade/forecastrun/internal/rows"
)

// batchDirPrefix names per-batch scratch sub-directories.
const batchDirPrefix = "batch-"

// Lifecycle errors.
var (
	ErrNotInitialized     = errors.New("worker not initialized")
	ErrAlreadyInitialized = errors.New("worker already initialized")
)

// Entry is the callback protocol a host drives.
type Entry interface {
	Init(ctx context.Context) error
	Run(ctx context.Context, batch rows.Batch) (BatchResult, error)
}

// BatchResult is what one Run returns to the host.
type BatchResult struct {
	BatchID  string
	Statuses []string
	Rows     []processor.RowResult
	Aborted  bool
	Archive  packager.Archive
}

// Failed returns the rows that failed under the isolate policy.
func (r BatchResult) Failed() []processor.RowResult {
	return processor.Outcome{Results: r.Rows}.Failed()
}

// Worker owns one State and runs batches against it sequentially.
type Worker struct {
	cfg config.WorkerConfig

	mu    sync.Mutex
	state *State
	proc  *processor.Processor
	pack  *packager.Packager
	log   zerolog.Logger

	packOpts []packager.Option
}

var _ Entry = (*Worker)(nil)

// NewWorker returns an uninitialized worker for cfg.
func NewWorker(cfg config.WorkerConfig, opts ...packager.Option) *Worker {
	return &Worker{cfg: cfg, packOpts: opts}
}

// Init allocates the worker state. Calling it twice is an error.
func (w *Worker) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != nil {
		return ErrAlreadyInitialized
	}

	state, err := Init(ctx, w.cfg)
	if err != nil {
		return err
	}

	base := logging.FromContext(ctx).With().Str("worker_id", state.WorkerID()).Logger()
	w.log = logging.ComponentLogger(base, "worker")
	w.state = state
	w.proc = processor.New(processor.Options{
		ForecastHorizon: state.ForecastHorizon(),
		WorkerID:        state.WorkerID(),
		Policy:          state.ErrorPolicy(),
	}, logging.ComponentLogger(base, "processor"))

	opts := append([]packager.Option{packager.WithLogger(logging.ComponentLogger(base, "packager"))}, w.packOpts...)
	w.pack = packager.New(state.ModelOutputPath(), opts...)
	return nil
}

// State returns the worker state, or nil before Init.
func (w *Worker) State() *State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run processes one mini-batch and packages its artifacts.
func (w *Worker) Run(ctx context.Context, batch rows.Batch) (BatchResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return BatchResult{}, ErrNotInitialized
	}

	batchID := ulid.Make().String()
	log := w.log.With().Str("batch_id", batchID).Logger()
	n, cols := batch.Shape()
	log.Info().Int("rows", n).Int("columns", cols).Msg("input mini-batch")

	dir, err := w.batchDir(batchID)
	if err != nil {
		return BatchResult{}, err
	}

	outcome := w.proc.Process(ctx, dir, batch)
	result := BatchResult{
		BatchID:  batchID,
		Statuses: outcome.Statuses(),
		Rows:     outcome.Results,
		Aborted:  outcome.Aborted,
	}

	if err = ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("mini-batch cancelled, skipping packaging")
		w.dropBatchDir(log, dir)
		return result, fmt.Errorf("batch %s: %w", batchID, err)
	}

	archive, err := w.pack.Package(ctx, dir)
	if err != nil {
		log.Error().Err(err).Str("scratch_dir", dir).Msg("packaging failed")
		return result, fmt.Errorf("packaging batch %s: %w", batchID, err)
	}
	result.Archive = archive

	w.dropBatchDir(log, dir)

	log.Info().
		Int("processed", len(result.Statuses)).
		Int("failed", len(result.Failed())).
		Bool("aborted", result.Aborted).
		Str("archive", archive.Path).
		Msg("mini-batch finished")
	return result, nil
}

// batchDir returns the directory a batch writes its artifacts into.
func (w *Worker) batchDir(batchID string) (string, error) {
	if w.state.ScratchPolicy() == config.ScratchShared {
		return w.state.ScratchDir(), nil
	}

	dir := filepath.Join(w.state.ScratchDir(), batchDirPrefix+batchID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: %w", ErrScratchDir, err)
	}
	return dir, nil
}

// dropBatchDir removes a per-batch scratch directory. Shared scratch is kept.
func (w *Worker) dropBatchDir(log zerolog.Logger, dir string) {
	if w.state.ScratchPolicy() != config.ScratchPerBatch {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("scratch_dir", dir).Msg("could not remove batch scratch directory")
	}
}

// Close releases the worker scratch directory. It is a no-op before Init.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return nil
	}
	return w.state.Close()
}
