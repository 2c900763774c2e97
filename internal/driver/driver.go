// Package driver plays the orchestration host locally: it splits an input
// table into mini-batches, starts independent workers, and feeds each worker
// a disjoint subset of the batches.
package driver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/logging"
	"github.com/rshade/forecastrun/internal/packager"
	"github.com/rshade/forecastrun/internal/rows"
	"github.com/rshade/forecastrun/internal/worker"
)

// ErrNoRows is returned when the input holds no rows.
var ErrNoRows = errors.New("input contains no rows")

// Options configures a Drive call.
type Options struct {
	Worker        config.WorkerConfig
	Workers       int
	MiniBatchSize int
	// KeepScratch leaves worker scratch directories in place after the run.
	KeepScratch bool
	// OnBatch is called after each finished batch. It may be called from
	// several goroutines at once.
	OnBatch func(BatchReport, ProgressSnapshot)
	// PackagerOptions are passed to every worker's packager.
	PackagerOptions []packager.Option
}

// BatchReport is the result of one mini-batch.
type BatchReport struct {
	Index    int
	WorkerID string
	Result   worker.BatchResult
}

// Report summarizes a whole run.
type Report struct {
	TraceID   string
	Workers   int
	Batches   []BatchReport
	Progress  ProgressSnapshot
	Processed int
	Failed    int
}

// Archives returns the archive paths in batch order.
func (r *Report) Archives() []string {
	out := make([]string, 0, len(r.Batches))
	for _, b := range r.Batches {
		if b.Result.Archive.Path != "" {
			out = append(out, b.Result.Archive.Path)
		}
	}
	return out
}

// Drive runs every row of input through opts.Workers workers. Batch j goes
// to worker j mod Workers; each worker runs its batches in order. The first
// Init or packaging error stops the run and is returned.
func Drive(ctx context.Context, opts Options, input rows.Batch) (*Report, error) {
	if len(input) == 0 {
		return nil, ErrNoRows
	}
	batches, err := Split(input, opts.MiniBatchSize)
	if err != nil {
		return nil, err
	}

	traceID := logging.GetOrGenerateTraceID(ctx)
	if logging.TraceIDFromContext(ctx) == "" {
		ctx = logging.ContextWithTraceID(ctx, traceID)
	}
	log := logging.ComponentLogger(*logging.FromContext(ctx), "driver")

	n := max(1, min(opts.Workers, len(batches)))
	log.Info().Int("rows", len(input)).Int("batches", len(batches)).Int("workers", n).Msg("run started")

	workers := make([]*worker.Worker, 0, n)
	defer func() {
		if opts.KeepScratch {
			return
		}
		for _, w := range workers {
			if closeErr := w.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("worker cleanup failed")
			}
		}
	}()

	for i := range n {
		w := worker.NewWorker(opts.Worker, opts.PackagerOptions...)
		if initErr := w.Init(ctx); initErr != nil {
			return nil, fmt.Errorf("initializing worker %d: %w", i, initErr)
		}
		workers = append(workers, w)
	}

	progress := NewProgress(len(input), len(batches))
	reports := make([]BatchReport, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		g.Go(func() error {
			for j := i; j < len(batches); j += n {
				res, runErr := w.Run(gctx, batches[j])
				if runErr != nil {
					return fmt.Errorf("batch %d: %w", j, runErr)
				}

				rep := BatchReport{Index: j, WorkerID: w.State().WorkerID(), Result: res}
				reports[j] = rep
				progress.AddBatch(len(batches[j]))
				if opts.OnBatch != nil {
					opts.OnBatch(rep, progress.Snapshot())
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		log.Error().Err(err).Msg("run failed")
		return nil, err
	}

	report := &Report{
		TraceID:  traceID,
		Workers:  n,
		Batches:  reports,
		Progress: progress.Snapshot(),
	}
	for _, b := range reports {
		report.Processed += len(b.Result.Statuses)
		report.Failed += len(b.Result.Failed())
	}

	log.Info().
		Int("processed", report.Processed).
		Int("failed", report.Failed).
		Int("archives", len(report.Archives())).
		Dur("elapsed", report.Progress.Elapsed).
		Msg("run finished")
	return report, nil
}
