package driver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rshade/forecastrun/internal/config"
)

// Mini-batch size bounds.
const (
	MinBatchSize = 1
	MaxBatchSize = config.MaxMiniBatchSize
)

// Splitting errors.
var (
	ErrInvalidBatchSize = fmt.Errorf("mini-batch size must be between %d and %d", MinBatchSize, MaxBatchSize)
	ErrEmptyItems       = errors.New("items slice cannot be empty")
)

// Split cuts items into consecutive mini-batches of at most size elements.
// The returned batches share the backing array of items.
func Split[T any](items []T, size int) ([][]T, error) {
	if size < MinBatchSize || size > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	batches := make([][]T, 0, totalBatches(len(items), size))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches, nil
}

func totalBatches(totalItems, size int) int {
	n := totalItems / size
	if totalItems%size > 0 {
		n++
	}
	return n
}

// percentMultiplier converts a ratio to a percentage.
const percentMultiplier = 100

// Progress tracks how many mini-batches and rows a run has completed.
// It is safe for concurrent use by worker goroutines.
type Progress struct {
	mu sync.RWMutex

	totalRows      int
	totalBatches   int
	processedRows  int
	processedBatch int
	startTime      time.Time
}

// NewProgress creates a tracker for a run of totalRows split into totalBatches.
func NewProgress(totalRows, totalBatches int) *Progress {
	return &Progress{
		totalRows:    totalRows,
		totalBatches: totalBatches,
		startTime:    time.Now(),
	}
}

// AddBatch records one finished mini-batch of rowCount rows.
func (p *Progress) AddBatch(rowCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processedRows += rowCount
	p.processedBatch++
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := ProgressSnapshot{
		TotalRows:        p.totalRows,
		TotalBatches:     p.totalBatches,
		ProcessedRows:    p.processedRows,
		ProcessedBatches: p.processedBatch,
		Elapsed:          time.Since(p.startTime),
	}
	if p.totalBatches > 0 {
		snap.PercentComplete = float64(p.processedBatch) / float64(p.totalBatches) * percentMultiplier
	}
	return snap
}

// ProgressSnapshot is an immutable view of Progress.
type ProgressSnapshot struct {
	TotalRows        int
	TotalBatches     int
	ProcessedRows    int
	ProcessedBatches int
	PercentComplete  float64
	Elapsed          time.Duration
}

// IsComplete reports whether every batch has finished.
func (s ProgressSnapshot) IsComplete() bool {
	return s.ProcessedBatches >= s.TotalBatches
}
