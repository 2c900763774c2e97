// Package processor turns the rows of one mini-batch into placeholder model
// artifacts and status records.
//
// The fit step is a stand-in: every row produces a plain-text artifact
// describing the series it would have been fitted on. Row failures never
// escape Process; they are either recorded per row (isolate) or end the
// batch early (abort).
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/rows"
)

// StatusPrefix starts every status record.
const StatusPrefix = "Finished processing row:"

// Options configures a Processor.
type Options struct {
	ForecastHorizon string
	WorkerID        string
	Policy          config.ErrorPolicy
}

// Processor writes artifacts for the rows of a batch.
type Processor struct {
	opts Options
	log  zerolog.Logger
}

// RowResult is the outcome for one row. Err is nil on success.
type RowResult struct {
	Index    int
	Row      rows.Row
	Artifact string
	Status   string
	Err      error
}

// OK reports whether the row was processed successfully.
func (r RowResult) OK() bool {
	return r.Err == nil
}

// Outcome collects the row results of one batch in input order.
type Outcome struct {
	Results []RowResult
	// Aborted is set when the abort policy stopped the batch early.
	Aborted bool
}

// Statuses returns the status records of successful rows.
func (o Outcome) Statuses() []string {
	out := make([]string, 0, len(o.Results))
	for _, r := range o.Results {
		if r.OK() {
			out = append(out, r.Status)
		}
	}
	return out
}

// Failed returns the failed rows.
func (o Outcome) Failed() []RowResult {
	var out []RowResult
	for _, r := range o.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// New creates a Processor. An empty policy means isolate.
func New(opts Options, log zerolog.Logger) *Processor {
	if opts.Policy == "" {
		opts.Policy = config.ErrorIsolate
	}
	return &Processor{opts: opts, log: log}
}

// Process handles every row of batch in order, writing artifacts into dir.
func (p *Processor) Process(ctx context.Context, dir string, batch rows.Batch) Outcome {
	n, cols := batch.Shape()
	p.log.Debug().Int("rows", n).Int("columns", cols).Str("dir", dir).Msg("processing mini-batch")

	out := Outcome{Results: make([]RowResult, 0, len(batch))}
	owners := make(map[string]int, len(batch))
	for i, row := range batch {
		res := RowResult{Index: i, Row: row}
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Artifact, res.Status, res.Err = p.processRow(dir, row)
		}

		if res.Err != nil && p.opts.Policy == config.ErrorAbort {
			p.log.Error().Err(res.Err).Int("row", i).Int("skipped", len(batch)-i).
				Msg("row failed, aborting remaining rows of the batch")
			out.Aborted = true
			return out
		}

		if res.Err != nil {
			p.log.Warn().Err(res.Err).Int("row", i).Str("row_value", row.String()).Msg("row failed")
		} else {
			name := filepath.Base(res.Artifact)
			p.warnNameReuse(owners, name, i, batch)
			p.log.Debug().Int("row", i).Str("artifact", name).Msg(res.Status)
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// warnNameReuse logs when a row overwrites the artifact of an earlier row in
// the batch that has a different (code, company) pair, e.g. (A_B, C) and
// (A, B_C). owners maps artifact names to the last row index that wrote them.
func (p *Processor) warnNameReuse(owners map[string]int, name string, i int, batch rows.Batch) {
	if prev, ok := owners[name]; ok {
		a, b := batch[prev], batch[i]
		if a.Code != b.Code || a.Company != b.Company {
			p.log.Warn().
				Str("artifact", name).
				Int("row", i).
				Int("overwritten_row", prev).
				Str("code", b.Code).Str("company", b.Company).
				Str("overwritten_code", a.Code).Str("overwritten_company", a.Company).
				Msg("distinct rows share an artifact name, earlier artifact overwritten")
		}
	}
	owners[name] = i
}

// processRow writes the artifact for one row and returns its path and status.
// A panic while handling the row is reported as an error for that row.
func (p *Processor) processRow(dir string, row rows.Row) (path, status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRowPanic, r)
		}
	}()

	name, err := row.ArtifactName()
	if err != nil {
		return "", "", err
	}

	path = filepath.Join(dir, name)
	if err = writeFileAtomic(path, []byte(p.render(row))); err != nil {
		return "", "", fmt.Errorf("%w %s: %w", ErrWriteArtifact, name, err)
	}

	return path, fmt.Sprintf("%s %s artifact=%s", StatusPrefix, row.String(), name), nil
}

// render produces the placeholder model body for a row.
func (p *Processor) render(row rows.Row) string {
	var b strings.Builder
	b.WriteString("# placeholder forecast model\n")
	fmt.Fprintf(&b, "code: %s\n", row.Code)
	fmt.Fprintf(&b, "company: %s\n", row.Company)
	fmt.Fprintf(&b, "forecast_horizon: %s\n", p.opts.ForecastHorizon)
	if p.opts.WorkerID != "" {
		fmt.Fprintf(&b, "worker: %s\n", p.opts.WorkerID)
	}
	for _, k := range row.FieldNames() {
		fmt.Fprintf(&b, "field.%s: %v\n", k, row.Fields[k])
	}
	return b.String()
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, replacing any earlier artifact of the same name.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	//nolint:gosec // artifacts are world-readable like the archives built from them.
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
