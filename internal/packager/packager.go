// Package packager bundles the artifacts of one batch into a uniquely named
// zip archive in the shared output directory.
package packager

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Archive naming and selection.
const (
	ArchiveExt      = ".zip"
	ArtifactPattern = "*.txt"

	// maxNameAttempts bounds the redraws after an archive name collision.
	maxNameAttempts = 5
)

// Packaging errors. All of them are fatal for the batch.
var (
	ErrOutputDir     = errors.New("output directory unavailable")
	ErrSourceDir     = errors.New("artifact directory unavailable")
	ErrNameCollision = errors.New("could not allocate a unique archive name")
	ErrWriteArchive  = errors.New("writing archive")
)

// Archive describes one written archive.
type Archive struct {
	ID      string
	Path    string
	Entries []string
}

// Packager writes archives into a single output directory.
type Packager struct {
	outputDir string
	newID     func() string
	log       zerolog.Logger
}

// Option customizes a Packager.
type Option func(*Packager)

// WithIDGenerator replaces the random archive name source.
func WithIDGenerator(gen func() string) Option {
	return func(p *Packager) { p.newID = gen }
}

// WithLogger sets the packager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Packager) { p.log = l }
}

// New creates a Packager for outputDir. The directory is not checked until
// the first Package call.
func New(outputDir string, opts ...Option) *Packager {
	p := &Packager{
		outputDir: outputDir,
		newID:     func() string { return uuid.New().String() },
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OutputDir returns the directory archives are written to.
func (p *Packager) OutputDir() string {
	return p.outputDir
}

// Package writes every *.txt file in sourceDir into a new archive
// <outputDir>/<uuid>.zip. Entries are stored under their base names. Source
// files are left in place. An existing archive is never overwritten.
func (p *Packager) Package(ctx context.Context, sourceDir string) (Archive, error) {
	if err := checkDir(p.outputDir); err != nil {
		return Archive{}, fmt.Errorf("%w: %w", ErrOutputDir, err)
	}

	files, err := Artifacts(sourceDir)
	if err != nil {
		return Archive{}, err
	}
	if err = ctx.Err(); err != nil {
		return Archive{}, err
	}

	f, id, err := p.create()
	if err != nil {
		return Archive{}, err
	}
	path := f.Name()

	entries, err := writeZip(ctx, f, sourceDir, files)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", ErrWriteArchive, closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return Archive{}, err
	}

	p.log.Info().Str("archive", path).Int("entries", len(entries)).Msg("archive written")
	return Archive{ID: id, Path: path, Entries: entries}, nil
}

// create opens a fresh archive file exclusively, redrawing the name on collision.
func (p *Packager) create() (*os.File, string, error) {
	for range maxNameAttempts {
		id := p.newID()
		path := filepath.Join(p.outputDir, id+ArchiveExt)

		//nolint:gosec // archives are shared output and must be world-readable.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, id, nil
		}
		if errors.Is(err, fs.ErrExist) {
			p.log.Warn().Str("archive", path).Msg("archive name already taken, drawing a new one")
			continue
		}
		return nil, "", fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	return nil, "", fmt.Errorf("%w after %d attempts in %s", ErrNameCollision, maxNameAttempts, p.outputDir)
}

func writeZip(ctx context.Context, w io.Writer, dir string, files []string) ([]string, error) {
	zw := zip.NewWriter(w)
	entries := make([]string, 0, len(files))

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return nil, err
		}
		if err := addFile(zw, filepath.Join(dir, name)); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: adding %s: %w", ErrWriteArchive, name, err)
		}
		entries = append(entries, name)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteArchive, err)
	}
	return entries, nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Artifacts lists the regular files in dir matching ArtifactPattern, sorted.
func Artifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(ArtifactPattern, e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// List returns the entry names of the archive at path in stored order.
func List(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
