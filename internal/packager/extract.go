package packager

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize bounds a single extracted artifact.
const maxEntrySize = 512 * 1024 * 1024

// Extraction errors.
var (
	ErrUnsafeEntry    = errors.New("archive entry escapes destination")
	ErrDuplicateEntry = errors.New("archive entries share a base name")
)

// Extract unpacks the archive at path into destDir and returns the written
// file paths. Entries are flattened to their base names; two entries that
// flatten to the same name stop the extraction.
func Extract(path, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer zr.Close()

	if err = os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating destination %s: %w", destDir, err)
	}

	written := make([]string, 0, len(zr.File))
	seen := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, sanitizeErr := sanitizePath(destDir, f.Name)
		if sanitizeErr != nil {
			return written, sanitizeErr
		}
		if prev, dup := seen[target]; dup {
			return written, fmt.Errorf("%w: %q and %q", ErrDuplicateEntry, prev, f.Name)
		}
		seen[target] = f.Name
		if err = extractFile(f, target); err != nil {
			return written, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		written = append(written, target)
	}
	return written, nil
}

// sanitizePath resolves an entry name under destDir, rejecting traversal.
// Absolute names are reduced to their base name.
func sanitizePath(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	base := filepath.Base(clean)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	return filepath.Join(destDir, base), nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	//nolint:gosec // extracted artifacts keep the archive's world-readable mode.
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	n, copyErr := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	if n > maxEntrySize {
		_ = os.Remove(target)
		return fmt.Errorf("entry larger than %d bytes", maxEntrySize)
	}
	return closeErr
}
