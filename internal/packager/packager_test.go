package packager

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, openErr := f.Open()
		require.NoError(t, openErr)
		data, readErr := io.ReadAll(rc)
		require.NoError(t, readErr)
		require.NoError(t, rc.Close())
		out[f.Name] = string(data)
	}
	return out
}

func TestPackage_BundlesArtifacts(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{
		"model_A_X.txt": "a",
		"model_B_Y.txt": "b",
		"notes.json":    "{}",
		".tmp-123":      "partial",
	})
	require.NoError(t, os.Mkdir(filepath.Join(src, "nested.txt"), 0o750))

	arc, err := New(out).Package(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, out, filepath.Dir(arc.Path))
	assert.Equal(t, arc.ID+ArchiveExt, filepath.Base(arc.Path))
	_, parseErr := uuid.Parse(arc.ID)
	require.NoError(t, parseErr, "archive names are UUIDs")

	assert.Equal(t, []string{"model_A_X.txt", "model_B_Y.txt"}, arc.Entries)
	assert.Equal(t, map[string]string{"model_A_X.txt": "a", "model_B_Y.txt": "b"}, readArchive(t, arc.Path))

	// Sources are left untouched.
	for _, name := range []string{"model_A_X.txt", "model_B_Y.txt"} {
		assert.FileExists(t, filepath.Join(src, name))
	}
}

func TestPackage_EntriesHaveNoDirectoryPrefix(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"model_A_X.txt": "a"})

	arc, err := New(t.TempDir()).Package(context.Background(), src)
	require.NoError(t, err)

	names, err := List(arc.Path)
	require.NoError(t, err)
	require.Equal(t, []string{"model_A_X.txt"}, names)
	assert.False(t, strings.ContainsAny(names[0], `/\`))
}

func TestPackage_EmptySource(t *testing.T) {
	arc, err := New(t.TempDir()).Package(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, arc.Entries)
	assert.FileExists(t, arc.Path)
}

func TestPackage_DistinctNames(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{"model_A_X.txt": "a"})
	p := New(out)

	seen := map[string]bool{}
	for range 20 {
		arc, err := p.Package(context.Background(), src)
		require.NoError(t, err)
		assert.False(t, seen[arc.Path], "archive path reused: %s", arc.Path)
		seen[arc.Path] = true
	}

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestPackage_NeverOverwritesExisting(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{"model_A_X.txt": "new"})
	writeFiles(t, out, map[string]string{"taken.zip": "existing archive"})

	ids := []string{"taken", "fresh"}
	gen := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	arc, err := New(out, WithIDGenerator(gen)).Package(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "fresh", arc.ID)

	data, err := os.ReadFile(filepath.Join(out, "taken.zip"))
	require.NoError(t, err)
	assert.Equal(t, "existing archive", string(data))
}

func TestPackage_CollisionExhausted(t *testing.T) {
	out := t.TempDir()
	writeFiles(t, out, map[string]string{"same.zip": "x"})

	_, err := New(out, WithIDGenerator(func() string { return "same" })).
		Package(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNameCollision)
}

func TestPackage_OutputDirErrors(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"model_A_X.txt": "a"})

	t.Run("missing", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "missing")).Package(context.Background(), src)
		require.ErrorIs(t, err, ErrOutputDir)
	})

	t.Run("not a directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		_, err := New(file).Package(context.Background(), src)
		require.ErrorIs(t, err, ErrOutputDir)
	})

	t.Run("read only", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced")
		}
		out := t.TempDir()
		require.NoError(t, os.Chmod(out, 0o500))
		t.Cleanup(func() { _ = os.Chmod(out, 0o750) })

		_, err := New(out).Package(context.Background(), src)
		require.ErrorIs(t, err, ErrOutputDir)
	})
}

func TestPackage_SourceDirMissing(t *testing.T) {
	_, err := New(t.TempDir()).Package(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, ErrSourceDir)
}

func TestPackage_CancelledRemovesPartial(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{"model_A_X.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(out).Package(ctx, src)
	require.ErrorIs(t, err, context.Canceled)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestPackage_CancelledEmptySourceWritesNothing(t *testing.T) {
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(out).Package(ctx, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestList_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err := List(path)
	require.Error(t, err)
}
