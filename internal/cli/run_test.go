package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/forecastrun/internal/cli"
	"github.com/rshade/forecastrun/internal/config"
	"github.com/rshade/forecastrun/internal/packager"
)

func noEnv(string) (string, bool) { return "", false }

// execute runs the root command with args and returns stdout, stderr and the error.
func execute(t *testing.T, lookupEnv func(string) (string, bool), args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := cli.NewRootCmdWithEnv("test", lookupEnv)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error", "--log-format", "json"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func archivesIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}

func TestRun_TwoRowScenario(t *testing.T) {
	out := t.TempDir()
	input := writeInput(t, "rows.csv", "code,company\nA,X\nB,Y\n")

	stdout, _, err := execute(t, noEnv, "run",
		"--forecast_horizon", "4",
		"--model_path", out,
		"--scratch_root", t.TempDir(),
		"--input", input,
		"--statuses",
	)
	require.NoError(t, err)

	assert.Contains(t, stdout, "2 processed")
	assert.Contains(t, stdout, "0 failed")
	assert.Contains(t, stdout, "model_A_X.txt")
	assert.Contains(t, stdout, "model_B_Y.txt")

	archives := archivesIn(t, out)
	require.Len(t, archives, 1)
	names, err := packager.List(archives[0])
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"model_A_X.txt", "model_B_Y.txt"}, names)
}

func TestRun_IgnoresUnknownFlags(t *testing.T) {
	out := t.TempDir()
	input := writeInput(t, "rows.jsonl", "{\"code\":\"A\",\"company\":\"X\"}\n")

	_, _, err := execute(t, noEnv, "run",
		"--model_path", out,
		"--scratch_root", t.TempDir(),
		"--input", input,
		"--azureml_run_id", "xyz",
	)
	require.NoError(t, err)
	assert.Len(t, archivesIn(t, out), 1)
}

func TestRun_ConfigFileAndEnv(t *testing.T) {
	out := t.TempDir()
	scratch := t.TempDir()
	cfgPath := writeInput(t, "forecast.yaml", "forecast_horizon: \"8\"\nmini_batch_size: 1\nscratch_root: "+scratch+"\n")
	input := writeInput(t, "rows.json", `[{"code":"A","company":"X"},{"code":"B","company":"Y"},{"code":"C","company":"Z"}]`)

	env := map[string]string{config.EnvModelPath: out, config.EnvWorkers: "2"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	stdout, _, err := execute(t, lookup, "--config", cfgPath, "run", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Workers:")
	assert.Contains(t, stdout, "3 processed")
	assert.Len(t, archivesIn(t, out), 3, "one archive per mini-batch")
}

func TestRun_RowFailuresAreNotFatal(t *testing.T) {
	out := t.TempDir()
	input := writeInput(t, "rows.csv", "code,company\nA,X\n,Y\nC,Z\n")

	stdout, _, err := execute(t, noEnv, "run",
		"--model_path", out,
		"--scratch_root", t.TempDir(),
		"--input", input,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 processed")
	assert.Contains(t, stdout, "1 failed")
	assert.Contains(t, stdout, "batch 0 row 1")

	stdout, _, err = execute(t, noEnv, "run",
		"--model_path", out,
		"--scratch_root", t.TempDir(),
		"--error_policy", "abort",
		"--input", input,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 processed")
	assert.Contains(t, stdout, "aborted")
}

func TestRun_Errors(t *testing.T) {
	input := writeInput(t, "rows.csv", "code,company\nA,X\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing model path",
			args:    []string{"run", "--input", input},
			wantErr: "model_path is required",
		},
		{
			name:    "missing input",
			args:    []string{"run", "--model_path", t.TempDir()},
			wantErr: "--input is required",
		},
		{
			name:    "bad policy",
			args:    []string{"run", "--model_path", t.TempDir(), "--input", input, "--scratch_policy", "ramdisk"},
			wantErr: "invalid scratch policy",
		},
		{
			name:    "unwritable output",
			args:    []string{"run", "--model_path", filepath.Join(t.TempDir(), "missing"), "--scratch_root", t.TempDir(), "--input", input},
			wantErr: "output directory unavailable",
		},
		{
			name:    "scratch allocation",
			args:    []string{"run", "--model_path", t.TempDir(), "--scratch_root", filepath.Join(t.TempDir(), "missing"), "--input", input},
			wantErr: "creating scratch directory",
		},
		{
			name:    "unsupported input",
			args:    []string{"run", "--model_path", t.TempDir(), "--input", writeInput(t, "rows.xlsx", "x")},
			wantErr: "unsupported input format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, noEnv, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestArchiveList(t *testing.T) {
	out := t.TempDir()
	input := writeInput(t, "rows.csv", "code,company\nA,X\n")
	_, _, err := execute(t, noEnv, "run", "--model_path", out, "--scratch_root", t.TempDir(), "--input", input)
	require.NoError(t, err)

	archives := archivesIn(t, out)
	require.Len(t, archives, 1)

	stdout, _, err := execute(t, noEnv, "archive", "ls", archives[0])
	require.NoError(t, err)
	assert.Equal(t, "model_A_X.txt", strings.TrimSpace(stdout))

	_, _, err = execute(t, noEnv, "archive", "ls")
	require.Error(t, err)

	dest := t.TempDir()
	stdout, _, err = execute(t, noEnv, "archive", "extract", "--dest", dest, archives[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "model_A_X.txt"), strings.TrimSpace(stdout))
	assert.FileExists(t, filepath.Join(dest, "model_A_X.txt"))
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, noEnv, "version")
	require.NoError(t, err)
	assert.Equal(t, "forecastrun test\n", stdout)
}
