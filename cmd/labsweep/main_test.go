package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/labsweep/internal/testutil"
)

const productExperiment = `{
  "name": "bias",
  "tags": ["bench"],
  "procedure": {"kind": "product", "workers": 2},
  "parameters": [
    {"name": "x", "value": 5, "units": "a.u."},
    {"name": "y", "values": [4.5, 3.4, 3, 5], "units": "a.u."},
    {"name": "z", "value": 1},
    {"name": "w", "range": "1:4:1", "units": "m"}
  ]
}`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-log-level", "off"}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_Usage(t *testing.T) {
	_, err := runCLI(t)
	require.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "frobnicate")
	require.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-config is required")

	var stderr bytes.Buffer
	err = run(context.Background(), []string{"-log-level", "loud", "list"}, &bytes.Buffer{}, &stderr)
	require.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "labsweep dev"))
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.WriteFile(t, "exp.json", productExperiment)
	db := filepath.Join(dir, "logs.db")

	out, err := runCLI(t, "run", "-config", cfg, "-db", db, "-dry-run")
	require.NoError(t, err)
	assert.NotContains(t, out, "log ")
	assert.Contains(t, out, "steps w[4] y[4], 4 entries")
	// Four entries, each with a product row and a vector row.
	rows := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "[") {
			rows++
		}
	}
	assert.Equal(t, 8, rows)

	_, err = os.Stat(db)
	assert.True(t, os.IsNotExist(err), "dry run must not create the database")
}

func TestRun_AsyncMatchesSync(t *testing.T) {
	cfg := testutil.WriteFile(t, "exp.json", productExperiment)

	syncOut, err := runCLI(t, "run", "-config", cfg, "-dry-run")
	require.NoError(t, err)
	asyncOut, err := runCLI(t, "run", "-config", cfg, "-dry-run", "-async")
	require.NoError(t, err)
	assert.Equal(t, syncOut, asyncOut)
}

func TestRun_LogListExport(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.WriteFile(t, "exp.json", productExperiment)
	db := filepath.Join(dir, "logs.db")

	out, err := runCLI(t, "run", "-config", cfg, "-db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "log bias\n")

	out, err = runCLI(t, "run", "-config", cfg, "-db", db, "-name", "bias")
	require.NoError(t, err)
	assert.Contains(t, out, "log bias__1\n")

	out, err = runCLI(t, "list", "-db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "bias "))
	assert.Contains(t, lines[1], "Product, loop on [y], loop on [w], bench")

	csvPath := filepath.Join(dir, "bias.csv")
	summaryPath := filepath.Join(dir, "bias_summary.csv")
	_, err = runCLI(t, "export", "-db", db, "-log", "bias", "-out", csvPath, "-summary", summaryPath)
	require.NoError(t, err)

	rows := readCSV(t, csvPath)
	require.Len(t, rows, 1+16)
	assert.Equal(t, []string{"y", "w", "product", "vector[0]", "vector[1]", "vector[2]", "vector[3]"}, rows[0])
	// y=4.5, w=2: 5 * 4.5 * 1 * 2
	assert.Equal(t, []string{"4.5", "2", "45", "5", "4.5", "1", "2"}, rows[2])

	summary := readCSV(t, summaryPath)
	require.Len(t, summary, 1+4)
	assert.Equal(t, []string{"y", "product_mean", "product_stddev"}, summary[0])

	_, err = runCLI(t, "export", "-db", db, "-log", "missing")
	require.Error(t, err)
	_, err = runCLI(t, "export", "-db", db)
	require.Error(t, err)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun_Migrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "logs.db")

	out, err := runCLI(t, "migrate", "-db", db, "version")
	require.NoError(t, err)
	assert.Equal(t, "schema version 0\n", out)

	out, err = runCLI(t, "migrate", "-db", db, "up")
	require.NoError(t, err)
	assert.Equal(t, "schema version 2\n", out)

	out, err = runCLI(t, "migrate", "-db", db, "down")
	require.NoError(t, err)
	assert.Equal(t, "schema version 1\n", out)

	_, err = runCLI(t, "migrate", "-db", db, "sideways")
	require.Error(t, err)
	_, err = runCLI(t, "migrate", "-db", db)
	require.Error(t, err)
}

func TestRun_SerialRejectsAsync(t *testing.T) {
	cfg := testutil.WriteFile(t, "exp.json", `{
  "procedure": {"kind": "serial", "device": "/dev/null"},
  "parameters": [{"name": "v", "values": [1, 2]}]
}`)
	_, err := runCLI(t, "run", "-config", cfg, "-dry-run", "-async")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot run with -async")
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stderr bytes.Buffer
	err := run(ctx, []string{"-log-level", "off", "serve", "-listen", "127.0.0.1:0"}, &bytes.Buffer{}, &stderr)
	require.NoError(t, err)
}
