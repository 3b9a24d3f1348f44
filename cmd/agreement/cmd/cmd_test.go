package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/banshee-data/masi-agreement/internal/masi"
	"github.com/banshee-data/masi-agreement/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleCSV = filepath.Join("..", "..", "..", "testdata", "annotations.csv")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMasiCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"subset", []string{"masi", "l1, l2", "l1"}, "0.333333"},
		{"identical", []string{"masi", "a, b", "b, a"}, "1.000000"},
		{"distance", []string{"masi", "--distance", "a", "b"}, "1.000000"},
		{"jaccard only", []string{"masi", "--jaccard-only", "a, b", "a"}, "0.500000"},
		{"custom separator", []string{"masi", "--separator", "|", "a|b", "b|c"}, "0.111111"},
		{"trimmed", []string{"masi", "--separator", ",", "--trim", "a, b", "a,b"}, "1.000000"},
		{"empty sets fallback", []string{"masi", "--jaccard-only", "--empty-fallback", "", ""}, "1.000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestMasiCommand_UndefinedEmpty(t *testing.T) {
	_, err := execute(t, "masi", "--jaccard-only", "", "")
	assert.ErrorIs(t, err, masi.ErrUndefined)
}

func TestMatrixCommand_JSON(t *testing.T) {
	out, err := execute(t, "matrix", "--json", sampleCSV)
	require.NoError(t, err)

	var got struct {
		Labels  []string    `json:"labels"`
		Mode    string      `json:"mode"`
		Weights [][]float64 `json:"weights"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"l1", "l1, l2", "l2"}, got.Labels)
	assert.Equal(t, "similarity", got.Mode)
	assert.InDelta(t, 1.0/3.0, got.Weights[0][1], 1e-12)
	assert.Equal(t, 0.0, got.Weights[0][2])
}

func TestMatrixCommand_Text(t *testing.T) {
	out, err := execute(t, "matrix", sampleCSV)
	require.NoError(t, err)
	assert.Contains(t, out, "l1, l2")
	assert.Contains(t, out, "1.0000")
}

func TestRunCommand_WritesReportAndStoresRun(t *testing.T) {
	dir := t.TempDir()
	reportDir := filepath.Join(dir, "report")
	dbPath := filepath.Join(dir, "runs.db")

	out, err := execute(t, "run", sampleCSV,
		"--trials", "30", "--seed", "11", "--workers", "2",
		"--output-dir", reportDir, "--bins", "8", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "krippendorff_alpha")
	assert.Contains(t, out, "fleiss_kappa")
	assert.Contains(t, out, "30/30 completed (seed 11)")

	for _, name := range []string{report.SummaryFile, report.AlphaPlotFile, report.KappaPlotFile, report.ChartFile} {
		_, err := os.Stat(filepath.Join(reportDir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(reportDir, report.SummaryFile))
	require.NoError(t, err)
	var summary report.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, uint64(11), summary.Seed)
	assert.Equal(t, 30, summary.Alpha.Permutation.Samples)

	database, err := db.Open(dbPath, nil)
	require.NoError(t, err)
	defer database.Close()
	runs, err := db.NewRunStore(database).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.InDelta(t, summary.Alpha.Value, runs[0].Alpha.Value, 1e-12)

	listOut, err := execute(t, "runs", "list", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, listOut, summary.RunID)

	showOut, err := execute(t, "runs", "show", summary.RunID, "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, showOut, `"run_id":"`+summary.RunID+`"`)

	delOut, err := execute(t, "runs", "delete", summary.RunID, "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, delOut, "deleted")

	_, err = execute(t, "runs", "show", summary.RunID, "--database", dbPath)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRunCommand_SameSeedSameResult(t *testing.T) {
	read := func() report.Summary {
		dir := t.TempDir()
		_, err := execute(t, "run", sampleCSV, "--trials", "20", "--seed", "5", "--output-dir", dir)
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, report.SummaryFile))
		require.NoError(t, err)
		var s report.Summary
		require.NoError(t, json.Unmarshal(data, &s))
		return s
	}
	a, b := read(), read()
	assert.Equal(t, a.Alpha.Permutation, b.Alpha.Permutation)
	assert.Equal(t, a.Kappa.Null, b.Kappa.Null)
}

func TestRunCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agreement.json")
	reportDir := filepath.Join(dir, "out")
	body := `{"trials": 3, "seed": 99, "output_dir": "` + filepath.ToSlash(reportDir) + `"}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	out, err := execute(t, "--config", cfgPath, "run", sampleCSV)
	require.NoError(t, err)
	assert.Contains(t, out, "3/3 completed (seed 99)")
	_, err = os.Stat(filepath.Join(reportDir, report.SummaryFile))
	assert.NoError(t, err)

	// flags override the file
	out, err = execute(t, "--config", cfgPath, "run", sampleCSV, "--trials", "0", "--no-report")
	require.NoError(t, err)
	assert.Contains(t, out, "0/0 completed (seed 99)")
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = execute(t, "run", sampleCSV, "--confidence-level", "1.5")
	assert.Error(t, err)

	_, err = execute(t, "runs", "list")
	assert.ErrorContains(t, err, "no database configured")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "agreement dev"))
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "migrate", "version", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0 (dirty: false)")

	out, err = execute(t, "migrate", "up", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1 (dirty: false)")

	out, err = execute(t, "migrate", "down", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	out, err = execute(t, "migrate", "force", "1", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1 (dirty: false)")

	_, err = execute(t, "migrate", "force", "one", "--database", dbPath)
	assert.Error(t, err)
	_, err = execute(t, "migrate", "version")
	assert.ErrorContains(t, err, "no database configured")
}

func TestMatrixCommand_LongFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.csv")
	body := "item,rater,label\n1,r1,\"l1, l2\"\n1,r2,l1\n2,r1,l2\n2,r2,NA\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	out, err := execute(t, "matrix", "--long", "--json", path)
	require.NoError(t, err)
	var got struct {
		Labels []string `json:"labels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"l1", "l1, l2", "l2"}, got.Labels)
}

func TestRootCommand_ConfigFileChecks(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "agreement.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("trials: 3\n"), 0o644))
	_, err := execute(t, "--config", yamlPath, "version")
	assert.ErrorContains(t, err, ".json")

	jsonPath := filepath.Join(dir, "agreement.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"seed": 18446744073709551615, "trials": 0}`), 0o644))
	out, err := execute(t, "--config", jsonPath, "run", sampleCSV, "--no-report")
	require.NoError(t, err)
	assert.Contains(t, out, "(seed 18446744073709551615)")
}
