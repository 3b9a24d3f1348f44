package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/banshee-data/masi-agreement/internal/experiment"
	"github.com/banshee-data/masi-agreement/internal/irr"
	"github.com/banshee-data/masi-agreement/internal/report"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*Server, *db.Run) {
	t.Helper()
	dbInst, err := db.Open(filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { dbInst.Close() })

	store := db.NewRunStore(dbInst)
	alphaNull := []float64{0.1, math.NaN(), -0.2}
	kappaNull := []float64{0.05, 0.0, -0.1}
	summary := report.Summary{
		Labels: []string{"l1", "l2"},
		Alpha: report.CoefficientReport{
			Estimate:    irr.Estimate{Coefficient: "krippendorff_alpha", Value: 0.53},
			Permutation: report.PValue(0.53, alphaNull),
		},
		Kappa: report.CoefficientReport{
			Estimate:    irr.Estimate{Coefficient: "fleiss_kappa", Value: 0.47},
			Permutation: report.PValue(0.47, kappaNull),
		},
		Trials:    3,
		Completed: 3,
	}
	run, err := db.NewRun(summary, experiment.DefaultConfig(), "annotations.csv")
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), run, alphaNull, kappaNull))

	return NewServer(store, nil), run
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)
	return w
}

func TestListRuns(t *testing.T) {
	server, run := setupTestServer(t)

	w := get(t, server, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var runs []db.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 0.53, runs[0].Alpha.Value)
}

func TestListRuns_InvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)
	for _, q := range []string{"abc", "-1"} {
		w := get(t, server, "/api/runs?limit="+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestShowRun(t *testing.T) {
	server, run := setupTestServer(t)

	w := get(t, server, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, run.ID, body["run_id"])
	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok, "summary should be embedded")
	assert.Equal(t, []any{"l1", "l2"}, summary["labels"])
}

func TestShowRun_NotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := get(t, server, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "run not found")
}

func TestShowSamples(t *testing.T) {
	server, run := setupTestServer(t)

	w := get(t, server, "/api/runs/"+run.ID+"/samples")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]*float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body["alpha"], 3)
	assert.Nil(t, body["alpha"][1])
	assert.Equal(t, 0.1, *body["alpha"][0])
	assert.Equal(t, -0.1, *body["kappa"][2])
}

func TestShowHistogram(t *testing.T) {
	server, run := setupTestServer(t)

	w := get(t, server, "/runs/"+run.ID+"/histogram")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "Agreement null distributions")
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type failingReader struct{}

func (failingReader) Get(context.Context, string) (*db.Run, error) {
	return nil, errors.New("disk on fire")
}

func (failingReader) List(context.Context, int) ([]*db.Run, error) {
	return nil, errors.New("disk on fire")
}

func (failingReader) Samples(context.Context, string) ([]float64, []float64, error) {
	return nil, nil, errors.New("disk on fire")
}

func TestStoreErrorsAreInternal(t *testing.T) {
	server := NewServer(failingReader{}, nil)
	for _, path := range []string{"/api/runs", "/api/runs/x", "/api/runs/x/samples", "/runs/x/histogram"} {
		w := get(t, server, path)
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.NotContains(t, w.Body.String(), "disk on fire", path)
	}
}

func TestLoggingMiddlewarePassesStatus(t *testing.T) {
	server, _ := setupTestServer(t)
	h := server.LoggingMiddleware(server.ServeMux())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
