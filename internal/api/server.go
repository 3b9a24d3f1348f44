// Package api serves a read-only HTTP view of stored agreement runs.
package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/masi-agreement/internal/db"
	"github.com/banshee-data/masi-agreement/internal/httputil"
	"github.com/banshee-data/masi-agreement/internal/logging"
	"github.com/banshee-data/masi-agreement/internal/report"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const defaultListLimit = 50

// RunReader is the subset of the run store the server reads from.
type RunReader interface {
	Get(ctx context.Context, id string) (*db.Run, error)
	List(ctx context.Context, limit int) ([]*db.Run, error)
	Samples(ctx context.Context, id string) (alpha, kappa []float64, err error)
}

type Server struct {
	runs RunReader
	bins int
	log  *zap.SugaredLogger
}

func NewServer(runs RunReader, logger *zap.SugaredLogger) *Server {
	return &Server{
		runs: runs,
		bins: report.DefaultBins,
		log:  logging.OrNop(logger),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status, and duration
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.log.Infow("http request",
			"status", lrw.statusCode,
			"method", r.Method,
			"uri", r.RequestURI,
			"ms", float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("GET /api/runs/{id}/samples", s.showSamples)
	mux.HandleFunc("GET /runs/{id}/histogram", s.showHistogram)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.LoggingMiddleware(s.ServeMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Infow("serving agreement runs", "addr", addr)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "failed to start server")
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("HTTP server shutdown error", "error", err)
		return server.Close()
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	if err := httputil.WriteJSON(w, http.StatusOK, v); err != nil {
		s.log.Warnw("failed to encode response", "error", err)
	}
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		_ = httputil.NotFound(w, "run not found")
		return
	}
	s.log.Errorw("run store error", "error", err)
	_ = httputil.InternalServerError(w)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			_ = httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	if run.SummaryJSON == "" {
		s.writeJSON(w, run)
		return
	}
	s.writeJSON(w, struct {
		*db.Run
		Summary json.RawMessage `json:"summary"`
	}{run, json.RawMessage(run.SummaryJSON)})
}

func (s *Server) showSamples(w http.ResponseWriter, r *http.Request) {
	alpha, kappa, err := s.runs.Samples(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	// NaN slots are not representable in JSON
	s.writeJSON(w, map[string][]*float64{
		db.CoefficientAlpha: nullable(alpha),
		db.CoefficientKappa: nullable(kappa),
	})
}

func (s *Server) showHistogram(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	alpha, kappa, err := s.runs.Samples(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = report.HistogramHTML(w, []report.Series{
		{Name: "Krippendorff's alpha", Nulls: alpha, Observed: run.Alpha.Value},
		{Name: "Fleiss' kappa", Nulls: kappa, Observed: run.Kappa.Value},
	}, s.bins)
	if err != nil {
		s.log.Errorw("failed to render histogram", "run_id", id, "error", err)
	}
}

func nullable(xs []float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := range xs {
		if !math.IsNaN(xs[i]) {
			out[i] = &xs[i]
		}
	}
	return out
}
