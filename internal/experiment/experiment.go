// Package experiment runs the agreement permutation test: it computes the
// observed coefficients on a ratings table and builds their null
// distributions by recomputing them over whole-table reshuffles.
package experiment

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/masi-agreement/internal/irr"
	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/banshee-data/masi-agreement/internal/logging"
	"github.com/banshee-data/masi-agreement/internal/permute"
	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/banshee-data/masi-agreement/internal/timeutil"
	"github.com/banshee-data/masi-agreement/internal/weights"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTrials     = 500
	DefaultConfidence = 0.95
	progressEvery     = 100
)

// Config controls one experiment run.
type Config struct {
	Separator string
	Trim      bool
	// MaxLabels is the matrix size above which a warning is logged; 0
	// means weights.DefaultMaxLabels.
	MaxLabels       int
	Trials          int
	ConfidenceLevel float64
	// Workers bounds concurrent trials; 0 means GOMAXPROCS.
	Workers int
	Seed    uint64
	// Budget bounds the wall time spent on trials; 0 means unbounded.
	Budget time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Separator:       labelset.DefaultSeparator,
		Trials:          DefaultTrials,
		ConfidenceLevel: DefaultConfidence,
	}
}

// Validate checks cfg.
func (c Config) Validate() error {
	if c.Trials < 0 {
		return errors.Newf("trials must be non-negative, got %d", c.Trials)
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return errors.Newf("confidence level must be in (0, 1), got %v", c.ConfidenceLevel)
	}
	if c.MaxLabels < 0 {
		return errors.Newf("max labels must be non-negative, got %d", c.MaxLabels)
	}
	if c.Workers < 0 {
		return errors.Newf("workers must be non-negative, got %d", c.Workers)
	}
	if c.Budget < 0 {
		return errors.Newf("budget must be non-negative, got %v", c.Budget)
	}
	return nil
}

// TrialFailure records a coefficient that could not be computed for one
// reshuffled table. The matching null sample holds NaN.
type TrialFailure struct {
	Trial       int    `json:"trial"`
	Coefficient string `json:"coefficient"`
	Err         error  `json:"-"`
	Message     string `json:"error"`
}

// Result is the outcome of Run. Null slices have one slot per requested
// trial; slots for skipped or failed trials hold NaN.
type Result struct {
	Matrix    *weights.Matrix `json:"-"`
	Alpha     irr.Estimate    `json:"alpha"`
	Kappa     irr.Estimate    `json:"kappa"`
	AlphaNull []float64       `json:"-"`
	KappaNull []float64       `json:"-"`
	Failures  []TrialFailure  `json:"failures,omitempty"`
	Trials    int             `json:"trials"`
	Completed int             `json:"completed"`
	// Partial is set when any trial was skipped or failed.
	Partial bool          `json:"partial"`
	Seed    uint64        `json:"seed"`
	Elapsed time.Duration `json:"elapsed"`
}

// AlphaSamples returns the alpha null samples that were computed.
func (r *Result) AlphaSamples() []float64 { return present(r.AlphaNull) }

// KappaSamples returns the kappa null samples that were computed.
func (r *Result) KappaSamples() []float64 { return present(r.KappaNull) }

// Skipped returns the number of trials not run because of the budget or
// cancellation.
func (r *Result) Skipped() int { return r.Trials - r.Completed }

func present(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Runner orchestrates an experiment. The zero value is not usable; use
// NewRunner.
type Runner struct {
	Alpha  irr.Coefficient
	Kappa  irr.Coefficient
	Clock  timeutil.Clock
	Logger *zap.SugaredLogger
}

// NewRunner returns a runner using the bundled coefficient implementations.
func NewRunner(logger *zap.SugaredLogger) *Runner {
	return &Runner{
		Alpha:  irr.KrippendorffAlpha{},
		Kappa:  irr.FleissKappa{},
		Clock:  timeutil.RealClock{},
		Logger: logging.OrNop(logger),
	}
}

// Run builds the weight matrix once, computes the observed coefficients
// and then cfg.Trials null samples. Failures of the observed computation
// are returned as errors; failures of individual trials are recorded in
// the result.
func (r *Runner) Run(ctx context.Context, t *ratings.Table, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r.Alpha == nil || r.Kappa == nil {
		return nil, errors.New("experiment: runner needs both coefficients")
	}
	clock := timeutil.OrReal(r.Clock)
	log := logging.OrNop(r.Logger)
	start := clock.Now()

	opts := []weights.Option{weights.WithLogger(log)}
	if cfg.Trim {
		opts = append(opts, weights.WithTrim())
	}
	if cfg.MaxLabels > 0 {
		opts = append(opts, weights.WithMaxLabels(cfg.MaxLabels))
	}
	m, err := weights.Build(t, cfg.Separator, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "build weight matrix")
	}
	log.Debugw("weight matrix built", "categories", m.Len())

	alpha, err := r.Alpha.Compute(t, m, cfg.ConfidenceLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "observed %s", r.Alpha.Name())
	}
	kappa, err := r.Kappa.Compute(t, m, cfg.ConfidenceLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "observed %s", r.Kappa.Name())
	}

	res := &Result{
		Matrix:    m,
		Alpha:     alpha,
		Kappa:     kappa,
		AlphaNull: nanSlice(cfg.Trials),
		KappaNull: nanSlice(cfg.Trials),
		Trials:    cfg.Trials,
		Seed:      cfg.Seed,
	}
	if cfg.Trials == 0 {
		res.Elapsed = clock.Since(start)
		return res, nil
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	streams := permute.NewStreams(cfg.Seed)

	expired := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return cfg.Budget > 0 && clock.Since(start) >= cfg.Budget
	}

	var (
		mu        sync.Mutex
		completed atomic.Int64
		g         errgroup.Group
	)
	g.SetLimit(workers)

	for i := 0; i < cfg.Trials; i++ {
		if expired() {
			break
		}
		g.Go(func() error {
			if expired() {
				return nil
			}
			shuffled := permute.Reshuffle(t, streams.Stream(i))
			fails := r.trial(i, shuffled, m, cfg.ConfidenceLevel, res)
			if len(fails) > 0 {
				mu.Lock()
				res.Failures = append(res.Failures, fails...)
				mu.Unlock()
			}
			if n := completed.Add(1); n%progressEvery == 0 {
				log.Debugw("permutation progress", "completed", n, "trials", cfg.Trials)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Failures, func(a, b int) bool {
		if res.Failures[a].Trial != res.Failures[b].Trial {
			return res.Failures[a].Trial < res.Failures[b].Trial
		}
		return res.Failures[a].Coefficient < res.Failures[b].Coefficient
	})
	res.Completed = int(completed.Load())
	res.Partial = res.Completed < res.Trials || len(res.Failures) > 0
	res.Elapsed = clock.Since(start)

	if res.Completed < res.Trials {
		log.Warnw("permutation test stopped early",
			"completed", res.Completed,
			"trials", res.Trials,
			"reason", stopReason(ctx))
	}
	if len(res.Failures) > 0 {
		log.Warnw("permutation trials failed", "failures", len(res.Failures), "first", res.Failures[0].Message)
	}
	log.Infow("permutation test finished",
		"alpha", res.Alpha.Value,
		"kappa", res.Kappa.Value,
		"completed", res.Completed,
		"elapsed", res.Elapsed)
	return res, nil
}

// trial computes both coefficients for one reshuffled table and stores
// them at index i. Each index is written by exactly one goroutine.
func (r *Runner) trial(i int, t *ratings.Table, m *weights.Matrix, confidence float64, res *Result) []TrialFailure {
	var fails []TrialFailure
	for _, c := range []struct {
		coef irr.Coefficient
		dst  []float64
	}{
		{r.Alpha, res.AlphaNull},
		{r.Kappa, res.KappaNull},
	} {
		e, err := c.coef.Compute(t, m, confidence)
		if err != nil {
			fails = append(fails, TrialFailure{Trial: i, Coefficient: c.coef.Name(), Err: err, Message: err.Error()})
			continue
		}
		c.dst[i] = e.Value
	}
	return fails
}

func stopReason(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "budget exhausted"
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
