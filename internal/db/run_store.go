package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/masi-agreement/internal/experiment"
	"github.com/banshee-data/masi-agreement/internal/report"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("db: run not found")

// Coefficient names used for stored null samples.
const (
	CoefficientAlpha = "alpha"
	CoefficientKappa = "kappa"
)

const (
	maxBusyRetries = 5
	busyBackoff    = 50 * time.Millisecond
)

// Stat is a stored coefficient estimate.
type Stat struct {
	Value      float64 `json:"value"`
	StdErr     float64 `json:"std_err"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	PValue     float64 `json:"p_value"`
	PermPValue float64 `json:"perm_p_value"`
}

// Run is one stored experiment run.
type Run struct {
	ID          string  `json:"run_id"`
	Input       string  `json:"input"`
	Separator   string  `json:"separator"`
	Trim        bool    `json:"trim"`
	Trials      int     `json:"trials"`
	Completed   int     `json:"completed"`
	Partial     bool    `json:"partial"`
	Seed        uint64  `json:"seed"`
	Confidence  float64 `json:"confidence"`
	Alpha       Stat    `json:"alpha"`
	Kappa       Stat    `json:"kappa"`
	Failures    int     `json:"failures"`
	ElapsedMS   int64   `json:"elapsed_ms"`
	SummaryJSON string  `json:"-"`
	CreatedAt   int64   `json:"created_at"` // unix nanoseconds
}

// NewRun builds a Run from a report summary and the configuration that
// produced it.
func NewRun(s report.Summary, cfg experiment.Config, input string) (*Run, error) {
	summary, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal summary")
	}
	stat := func(c report.CoefficientReport) Stat {
		return Stat{
			Value:      c.Value,
			StdErr:     c.StdErr,
			Lower:      c.Lower,
			Upper:      c.Upper,
			PValue:     c.PValue,
			PermPValue: c.Permutation.PValue,
		}
	}
	return &Run{
		ID:          s.RunID,
		Input:       input,
		Separator:   cfg.Separator,
		Trim:        cfg.Trim,
		Trials:      s.Trials,
		Completed:   s.Completed,
		Partial:     s.Partial,
		Seed:        s.Seed,
		Confidence:  cfg.ConfidenceLevel,
		Alpha:       stat(s.Alpha),
		Kappa:       stat(s.Kappa),
		Failures:    len(s.Failures),
		ElapsedMS:   s.ElapsedMS,
		SummaryJSON: string(summary),
	}, nil
}

// RunStore provides persistence for experiment runs and their null
// samples.
type RunStore struct {
	db  *DB
	now func() time.Time
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db, now: time.Now}
}

// Insert stores run and its null samples in one transaction. An empty
// ID is replaced by a new UUID; NaN samples are stored as NULL.
func (s *RunStore) Insert(ctx context.Context, run *Run, alphaNull, kappaNull []float64) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.now().UnixNano()
	}

	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin transaction")
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO agreement_runs (
				run_id, input, separator, trim_tokens, trials, completed, partial, seed, confidence,
				alpha, alpha_std_err, alpha_lower, alpha_upper, alpha_p_value, alpha_perm_p_value,
				kappa, kappa_std_err, kappa_lower, kappa_upper, kappa_p_value, kappa_perm_p_value,
				failures, elapsed_ms, summary_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Input, run.Separator, run.Trim, run.Trials, run.Completed, run.Partial,
			int64(run.Seed), run.Confidence,
			run.Alpha.Value, run.Alpha.StdErr, run.Alpha.Lower, run.Alpha.Upper, run.Alpha.PValue, run.Alpha.PermPValue,
			run.Kappa.Value, run.Kappa.StdErr, run.Kappa.Lower, run.Kappa.Upper, run.Kappa.PValue, run.Kappa.PermPValue,
			run.Failures, run.ElapsedMS, nullString(run.SummaryJSON), run.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "insert run")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO agreement_null_samples (run_id, coefficient, trial, value)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare sample insert")
		}
		defer stmt.Close()

		for _, set := range []struct {
			name   string
			values []float64
		}{
			{CoefficientAlpha, alphaNull},
			{CoefficientKappa, kappaNull},
		} {
			for trial, v := range set.values {
				value := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
				if _, err := stmt.ExecContext(ctx, run.ID, set.name, trial, value); err != nil {
					return errors.Wrapf(err, "insert %s sample %d", set.name, trial)
				}
			}
		}
		return tx.Commit()
	})
}

const runColumns = `
	run_id, input, separator, trim_tokens, trials, completed, partial, seed, confidence,
	alpha, alpha_std_err, alpha_lower, alpha_upper, alpha_p_value, alpha_perm_p_value,
	kappa, kappa_std_err, kappa_lower, kappa_upper, kappa_p_value, kappa_perm_p_value,
	failures, elapsed_ms, summary_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r       Run
		seed    int64
		summary sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Input, &r.Separator, &r.Trim, &r.Trials, &r.Completed, &r.Partial, &seed, &r.Confidence,
		&r.Alpha.Value, &r.Alpha.StdErr, &r.Alpha.Lower, &r.Alpha.Upper, &r.Alpha.PValue, &r.Alpha.PermPValue,
		&r.Kappa.Value, &r.Kappa.StdErr, &r.Kappa.Lower, &r.Kappa.Upper, &r.Kappa.PValue, &r.Kappa.PermPValue,
		&r.Failures, &r.ElapsedMS, &summary, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Seed = uint64(seed)
	r.SummaryJSON = summary.String
	return &r, nil
}

// Get returns the run with the given ID.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM agreement_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get run")
	}
	return r, nil
}

// List returns the most recent runs, newest first. A non-positive limit
// returns all runs.
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM agreement_runs ORDER BY created_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Samples returns the stored alpha and kappa null samples of a run in
// trial order. NULL values come back as NaN.
func (s *RunStore) Samples(ctx context.Context, id string) (alpha, kappa []float64, err error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT coefficient, value FROM agreement_null_samples
		WHERE run_id = ?
		ORDER BY coefficient, trial`, id)
	if err != nil {
		return nil, nil, errors.Wrap(err, "query samples")
	}
	defer rows.Close()

	alpha, kappa = []float64{}, []float64{}
	for rows.Next() {
		var (
			name  string
			value sql.NullFloat64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, nil, errors.Wrap(err, "scan sample")
		}
		v := math.NaN()
		if value.Valid {
			v = value.Float64
		}
		switch name {
		case CoefficientAlpha:
			alpha = append(alpha, v)
		case CoefficientKappa:
			kappa = append(kappa, v)
		}
	}
	return alpha, kappa, rows.Err()
}

// Delete removes a run and its samples.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin transaction")
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM agreement_null_samples WHERE run_id = ?`, id); err != nil {
			return errors.Wrap(err, "delete samples")
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM agreement_runs WHERE run_id = ?`, id)
		if err != nil {
			return errors.Wrap(err, "delete run")
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "rows affected")
		}
		if affected == 0 {
			return errors.Wrapf(ErrNotFound, "run %s", id)
		}
		return tx.Commit()
	})
}

// retryOnBusy retries fn while SQLite reports the database as busy.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxBusyRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(busyBackoff * time.Duration(attempt+1))
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
