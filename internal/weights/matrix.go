// Package weights builds the pairwise MASI weight matrix over every
// distinct raw response observed in a ratings table.
//
// Rows and columns are indexed by the raw response string, not by the
// parsed label set: "l1, l2" and "l2, l1" are distinct categories with a
// similarity of 1 between them. The build is quadratic in the number of
// distinct responses, which is fine for closed label vocabularies but does
// not scale to open-vocabulary data.
package weights

import (
	"fmt"
	"strings"

	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/banshee-data/masi-agreement/internal/masi"
	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrNoResponses is returned when a table has no present responses to
// index the matrix by.
var ErrNoResponses = errors.New("weights: no non-missing responses in ratings table")

// DefaultMaxLabels is the distinct-response count above which Build warns.
const DefaultMaxLabels = 500

// Matrix is a symmetric weight matrix with its category labels. It is
// never mutated after Build returns and may be shared between goroutines.
type Matrix struct {
	Labels []string
	Mode   masi.Mode

	sym   *mat.SymDense
	index map[string]int
}

type buildConfig struct {
	separator string
	mode      masi.Mode
	trim      bool
	maxLabels int
	logger    *zap.SugaredLogger
}

// Option configures Build.
type Option func(*buildConfig)

// WithMode fills the matrix with MASI distances instead of similarities.
func WithMode(m masi.Mode) Option { return func(c *buildConfig) { c.mode = m } }

// WithTrim trims whitespace around each parsed label.
func WithTrim() Option { return func(c *buildConfig) { c.trim = true } }

// WithMaxLabels sets the warning threshold for the distinct-response count.
func WithMaxLabels(n int) Option { return func(c *buildConfig) { c.maxLabels = n } }

// WithLogger sets the logger used for size warnings.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *buildConfig) { c.logger = l } }

// Build collects the distinct raw responses of t, sorted, and fills the
// pairwise MASI matrix between their parsed label sets.
func Build(t *ratings.Table, separator string, opts ...Option) (*Matrix, error) {
	cfg := buildConfig{
		separator: separator,
		maxLabels: DefaultMaxLabels,
		logger:    zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	labels := t.Distinct()
	if len(labels) == 0 {
		return nil, errors.WithHint(ErrNoResponses, "check the missing-value tokens used when loading the table")
	}
	if cfg.maxLabels > 0 && len(labels) > cfg.maxLabels {
		cfg.logger.Warnw("large weight matrix",
			"distinct_responses", len(labels),
			"threshold", cfg.maxLabels,
			"cells", len(labels)*len(labels))
	}
	return FromLabels(labels, cfg.separator, cfg.mode, cfg.trim)
}

// FromLabels builds a matrix over the given raw labels, which must be
// distinct. Labels are used in the order given.
func FromLabels(labels []string, separator string, mode masi.Mode, trim bool) (*Matrix, error) {
	if len(labels) == 0 {
		return nil, ErrNoResponses
	}

	sets := make([]labelset.Set, len(labels))
	index := make(map[string]int, len(labels))
	for i, raw := range labels {
		if _, dup := index[raw]; dup {
			return nil, errors.Newf("weights: duplicate label %q", raw)
		}
		index[raw] = i
		if trim {
			sets[i] = labelset.ParseTrimmed(raw, separator)
		} else {
			sets[i] = labelset.Parse(raw, separator)
		}
	}

	n := len(labels)
	sym := mat.NewSymDense(n, nil)
	opts := masi.Options{Mode: mode}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v, err := masi.Compare(sets[i], sets[j], opts)
			if err != nil {
				return nil, errors.Wrapf(err, "compare %q with %q", labels[i], labels[j])
			}
			sym.SetSym(i, j, v)
		}
	}

	return &Matrix{
		Labels: append([]string(nil), labels...),
		Mode:   mode,
		sym:    sym,
		index:  index,
	}, nil
}

// Len returns the number of categories.
func (m *Matrix) Len() int { return len(m.Labels) }

// At returns the weight between categories i and j.
func (m *Matrix) At(i, j int) float64 { return m.sym.At(i, j) }

// Index returns the position of raw in Labels.
func (m *Matrix) Index(raw string) (int, bool) {
	i, ok := m.index[raw]
	return i, ok
}

// Weight returns the weight between two raw responses.
func (m *Matrix) Weight(x, y string) (float64, bool) {
	i, ok := m.Index(x)
	if !ok {
		return 0, false
	}
	j, ok := m.Index(y)
	if !ok {
		return 0, false
	}
	return m.At(i, j), true
}

// Symmetric exposes the matrix for read-only linear algebra.
func (m *Matrix) Symmetric() mat.Symmetric { return m.sym }

// Dense returns a copy of the matrix as a general dense matrix.
func (m *Matrix) Dense() *mat.Dense {
	var d mat.Dense
	d.CloneFrom(m.sym)
	return &d
}

// String renders the matrix as an aligned text table.
func (m *Matrix) String() string {
	width := 6
	for _, l := range m.Labels {
		if len(l)+2 > width {
			width = len(l) + 2
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-*s", width, "")
	for _, l := range m.Labels {
		fmt.Fprintf(&sb, "%*s", width, l)
	}
	sb.WriteByte('\n')
	for i, l := range m.Labels {
		fmt.Fprintf(&sb, "%-*s", width, l)
		for j := range m.Labels {
			fmt.Fprintf(&sb, "%*.4f", width, m.At(i, j))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
