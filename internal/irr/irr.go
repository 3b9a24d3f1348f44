// Package irr computes chance-corrected inter-rater agreement
// coefficients over a ratings table and a category weight matrix.
//
// Both coefficients follow the raw-ratings formulation with weights:
// per item i and category k, r_ik counts the raters that chose k and
// r*_ik = Σ_l w_kl r_il is its weighted count. Variances come from the
// linearised per-item contributions, and intervals use Student's t with
// n-1 degrees of freedom.
package irr

import (
	"math"

	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/banshee-data/masi-agreement/internal/weights"
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrUnknownLabel is returned when the table holds a response that is
	// not a category of the weight matrix.
	ErrUnknownLabel = errors.New("irr: response not in weight matrix labels")
	// ErrInsufficientData is returned when fewer than two items were
	// rated by at least two raters.
	ErrInsufficientData = errors.New("irr: fewer than two items with two or more ratings")
	// ErrDegenerate is returned when chance agreement is 1 and the
	// coefficient is undefined.
	ErrDegenerate = errors.New("irr: chance agreement is 1")
	// ErrConfidence is returned for a confidence level outside (0, 1).
	ErrConfidence = errors.New("irr: confidence level must be in (0, 1)")
)

// Estimate is one coefficient value with its sampling statistics.
type Estimate struct {
	Coefficient string  `json:"coefficient"`
	Value       float64 `json:"value"`
	StdErr      float64 `json:"std_err"`
	PValue      float64 `json:"p_value"`
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
	Confidence  float64 `json:"confidence"`
	Items       int     `json:"items"`
	// Observed and chance agreement the value was derived from.
	Pa float64 `json:"pa"`
	Pe float64 `json:"pe"`
}

// Coefficient computes one agreement coefficient. Implementations must be
// safe for concurrent use; they receive the matrix read-only.
type Coefficient interface {
	Name() string
	Compute(t *ratings.Table, w *weights.Matrix, confidence float64) (Estimate, error)
}

// degenerateTolerance guards 1-pe against rounding in weighted sums.
const degenerateTolerance = 1e-12

// classification holds the per-item category counts.
type classification struct {
	counts   *mat.Dense // n×q r_ik
	weighted *mat.Dense // n×q r*_ik
	rated    []float64  // r_i
}

// classify counts responses per item and category. Missing cells are
// skipped; a response absent from w fails with ErrUnknownLabel.
func classify(t *ratings.Table, w *weights.Matrix) (*classification, error) {
	n, q := t.Rows(), w.Len()
	if n == 0 {
		return nil, ErrInsufficientData
	}
	counts := mat.NewDense(n, q, nil)
	rated := make([]float64, n)
	for i, row := range t.Cells {
		for _, c := range row {
			if !c.Valid {
				continue
			}
			k, ok := w.Index(c.Raw)
			if !ok {
				return nil, errors.Wrapf(ErrUnknownLabel, "item %q: %q", t.Items[i], c.Raw)
			}
			counts.Set(i, k, counts.At(i, k)+1)
			rated[i]++
		}
	}

	var weighted mat.Dense
	weighted.Mul(counts, w.Symmetric())
	return &classification{counts: counts, weighted: &weighted, rated: rated}, nil
}

// agreementSum returns Σ_k r_ik (r*_ik - 1) for item i.
func (c *classification) agreementSum(i int) float64 {
	_, q := c.counts.Dims()
	var s float64
	for k := 0; k < q; k++ {
		s += c.counts.At(i, k) * (c.weighted.At(i, k) - 1)
	}
	return s
}

// chanceAgreement returns Σ_kl w_kl π_k π_l.
func chanceAgreement(w *weights.Matrix, pi []float64) float64 {
	var pe float64
	for k := range pi {
		for l := range pi {
			pe += w.At(k, l) * pi[k] * pi[l]
		}
	}
	return pe
}

// symmetrisedPi returns (W π + Wᵀ π)/2, which is W π for a symmetric W.
func symmetrisedPi(w *weights.Matrix, pi []float64) []float64 {
	var out mat.VecDense
	out.MulVec(w.Symmetric(), mat.NewVecDense(len(pi), pi))
	return out.RawVector().Data
}

func checkConfidence(confidence float64) error {
	if !(confidence > 0 && confidence < 1) {
		return errors.Wrapf(ErrConfidence, "got %v", confidence)
	}
	return nil
}

// finish fills the standard error, p-value and interval of e from the
// variance over n items.
func finish(e *Estimate, variance float64, n int) {
	e.StdErr = math.Sqrt(math.Max(variance, 0))
	df := float64(n - 1)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	switch {
	case e.StdErr > 0:
		e.PValue = 2 * (1 - t.CDF(math.Abs(e.Value/e.StdErr)))
	case e.Value != 0:
		e.PValue = 0
	default:
		e.PValue = 1
	}

	crit := t.Quantile(1 - (1-e.Confidence)/2)
	e.Lower = e.Value - e.StdErr*crit
	e.Upper = math.Min(1, e.Value+e.StdErr*crit)
}
