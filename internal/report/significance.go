// Package report turns experiment results into significance figures and
// rendered null-distribution histograms.
package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Significance is the one-sided permutation p-value of an observed value
// against its null samples.
type Significance struct {
	Observed float64 `json:"observed"`
	// Exceed counts null samples greater than or equal to Observed.
	Exceed  int `json:"exceed"`
	Samples int `json:"samples"`
	// PValue is (Exceed+1)/(Samples+1), which never reports exactly zero.
	PValue float64 `json:"p_value"`
	// Fraction is the plain Exceed/Samples; zero without samples.
	Fraction float64 `json:"fraction"`
}

// PValue compares observed with the null samples, ignoring NaN slots.
func PValue(observed float64, nulls []float64) Significance {
	s := Significance{Observed: observed}
	for _, v := range nulls {
		if math.IsNaN(v) {
			continue
		}
		s.Samples++
		if v >= observed {
			s.Exceed++
		}
	}
	s.PValue = float64(s.Exceed+1) / float64(s.Samples+1)
	if s.Samples > 0 {
		s.Fraction = float64(s.Exceed) / float64(s.Samples)
	}
	return s
}

// NullSummary describes a null distribution.
type NullSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Q025   float64 `json:"q025"`
	Median float64 `json:"median"`
	Q975   float64 `json:"q975"`
	Max    float64 `json:"max"`
}

// Summarise computes the summary of the non-NaN values of nulls. An empty
// input gives a zero summary.
func Summarise(nulls []float64) NullSummary {
	xs := finite(nulls)
	if len(xs) == 0 {
		return NullSummary{}
	}
	sort.Float64s(xs)
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	return NullSummary{
		Count:  len(xs),
		Mean:   mean,
		StdDev: std,
		Min:    xs[0],
		Q025:   stat.Quantile(0.025, stat.Empirical, xs, nil),
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
		Q975:   stat.Quantile(0.975, stat.Empirical, xs, nil),
		Max:    xs[len(xs)-1],
	}
}

// Bin is one histogram bucket [Lo, Hi).
type Bin struct {
	Lo    float64
	Hi    float64
	Count int
}

// Bins buckets the non-NaN values of nulls into n equal-width bins whose
// range also covers extra (typically the observed value).
func Bins(nulls []float64, n int, extra ...float64) []Bin {
	xs := finite(nulls)
	if n <= 0 || len(xs) == 0 {
		return nil
	}
	sort.Float64s(xs)

	lo, hi := xs[0], xs[len(xs)-1]
	for _, e := range extra {
		if math.IsNaN(e) {
			continue
		}
		lo = math.Min(lo, e)
		hi = math.Max(hi, e)
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	// stat.Histogram needs the last divider strictly above the largest value
	hi = math.Nextafter(hi, math.Inf(1))

	dividers := floats.Span(make([]float64, n+1), lo, hi)
	counts := stat.Histogram(nil, dividers, xs, nil)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Lo: dividers[i], Hi: dividers[i+1], Count: int(counts[i])}
	}
	return bins
}

func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}
