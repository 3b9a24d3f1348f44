package irr

import (
	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/banshee-data/masi-agreement/internal/weights"
	"github.com/cockroachdb/errors"
)

// FleissKappa is the weighted Fleiss' kappa. Items with no ratings are
// ignored; observed agreement uses the items with at least two ratings,
// while category prevalence uses every rated item.
type FleissKappa struct{}

// Name implements Coefficient.
func (FleissKappa) Name() string { return "fleiss_kappa" }

// Compute implements Coefficient.
func (f FleissKappa) Compute(t *ratings.Table, w *weights.Matrix, confidence float64) (Estimate, error) {
	if err := checkConfidence(confidence); err != nil {
		return Estimate{}, err
	}
	c, err := classify(t, w)
	if err != nil {
		return Estimate{}, err
	}

	var rated []int
	multi := 0
	for i, r := range c.rated {
		if r >= 1 {
			rated = append(rated, i)
		}
		if r >= 2 {
			multi++
		}
	}
	if multi < 2 {
		return Estimate{}, errors.Wrapf(ErrInsufficientData, "%d items with two or more ratings", multi)
	}
	q := w.Len()
	n := len(rated)
	nf := float64(n)

	paItem := make([]float64, n)
	var pa float64
	for idx, i := range rated {
		ri := c.rated[i]
		if ri < 2 {
			continue
		}
		paItem[idx] = c.agreementSum(i) / (ri * (ri - 1))
		pa += paItem[idx]
	}
	pa /= float64(multi)

	pi := make([]float64, q)
	for _, i := range rated {
		for k := 0; k < q; k++ {
			pi[k] += c.counts.At(i, k) / c.rated[i]
		}
	}
	for k := range pi {
		pi[k] /= nf
	}
	pe := chanceAgreement(w, pi)
	if 1-pe < degenerateTolerance {
		return Estimate{}, ErrDegenerate
	}
	kappa := (pa - pe) / (1 - pe)

	piW := symmetrisedPi(w, pi)
	scale := nf / float64(multi)
	var ss float64
	for idx, i := range rated {
		var pei float64
		for k := 0; k < q; k++ {
			pei += c.counts.At(i, k) * piW[k]
		}
		pei /= c.rated[i]

		// items with one rating contribute no observed or chance agreement
		var chance float64
		if c.rated[i] >= 2 {
			chance = pe
		}
		ki := scale * (paItem[idx] - chance) / (1 - pe)
		kx := ki - 2*(1-kappa)*(pei-pe)/(1-pe)
		d := kx - kappa
		ss += d * d
	}
	variance := ss / (nf * (nf - 1))

	e := Estimate{
		Coefficient: f.Name(),
		Value:       kappa,
		Confidence:  confidence,
		Items:       n,
		Pa:          pa,
		Pe:          pe,
	}
	finish(&e, variance, n)
	return e, nil
}
