package irr

import (
	"github.com/banshee-data/masi-agreement/internal/ratings"
	"github.com/banshee-data/masi-agreement/internal/weights"
	"github.com/cockroachdb/errors"
)

// KrippendorffAlpha is the weighted Krippendorff's alpha. Only items with
// at least two ratings contribute.
type KrippendorffAlpha struct{}

// Name implements Coefficient.
func (KrippendorffAlpha) Name() string { return "krippendorff_alpha" }

// Compute implements Coefficient.
func (a KrippendorffAlpha) Compute(t *ratings.Table, w *weights.Matrix, confidence float64) (Estimate, error) {
	if err := checkConfidence(confidence); err != nil {
		return Estimate{}, err
	}
	c, err := classify(t, w)
	if err != nil {
		return Estimate{}, err
	}

	var keep []int
	var total float64
	for i, r := range c.rated {
		if r >= 2 {
			keep = append(keep, i)
			total += r
		}
	}
	n := len(keep)
	if n < 2 {
		return Estimate{}, errors.Wrapf(ErrInsufficientData, "%d items with two or more ratings", n)
	}
	q := w.Len()
	nf := float64(n)
	rbar := total / nf
	epsilon := 1 / total

	sumQ := make([]float64, n)
	var paPrime float64
	for idx, i := range keep {
		sumQ[idx] = c.agreementSum(i)
		paPrime += sumQ[idx] / (rbar * (c.rated[i] - 1))
	}
	paPrime /= nf
	pa := (1-epsilon)*paPrime + epsilon

	pi := make([]float64, q)
	for _, i := range keep {
		for k := 0; k < q; k++ {
			pi[k] += c.counts.At(i, k) / rbar
		}
	}
	var piSum float64
	for k := range pi {
		pi[k] /= nf
		piSum += pi[k]
	}
	pe := chanceAgreement(w, pi)
	if 1-pe < degenerateTolerance {
		return Estimate{}, ErrDegenerate
	}

	alpha := (pa - pe) / (1 - pe)
	alphaPrime := (paPrime - pe) / (1 - pe)

	// per-item linearised contributions
	piW := symmetrisedPi(w, pi)
	var paMean float64
	paItem := make([]float64, n)
	for idx, i := range keep {
		paItem[idx] = sumQ[idx] / (rbar * (c.rated[i] - 1))
		paMean += paItem[idx]
	}
	paMean /= nf

	var ss float64
	for idx, i := range keep {
		ri := c.rated[i]
		pai := paItem[idx] - paMean*(ri-rbar)/rbar
		ki := (pai - pe) / (1 - pe)

		var pei float64
		for k := 0; k < q; k++ {
			pei += c.counts.At(i, k) * piW[k]
		}
		pei = pei/rbar - piSum*(ri-rbar)/rbar

		kx := ki - 2*(1-alphaPrime)*(pei-pe)/(1-pe)
		d := kx - alphaPrime
		ss += d * d
	}
	variance := ss / (nf * (nf - 1))

	e := Estimate{
		Coefficient: a.Name(),
		Value:       alpha,
		Confidence:  confidence,
		Items:       n,
		Pa:          pa,
		Pe:          pe,
	}
	finish(&e, variance, n)
	return e, nil
}
