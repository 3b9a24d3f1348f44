// Package permute produces whole-table reshuffles of a ratings table for
// permutation tests.
//
// A reshuffle keeps the table shape and the multiset of cell values
// (missing cells included) but redistributes the values uniformly over all
// cell positions, destroying any item or rater structure.
package permute

import (
	"math/rand/v2"

	"github.com/banshee-data/masi-agreement/internal/ratings"
)

// Reshuffle returns a new table with the cells of t in a uniformly random
// arrangement drawn from rng. t is not modified.
func Reshuffle(t *ratings.Table, rng *rand.Rand) *ratings.Table {
	cells := t.Flatten()
	rng.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})
	out, err := t.Fold(cells)
	if err != nil {
		// Flatten always yields rows*cols values.
		panic(err)
	}
	return out
}

// Streams derives independent random streams from one seed. Stream k
// always yields the same sequence for the same seed, so trial k can be
// reproduced regardless of which worker runs it.
type Streams struct {
	seed uint64
}

// NewStreams returns a stream source for seed.
func NewStreams(seed uint64) Streams {
	return Streams{seed: seed}
}

// Seed returns the root seed.
func (s Streams) Seed() uint64 { return s.seed }

// Stream returns the random source for substream k. Both PCG seed words
// are derived by SplitMix64 from the root seed and k, so neighbouring
// trial indices start from unrelated generator states.
func (s Streams) Stream(k int) *rand.Rand {
	hi := splitMix64(s.seed ^ splitMix64(uint64(k)))
	lo := splitMix64(hi)
	return rand.New(rand.NewPCG(hi, lo))
}

// splitMix64 is the SplitMix64 finaliser; it is a bijection on uint64.
func splitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
