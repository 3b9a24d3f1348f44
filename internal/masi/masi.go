// Package masi implements the MASI (Measuring Agreement on Set-valued
// Items) similarity between two label sets.
//
// MASI scales the Jaccard ratio by a monotonicity coefficient that
// depends on how the two sets relate:
//
//	identical        1
//	subset           2/3
//	partial overlap  1/3
//	disjoint         0
package masi

import (
	"fmt"

	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/cockroachdb/errors"
)

// ErrUndefined is returned when the Jaccard ratio of two empty sets is
// requested without a fallback.
var ErrUndefined = errors.New("masi: similarity undefined for two empty sets")

// Relation classifies how two label sets relate to each other.
type Relation int

const (
	Identical Relation = iota
	Subset
	PartialOverlap
	Disjoint
)

func (r Relation) String() string {
	switch r {
	case Identical:
		return "identical"
	case Subset:
		return "subset"
	case PartialOverlap:
		return "partial_overlap"
	case Disjoint:
		return "disjoint"
	default:
		return fmt.Sprintf("relation(%d)", int(r))
	}
}

// Monotonicity returns the MASI weight for the relation.
func (r Relation) Monotonicity() float64 {
	switch r {
	case Identical:
		return 1
	case Subset:
		return 2.0 / 3.0
	case PartialOverlap:
		return 1.0 / 3.0
	default:
		return 0
	}
}

// Classify derives the relation from onlyX = |x-y|, onlyY = |y-x| and
// shared = |x∩y|. Rules are checked in priority order.
func Classify(onlyX, onlyY, shared int) Relation {
	switch {
	case onlyX == 0 && onlyY == 0:
		return Identical
	case onlyX == 0 || onlyY == 0:
		return Subset
	case shared != 0:
		return PartialOverlap
	default:
		return Disjoint
	}
}

// Mode selects whether Compare returns a similarity or a distance.
type Mode int

const (
	ModeSimilarity Mode = iota
	ModeDistance
)

func (m Mode) String() string {
	if m == ModeDistance {
		return "distance"
	}
	return "similarity"
}

// Options control Compare.
type Options struct {
	Mode Mode
	// JaccardOnly drops the monotonicity coefficient.
	JaccardOnly bool
	// EmptyFallback defines the similarity of two empty sets as 1 when
	// JaccardOnly is set, instead of failing with ErrUndefined.
	EmptyFallback bool
}

// Counts holds the three cardinalities MASI is computed from.
type Counts struct {
	OnlyX  int
	OnlyY  int
	Shared int
}

// CountsOf computes the cardinalities for x and y.
func CountsOf(x, y labelset.Set) Counts {
	return Counts{
		OnlyX:  x.Difference(y).Len(),
		OnlyY:  y.Difference(x).Len(),
		Shared: x.Intersection(y).Len(),
	}
}

// Relation classifies the counts.
func (c Counts) Relation() Relation {
	return Classify(c.OnlyX, c.OnlyY, c.Shared)
}

// Jaccard returns |x∩y| / |x∪y| and false when both sets are empty.
func (c Counts) Jaccard() (float64, bool) {
	union := c.OnlyX + c.OnlyY + c.Shared
	if union == 0 {
		return 0, false
	}
	return float64(c.Shared) / float64(union), true
}

// Compare returns the MASI similarity or distance between x and y.
func Compare(x, y labelset.Set, opts Options) (float64, error) {
	c := CountsOf(x, y)
	rel := c.Relation()

	sim, ok := c.Jaccard()
	if !ok {
		// both empty: M=1 covers the MASI case
		if opts.JaccardOnly && !opts.EmptyFallback {
			return 0, errors.WithHint(ErrUndefined, "set EmptyFallback to treat two empty sets as identical")
		}
		sim = 1
	}
	if !opts.JaccardOnly {
		sim *= rel.Monotonicity()
	}

	if opts.Mode == ModeDistance {
		return 1 - sim, nil
	}
	return sim, nil
}

// Similarity returns the MASI similarity of x and y.
func Similarity(x, y labelset.Set) float64 {
	v, _ := Compare(x, y, Options{})
	return v
}

// Distance returns 1 minus the MASI similarity of x and y.
func Distance(x, y labelset.Set) float64 {
	v, _ := Compare(x, y, Options{Mode: ModeDistance})
	return v
}
