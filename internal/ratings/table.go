// Package ratings holds the items × raters table of raw annotation
// responses that agreement coefficients are computed over.
package ratings

import (
	"sort"
	"strconv"

	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/cockroachdb/errors"
)

// ErrShape is returned when cells do not match the declared items and raters.
var ErrShape = errors.New("ratings table shape mismatch")

// Response is one rater's raw answer for one item. Valid is false for a
// missing response.
type Response struct {
	Raw   string
	Valid bool
}

// Value returns a present response with the given raw string.
func Value(raw string) Response { return Response{Raw: raw, Valid: true} }

// Missing returns the missing response.
func Missing() Response { return Response{} }

// LabelSet parses the response. Missing responses return ErrMissing.
func (r Response) LabelSet(separator string, trim bool) (labelset.Set, error) {
	if !r.Valid {
		return nil, labelset.ErrMissing
	}
	if trim {
		return labelset.ParseTrimmed(r.Raw, separator), nil
	}
	return labelset.Parse(r.Raw, separator), nil
}

func (r Response) String() string {
	if !r.Valid {
		return "NA"
	}
	return r.Raw
}

// Table is an items × raters grid of responses. A Table is treated as
// immutable once built.
type Table struct {
	Items  []string
	Raters []string
	Cells  [][]Response
}

// NewTable validates that cells has len(items) rows of len(raters) columns.
// Nil items or raters are filled with positional names.
func NewTable(items, raters []string, cells [][]Response) (*Table, error) {
	if items == nil {
		items = positional("item", len(cells))
	}
	if raters == nil && len(cells) > 0 {
		raters = positional("rater", len(cells[0]))
	}
	if len(cells) != len(items) {
		return nil, errors.Wrapf(ErrShape, "%d rows for %d items", len(cells), len(items))
	}
	for i, row := range cells {
		if len(row) != len(raters) {
			return nil, errors.Wrapf(ErrShape, "row %d has %d cells for %d raters", i, len(row), len(raters))
		}
	}
	return &Table{Items: items, Raters: raters, Cells: cells}, nil
}

// FromStrings builds a table from raw strings; cells equal to missing
// become missing responses.
func FromStrings(rows [][]string, missing string) (*Table, error) {
	cells := make([][]Response, len(rows))
	for i, row := range rows {
		cells[i] = make([]Response, len(row))
		for j, v := range row {
			if v == missing {
				cells[i][j] = Missing()
			} else {
				cells[i][j] = Value(v)
			}
		}
	}
	return NewTable(nil, nil, cells)
}

func positional(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i+1)
	}
	return out
}

// Rows returns the number of items.
func (t *Table) Rows() int { return len(t.Cells) }

// Cols returns the number of raters.
func (t *Table) Cols() int { return len(t.Raters) }

// At returns the response of rater j for item i.
func (t *Table) At(i, j int) Response { return t.Cells[i][j] }

// Distinct returns the sorted distinct raw strings of all present responses.
func (t *Table) Distinct() []string {
	seen := make(map[string]struct{})
	for _, row := range t.Cells {
		for _, c := range row {
			if c.Valid {
				seen[c.Raw] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for raw := range seen {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

// Flatten returns every cell in row-major order.
func (t *Table) Flatten() []Response {
	out := make([]Response, 0, t.Rows()*t.Cols())
	for _, row := range t.Cells {
		out = append(out, row...)
	}
	return out
}

// Fold builds a table with the same items and raters as t from values in
// row-major order.
func (t *Table) Fold(values []Response) (*Table, error) {
	rows, cols := t.Rows(), t.Cols()
	if len(values) != rows*cols {
		return nil, errors.Wrapf(ErrShape, "%d values for %d×%d table", len(values), rows, cols)
	}
	cells := make([][]Response, rows)
	for i := range cells {
		cells[i] = values[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return &Table{Items: t.Items, Raters: t.Raters, Cells: cells}, nil
}

// RatedCount returns the number of present responses for item i.
func (t *Table) RatedCount(i int) int {
	n := 0
	for _, c := range t.Cells[i] {
		if c.Valid {
			n++
		}
	}
	return n
}
