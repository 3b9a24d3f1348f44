package ratings

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// CSVOptions controls LoadCSV.
type CSVOptions struct {
	// ItemColumn treats the first column as the item identifier.
	ItemColumn bool
	// MissingTokens are cell values read as missing. Defaults to "" and "NA".
	MissingTokens []string
	// Comma is the field delimiter. Defaults to ','.
	Comma rune
	// Long reads one (item, rater, label) record per row instead of one
	// row per item. ItemColumn is ignored.
	Long bool
}

// Long-format column names, matched case-insensitively.
const (
	LongItemColumn  = "item"
	LongRaterColumn = "rater"
	LongLabelColumn = "label"
)

// DefaultMissingTokens are the cell values treated as missing when none are configured.
var DefaultMissingTokens = []string{"", "NA"}

// LoadCSV reads a wide-format table: a header row naming the raters
// followed by one row per item. With opts.Long it reads long format.
func LoadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	if opts.Long {
		return loadLong(r, opts)
	}
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = false

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read ratings csv")
	}
	if len(records) == 0 {
		return nil, errors.New("ratings csv is empty")
	}

	isMissing := missingSet(opts.MissingTokens)
	header := records[0]
	first := 0
	if opts.ItemColumn {
		first = 1
	}
	if len(header) <= first {
		return nil, errors.Newf("ratings csv header has %d columns, need at least %d", len(header), first+1)
	}
	raters := make([]string, 0, len(header)-first)
	for _, h := range header[first:] {
		raters = append(raters, strings.TrimSpace(h))
	}

	items := make([]string, 0, len(records)-1)
	cells := make([][]Response, 0, len(records)-1)
	for n, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, errors.Newf("ratings csv line %d has %d fields, header has %d", n+2, len(rec), len(header))
		}
		if opts.ItemColumn {
			items = append(items, rec[0])
		} else {
			items = append(items, "item"+strconv.Itoa(n+1))
		}
		row := make([]Response, 0, len(raters))
		for _, v := range rec[first:] {
			if isMissing[v] {
				row = append(row, Missing())
			} else {
				row = append(row, Value(v))
			}
		}
		cells = append(cells, row)
	}

	return NewTable(items, raters, cells)
}

// loadLong reads long-format records and pivots them with FromRecords.
func loadLong(r io.Reader, opts CSVOptions) (*Table, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read long ratings csv")
	}
	if len(records) == 0 {
		return nil, errors.New("ratings csv is empty")
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{LongItemColumn, LongRaterColumn, LongLabelColumn} {
		if _, ok := col[name]; !ok {
			return nil, errors.WithHint(
				errors.Newf("long ratings csv has no %q column", name),
				"long format needs item, rater and label columns")
		}
	}

	isMissing := missingSet(opts.MissingTokens)
	out := make([]LabelRecord, 0, len(records)-1)
	for n, rec := range records[1:] {
		if len(rec) != len(records[0]) {
			return nil, errors.Newf("ratings csv line %d has %d fields, header has %d", n+2, len(rec), len(records[0]))
		}
		label := rec[col[LongLabelColumn]]
		out = append(out, LabelRecord{
			ItemID:  rec[col[LongItemColumn]],
			RaterID: rec[col[LongRaterColumn]],
			Label:   label,
			Missing: isMissing[label],
		})
	}
	return FromRecords(out)
}

func missingSet(tokens []string) map[string]bool {
	if tokens == nil {
		tokens = DefaultMissingTokens
	}
	out := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		out[tok] = true
	}
	return out
}

// WriteCSV writes t in the wide format LoadCSV reads, with an item column.
// Missing cells are written as "NA".
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{"item"}, t.Raters...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, row := range t.Cells {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, t.Items[i])
		for _, c := range row {
			rec = append(rec, c.String())
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
