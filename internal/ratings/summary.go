package ratings

// Summary gives raw exact-match agreement counts for a table, before any
// weighting or chance correction.
type Summary struct {
	TotalItems        int     `json:"total_items"`
	MultiRatedCount   int     `json:"multi_rated_count"`  // items with >1 response
	AgreementRate     float64 `json:"agreement_rate"`     // fraction of multi-rated items with identical raw responses
	DisagreementCount int     `json:"disagreement_count"` // multi-rated items where raters differ
	MissingCount      int     `json:"missing_count"`
}

// Summarise calculates exact-match agreement over the items of t.
// Items answered by a single rater are counted but not judged.
func Summarise(t *Table) Summary {
	s := Summary{TotalItems: t.Rows()}

	for i, row := range t.Cells {
		s.MissingCount += t.Cols() - t.RatedCount(i)
		if t.RatedCount(i) <= 1 {
			continue
		}
		s.MultiRatedCount++

		first := ""
		seen := false
		for _, c := range row {
			if !c.Valid {
				continue
			}
			if !seen {
				first, seen = c.Raw, true
				continue
			}
			if c.Raw != first {
				s.DisagreementCount++
				break
			}
		}
	}

	if s.MultiRatedCount > 0 {
		agreed := s.MultiRatedCount - s.DisagreementCount
		s.AgreementRate = float64(agreed) / float64(s.MultiRatedCount)
	}
	return s
}

// LabelRecord is one rater's response for one item in long format.
type LabelRecord struct {
	ItemID  string
	Label   string
	RaterID string
	// Missing registers the item and rater without a response.
	Missing bool
}

// FromRecords pivots long-format records into a table. Items and raters
// are ordered by first appearance; absent (item, rater) pairs are missing.
// A later record for the same pair replaces an earlier one.
func FromRecords(records []LabelRecord) (*Table, error) {
	itemIdx := make(map[string]int)
	raterIdx := make(map[string]int)
	var items, raters []string
	for _, r := range records {
		if _, ok := itemIdx[r.ItemID]; !ok {
			itemIdx[r.ItemID] = len(items)
			items = append(items, r.ItemID)
		}
		if _, ok := raterIdx[r.RaterID]; !ok {
			raterIdx[r.RaterID] = len(raters)
			raters = append(raters, r.RaterID)
		}
	}

	cells := make([][]Response, len(items))
	for i := range cells {
		cells[i] = make([]Response, len(raters))
	}
	for _, r := range records {
		if r.Missing {
			cells[itemIdx[r.ItemID]][raterIdx[r.RaterID]] = Missing()
		} else {
			cells[itemIdx[r.ItemID]][raterIdx[r.RaterID]] = Value(r.Label)
		}
	}
	if items == nil {
		items = []string{}
		raters = []string{}
	}
	return NewTable(items, raters, cells)
}
