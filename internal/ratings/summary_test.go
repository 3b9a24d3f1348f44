package ratings

import (
	"testing"
)

func TestSummarise_Empty(t *testing.T) {
	tbl, err := NewTable([]string{}, []string{}, [][]Response{})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	s := Summarise(tbl)
	if s.TotalItems != 0 || s.MultiRatedCount != 0 || s.AgreementRate != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestSummarise_SingleRater(t *testing.T) {
	tbl, _ := FromStrings([][]string{{"a", "NA"}, {"NA", "b"}}, "NA")
	s := Summarise(tbl)
	if s.TotalItems != 2 {
		t.Errorf("expected TotalItems=2, got %d", s.TotalItems)
	}
	if s.MultiRatedCount != 0 {
		t.Errorf("expected MultiRatedCount=0, got %d", s.MultiRatedCount)
	}
	if s.MissingCount != 2 {
		t.Errorf("expected MissingCount=2, got %d", s.MissingCount)
	}
	if s.AgreementRate != 0 {
		t.Errorf("expected AgreementRate=0, got %f", s.AgreementRate)
	}
}

func TestSummarise_PartialDisagreement(t *testing.T) {
	tbl, _ := FromStrings([][]string{
		{"l1", "l1", "NA"},
		{"l1", "l2", "l1"},
		{"NA", "l2", "l2"},
	}, "NA")
	s := Summarise(tbl)
	if s.MultiRatedCount != 3 {
		t.Errorf("expected MultiRatedCount=3, got %d", s.MultiRatedCount)
	}
	if s.DisagreementCount != 1 {
		t.Errorf("expected DisagreementCount=1, got %d", s.DisagreementCount)
	}
	expected := 2.0 / 3.0
	if s.AgreementRate < expected-0.001 || s.AgreementRate > expected+0.001 {
		t.Errorf("expected AgreementRate≈%f, got %f", expected, s.AgreementRate)
	}
}

func TestSummarise_SampleDataset(t *testing.T) {
	s := Summarise(loadSample(t))
	if s.TotalItems != 11 {
		t.Errorf("expected TotalItems=11, got %d", s.TotalItems)
	}
	if s.MissingCount != 3 {
		t.Errorf("expected MissingCount=3, got %d", s.MissingCount)
	}
	// items 1, 4, 8, 10 disagree
	if s.DisagreementCount != 4 {
		t.Errorf("expected DisagreementCount=4, got %d", s.DisagreementCount)
	}
}

func TestFromRecords(t *testing.T) {
	tbl, err := FromRecords([]LabelRecord{
		{ItemID: "t1", Label: "l1", RaterID: "alice"},
		{ItemID: "t1", Label: "l1, l2", RaterID: "bob"},
		{ItemID: "t2", Label: "l2", RaterID: "bob"},
	})
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	if tbl.Rows() != 2 || tbl.Cols() != 2 {
		t.Fatalf("expected 2x2 table, got %dx%d", tbl.Rows(), tbl.Cols())
	}
	if got := tbl.At(0, 1); got != Value("l1, l2") {
		t.Errorf("t1/bob = %v", got)
	}
	if tbl.At(1, 0).Valid {
		t.Errorf("t2/alice should be missing")
	}

	empty, err := FromRecords(nil)
	if err != nil {
		t.Fatalf("FromRecords(nil): %v", err)
	}
	if empty.Rows() != 0 {
		t.Errorf("expected empty table")
	}
}

func TestFromRecords_MissingRecord(t *testing.T) {
	tbl, err := FromRecords([]LabelRecord{
		{ItemID: "t1", Label: "l1", RaterID: "alice"},
		{ItemID: "t2", RaterID: "alice", Missing: true},
	})
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	if tbl.Rows() != 2 {
		t.Fatalf("missing record should still register its item, got %d rows", tbl.Rows())
	}
	if tbl.At(1, 0).Valid {
		t.Errorf("t2/alice should be missing")
	}
}
