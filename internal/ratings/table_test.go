package ratings

import (
	"os"
	"strings"
	"testing"

	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *Table {
	t.Helper()
	f, err := os.Open("../../testdata/annotations.csv")
	require.NoError(t, err)
	defer f.Close()
	tbl, err := LoadCSV(f, CSVOptions{ItemColumn: true})
	require.NoError(t, err)
	return tbl
}

func TestLoadCSV_Sample(t *testing.T) {
	tbl := loadSample(t)

	assert.Equal(t, 11, tbl.Rows())
	assert.Equal(t, 3, tbl.Cols())
	assert.Equal(t, []string{"rater1", "rater2", "rater3"}, tbl.Raters)
	assert.Equal(t, "1", tbl.Items[0])
	assert.Equal(t, Value("l1, l2"), tbl.At(0, 0))
	assert.False(t, tbl.At(2, 2).Valid, "NA should load as missing")
	assert.Equal(t, []string{"l1", "l1, l2", "l2"}, tbl.Distinct())
}

func TestLoadCSV_Errors(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""), CSVOptions{})
	require.Error(t, err)

	_, err = LoadCSV(strings.NewReader("item\n1\n"), CSVOptions{ItemColumn: true})
	require.Error(t, err)

	_, err = LoadCSV(strings.NewReader("a,b\nx\n"), CSVOptions{})
	require.Error(t, err)
}

func TestLoadCSV_CustomMissing(t *testing.T) {
	in := "r1;r2\nl1;-\n-;l2\n"
	tbl, err := LoadCSV(strings.NewReader(in), CSVOptions{Comma: ';', MissingTokens: []string{"-"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"item1", "item2"}, tbl.Items)
	assert.False(t, tbl.At(0, 1).Valid)
	assert.False(t, tbl.At(1, 0).Valid)
	assert.Equal(t, "l2", tbl.At(1, 1).Raw)
}

func TestWriteCSV_RoundTripsThroughLoad(t *testing.T) {
	tbl := loadSample(t)
	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, tbl))

	again, err := LoadCSV(strings.NewReader(sb.String()), CSVOptions{ItemColumn: true})
	require.NoError(t, err)
	if diff := cmp.Diff(tbl, again); diff != "" {
		t.Errorf("table changed through csv (-want +got):\n%s", diff)
	}
}

func TestNewTable_ShapeMismatch(t *testing.T) {
	_, err := NewTable([]string{"a", "b"}, []string{"r1"}, [][]Response{{Value("x")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))

	_, err = NewTable(nil, []string{"r1", "r2"}, [][]Response{{Value("x")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestFlattenFold(t *testing.T) {
	tbl, err := FromStrings([][]string{{"a", "NA"}, {"b", "c"}, {"NA", "d"}}, "NA")
	require.NoError(t, err)

	flat := tbl.Flatten()
	require.Len(t, flat, 6)
	assert.Equal(t, Value("a"), flat[0])
	assert.Equal(t, Missing(), flat[1])
	assert.Equal(t, Value("d"), flat[5])

	back, err := tbl.Fold(flat)
	require.NoError(t, err)
	assert.Equal(t, tbl.Cells, back.Cells)
	assert.Equal(t, tbl.Items, back.Items)

	_, err = tbl.Fold(flat[:5])
	assert.True(t, errors.Is(err, ErrShape))
}

func TestResponseLabelSet(t *testing.T) {
	set, err := Value("l1, l2").LabelSet(", ", false)
	require.NoError(t, err)
	assert.Equal(t, labelset.Of("l1", "l2"), set)

	set, err = Value("l1 ,l2").LabelSet(",", true)
	require.NoError(t, err)
	assert.Equal(t, labelset.Of("l1", "l2"), set)

	_, err = Missing().LabelSet(", ", false)
	assert.True(t, errors.Is(err, labelset.ErrMissing))
	assert.Equal(t, "NA", Missing().String())
}

func TestLoadCSV_LongFormat(t *testing.T) {
	in := `Rater,Item,Label
r1,1,"l1, l2"
r2,1,l1
r1,2,l2
r2,2,NA
r3,3,l1
`
	tbl, err := LoadCSV(strings.NewReader(in), CSVOptions{Long: true, ItemColumn: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, tbl.Items)
	assert.Equal(t, []string{"r1", "r2", "r3"}, tbl.Raters)
	assert.Equal(t, Value("l1, l2"), tbl.At(0, 0))
	assert.Equal(t, Value("l1"), tbl.At(0, 1))
	assert.False(t, tbl.At(1, 1).Valid, "NA label should be missing")
	assert.False(t, tbl.At(0, 2).Valid, "absent pair should be missing")
	assert.Equal(t, Value("l1"), tbl.At(2, 2))
}

func TestLoadCSV_LongFormatErrors(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("item,label\n1,a\n"), CSVOptions{Long: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"rater"`)

	_, err = LoadCSV(strings.NewReader("item,rater,label\n1,a\n"), CSVOptions{Long: true})
	require.Error(t, err)

	_, err = LoadCSV(strings.NewReader(""), CSVOptions{Long: true})
	require.Error(t, err)
}
