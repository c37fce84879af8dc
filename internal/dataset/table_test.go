package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	return New("sales.csv",
		[]string{"region", "revenue (USD)", "date", "note"},
		[][]string{
			{"north", "10.5", "2024-01-02", "first"},
			{"south", "20", "2024-01-03"},
			{"north", "", "2024-01-04", "third"},
		})
}

func TestNewInfersKindsAndPads(t *testing.T) {
	tbl := sampleTable()
	require.Equal(t, 3, tbl.NumRows())
	require.Equal(t, 4, tbl.NumCols())
	assert.Equal(t, []string{"region", "revenue (USD)", "date", "note"}, tbl.Columns())

	schema := tbl.Schema()
	assert.Equal(t, KindCategorical, schema[0].Kind)
	assert.Equal(t, KindNumeric, schema[1].Kind)
	assert.Equal(t, "USD", schema[1].Unit)
	assert.Equal(t, KindDatetime, schema[2].Kind)
	assert.Equal(t, "", tbl.Cell(1, "note"), "short rows are padded")
}

func TestFloatAlignsMissingAsNaN(t *testing.T) {
	vals := sampleTable().Float("revenue (USD)")
	require.Len(t, vals, 3)
	assert.Equal(t, 10.5, vals[0])
	assert.Equal(t, 20.0, vals[1])
	assert.True(t, math.IsNaN(vals[2]))
}

func TestStats(t *testing.T) {
	s := sampleTable().Stats("REVENUE (usd)")
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.Missing)
	assert.InDelta(t, 30.5, s.Sum, 1e-9)
	assert.InDelta(t, 15.25, s.Mean, 1e-9)
	assert.Equal(t, 10.5, s.Min)
	assert.Equal(t, 20.0, s.Max)
}

func TestUnknownColumnPanicsWithColumnList(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrNoColumn)
		assert.Contains(t, err.Error(), "region")
	}()
	sampleTable().Float("missing")
}

func TestDerivedTablesDoNotShareRows(t *testing.T) {
	tbl := sampleTable()
	head := tbl.Head(2)
	require.NoError(t, head.SetCell(0, "region", "east"))
	assert.Equal(t, "north", tbl.Cell(0, "region"))

	north := tbl.Filter(func(r map[string]string) bool { return r["region"] == "north" })
	assert.Equal(t, 2, north.NumRows())

	sorted := tbl.SortBy("revenue (USD)", true)
	assert.Equal(t, "20", sorted.Cell(0, "revenue (USD)"))
	assert.Equal(t, "", sorted.Cell(2, "revenue (USD)"), "NaN sorts last")
}

func TestAddAndDropColumn(t *testing.T) {
	tbl := sampleTable()
	require.NoError(t, tbl.AddColumn("qty", []string{"1", "2", "3"}))
	assert.Equal(t, KindNumeric, tbl.Schema()[4].Kind)
	assert.Error(t, tbl.AddColumn("qty", []string{"1", "2", "3"}))
	assert.Error(t, tbl.AddColumn("short", []string{"1"}))

	require.NoError(t, tbl.DropColumn("note"))
	assert.Equal(t, []string{"region", "revenue (USD)", "date", "qty"}, tbl.Columns())
	assert.Equal(t, "3", tbl.Cell(2, "qty"))
	assert.ErrorIs(t, tbl.DropColumn("note"), ErrNoColumn)
}

func TestValueCountsAndGroupMean(t *testing.T) {
	tbl := sampleTable()
	vc := tbl.ValueCounts("region")
	require.Len(t, vc, 2)
	assert.Equal(t, CategoryCount{Value: "north", Count: 2}, vc[0])

	keys, means := tbl.GroupMean("region", "revenue (USD)")
	assert.Equal(t, []string{"north", "south"}, keys)
	assert.Equal(t, []float64{10.5, 20}, means)
}

func TestWriteCSVRoundTripsHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTable().WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "region,revenue (USD),date,note", lines[0])
}

func TestParseNumericLocales(t *testing.T) {
	cases := map[string]float64{
		"12.5%":    12.5,
		"1.000,5":  1000.5,
		"1,000.5":  1000.5,
		"0,5":      0.5,
		"-3e2":     -300,
		" 42 ":     42,
	}
	for in, want := range cases {
		got, ok := parseNumeric(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	_, ok := parseNumeric("north")
	assert.False(t, ok)
}
