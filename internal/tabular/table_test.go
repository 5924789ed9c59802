package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	csv := "age,city,income\n34,berlin,52000\n41,paris,61000\n29,berlin,\n"
	table, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "city", "income"}, table.Columns)
	assert.Equal(t, 3, table.NumRows())

	city, ok := table.Column("city")
	require.True(t, ok)
	assert.Equal(t, []string{"berlin", "paris", "berlin"}, city)

	income, _ := table.Column("income")
	assert.True(t, IsMissing(income[2]))
}

func TestReadCSVShortRow(t *testing.T) {
	csv := "a,b\n1,2\n3\n"
	table, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)

	b, _ := table.Column("b")
	assert.Equal(t, []string{"2", ""}, b)
}

func TestFromRecords(t *testing.T) {
	table := FromRecords([]map[string]interface{}{
		{"a": 1.0, "b": "x"},
		{"a": 2.5, "c": true},
	})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, table.Columns)
	assert.Equal(t, 2, table.NumRows())

	a, _ := table.Column("a")
	assert.Equal(t, []string{"1", "2.5"}, a)
	b, _ := table.Column("b")
	assert.Equal(t, "x", b[0])
	assert.True(t, IsMissing(b[1]))
	c, _ := table.Column("c")
	assert.Equal(t, "true", c[1])
}

func TestInferDType(t *testing.T) {
	assert.Equal(t, DTypeInt, InferDType([]string{"1", "2", "", "30"}))
	assert.Equal(t, DTypeFloat, InferDType([]string{"1.5", "2", "na", "3.25"}))
	assert.Equal(t, DTypeDatetime, InferDType([]string{"2024-01-02", "2024-06-30"}))
	assert.Equal(t, DTypeObject, InferDType([]string{"red", "green"}))
	assert.Equal(t, DTypeObject, InferDType([]string{"", "na"}))
}

func TestIsMissing(t *testing.T) {
	for _, cell := range []string{"", " ", "NA", "NaN", "null", "None"} {
		assert.True(t, IsMissing(cell), cell)
	}
	assert.False(t, IsMissing("0"))
	assert.False(t, IsMissing("n/a value"))
}

func TestValueCounts(t *testing.T) {
	counts := ValueCounts([]string{"b", "a", "b", "", "c", "a", "b"})
	require.Len(t, counts, 3)
	assert.Equal(t, ValueCount{Value: "b", Count: 3}, counts[0])
	assert.Equal(t, ValueCount{Value: "a", Count: 2}, counts[1])
	assert.Equal(t, ValueCount{Value: "c", Count: 1}, counts[2])
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedUnique([]string{"c", "a", "b", "a", ""}))
}

func TestDropDuplicates(t *testing.T) {
	table := &Table{
		Columns: []string{"a", "b"},
		Data: [][]string{
			{"1", "2", "1", "3"},
			{"x", "y", "x", "z"},
		},
	}
	dedup, removed := table.DropDuplicates()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 3, dedup.NumRows())
	assert.Equal(t, 1, table.DuplicateRowCount())
}

func TestDropColumns(t *testing.T) {
	table := &Table{
		Columns: []string{"a", "b", "c"},
		Data:    [][]string{{"1"}, {"2"}, {"3"}},
	}
	out := table.DropColumns("b")
	assert.Equal(t, []string{"a", "c"}, out.Columns)
	assert.Equal(t, 1, out.NumRows())
}

func TestHead(t *testing.T) {
	table := &Table{
		Columns: []string{"a"},
		Data:    [][]string{{"1", "2", "3"}},
	}
	rows := table.Head(2)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0]["a"])

	assert.Len(t, table.Head(10), 3)
}

func TestNumericValues(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5}, NumericValues([]string{"1", "2.5", "x", ""}))
}
