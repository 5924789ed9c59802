// Package tabular holds the in-memory representation of an uploaded
// rectangular dataset. Cells are kept as strings exactly as read; typing is
// inferred per column so downstream stages can treat a column as numeric,
// datetime or free text without mutating the raw data.
package tabular

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DType is the declared storage type inferred for a column.
type DType string

const (
	DTypeInt      DType = "int64"
	DTypeFloat    DType = "float64"
	DTypeDatetime DType = "datetime64"
	DTypeObject   DType = "object"
)

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// Table is a column-major rectangular dataset.
type Table struct {
	Columns []string
	// Data[i] holds the cells of Columns[i]; all columns have equal length.
	Data [][]string
}

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Columns: header, Data: make([][]string, len(header))}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		for i := range header {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			t.Data[i] = append(t.Data[i], cell)
		}
	}
	return t, nil
}

// ReadJSON parses an array of flat objects, unioning keys in first-seen
// order.
func ReadJSON(r io.Reader) (*Table, error) {
	var records []map[string]interface{}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("read json records: %w", err)
	}
	return FromRecords(records), nil
}

// FromRecords builds a table from row maps, unioning keys in first-seen
// order. Missing keys become empty cells.
func FromRecords(records []map[string]interface{}) *Table {
	t := &Table{}
	index := map[string]int{}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
				t.Data = append(t.Data, nil)
			}
		}
	}
	for _, rec := range records {
		for i, col := range t.Columns {
			t.Data[i] = append(t.Data[i], cellString(rec[col]))
		}
	}
	return t
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.Data) == 0 {
		return 0
	}
	return len(t.Data[0])
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.Columns) }

// ColumnIndex returns the index of a named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the cells of a named column.
func (t *Table) Column(name string) ([]string, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.Data[i], true
}

// IsMissing reports whether a cell counts as a missing value.
func IsMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}

// ParseFloat parses a cell as a float, reporting success.
func ParseFloat(cell string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	return f, err == nil
}

// NonMissing returns the non-missing cells of a column.
func NonMissing(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if !IsMissing(c) {
			out = append(out, c)
		}
	}
	return out
}

// NumericValues returns the parseable float values among non-missing cells.
func NumericValues(cells []string) []float64 {
	out := make([]float64, 0, len(cells))
	for _, c := range cells {
		if IsMissing(c) {
			continue
		}
		if f, ok := ParseFloat(c); ok {
			out = append(out, f)
		}
	}
	return out
}

// InferDType infers the declared storage type of a column from its
// non-missing cells. All-numeric integer cells are int64, other numeric
// columns float64, parseable dates datetime64, everything else object.
func InferDType(cells []string) DType {
	nonMissing := 0
	allInt, allFloat, allTime := true, true, true
	for _, c := range cells {
		if IsMissing(c) {
			continue
		}
		nonMissing++
		s := strings.TrimSpace(c)
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allFloat = false
		}
		if allTime && !parseableTime(s) {
			allTime = false
		}
	}
	if nonMissing == 0 {
		return DTypeObject
	}
	switch {
	case allInt:
		return DTypeInt
	case allFloat:
		return DTypeFloat
	case allTime:
		return DTypeDatetime
	default:
		return DTypeObject
	}
}

func parseableTime(s string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// IsNumericDType reports whether a declared type is numeric.
func IsNumericDType(d DType) bool { return d == DTypeInt || d == DTypeFloat }

// ValueCounts returns the distinct non-missing values of a column with
// their frequencies, most frequent first; ties break lexicographically.
func ValueCounts(cells []string) []ValueCount {
	counts := map[string]int{}
	for _, c := range cells {
		if !IsMissing(c) {
			counts[c]++
		}
	}
	out := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// ValueCount is one distinct value and its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// UniqueCount returns the number of distinct non-missing values.
func UniqueCount(cells []string) int {
	set := map[string]struct{}{}
	for _, c := range cells {
		if !IsMissing(c) {
			set[c] = struct{}{}
		}
	}
	return len(set)
}

// SortedUnique returns the distinct non-missing values in lexicographic
// order.
func SortedUnique(cells []string) []string {
	set := map[string]struct{}{}
	for _, c := range cells {
		if !IsMissing(c) {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Row returns row i as a column-name-keyed map.
func (t *Table) Row(i int) map[string]string {
	row := make(map[string]string, len(t.Columns))
	for c, col := range t.Columns {
		row[col] = t.Data[c][i]
	}
	return row
}

// SelectRows returns a new table containing the given row indices in order.
func (t *Table) SelectRows(idx []int) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Data: make([][]string, len(t.Data))}
	for c := range t.Data {
		col := make([]string, 0, len(idx))
		for _, i := range idx {
			col = append(col, t.Data[c][i])
		}
		out.Data[c] = col
	}
	return out
}

// DropColumns returns a new table without the named columns.
func (t *Table) DropColumns(names ...string) *Table {
	drop := map[string]struct{}{}
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := &Table{}
	for i, c := range t.Columns {
		if _, ok := drop[c]; ok {
			continue
		}
		out.Columns = append(out.Columns, c)
		out.Data = append(out.Data, t.Data[i])
	}
	return out
}

// DropDuplicates removes rows that are exact duplicates of an earlier row,
// returning the deduplicated table and the number of rows removed.
func (t *Table) DropDuplicates() (*Table, int) {
	seen := map[string]struct{}{}
	var keep []int
	for i := 0; i < t.NumRows(); i++ {
		var b strings.Builder
		for c := range t.Data {
			b.WriteString(t.Data[c][i])
			b.WriteByte('\x1f')
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	return t.SelectRows(keep), t.NumRows() - len(keep)
}

// DuplicateRowCount counts rows that exactly duplicate an earlier row.
func (t *Table) DuplicateRowCount() int {
	seen := map[string]struct{}{}
	dups := 0
	for i := 0; i < t.NumRows(); i++ {
		var b strings.Builder
		for c := range t.Data {
			b.WriteString(t.Data[c][i])
			b.WriteByte('\x1f')
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// Head returns up to n leading rows as record maps, for previews.
func (t *Table) Head(n int) []map[string]string {
	if n > t.NumRows() {
		n = t.NumRows()
	}
	out := make([]map[string]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.Row(i))
	}
	return out
}
