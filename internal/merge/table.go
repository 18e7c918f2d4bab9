package merge

import (
	"slices"
	"strconv"
)

// Table is one tabular sheet: a header row of column names plus data rows
// of tagged values. A row always has exactly len(Columns) cells; cells a
// batch never had hold the absence marker.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// SourceColumn is the name of the column appended to every batch recording
// which source the rows came from.
const SourceColumn = "Source File"

// tagColumnName picks the source-tag column name for one sheet: SourceColumn,
// or SourceColumn with a numeric suffix when any contributing batch already
// carries a column with that name. Choosing against the union of all batches
// keeps every source's tag in the same output column instead of letting a
// batch-local choice shadow another batch's user data.
func tagColumnName(batches []*Table) string {
	name := SourceColumn
	for i := 1; anyHasColumn(batches, name); i++ {
		name = SourceColumn + "_" + strconv.Itoa(i)
	}
	return name
}

func anyHasColumn(batches []*Table, name string) bool {
	for _, b := range batches {
		if slices.Contains(b.Columns, name) {
			return true
		}
	}
	return false
}

// tagSource appends the source-identifier column under the given name.
func (t *Table) tagSource(name, source string) {
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], Text(source))
	}
}

// concat stacks batches top to bottom in the given order, producing one
// table re-indexed contiguously from zero. Columns are the union of all
// batch columns in first-seen order; a row lacking a column present in
// another batch holds the absence marker there. Duplicate column names
// within a batch are matched by occurrence, so a second "Qty" column lines
// up with the second "Qty" column of earlier batches.
func concat(batches []*Table) *Table {
	var columns []string
	for _, b := range batches {
		seen := make(map[string]int, len(b.Columns))
		for _, col := range b.Columns {
			occurrence := seen[col]
			seen[col]++
			if nthIndex(columns, col, occurrence) < 0 {
				columns = append(columns, col)
			}
		}
	}

	merged := &Table{Columns: columns}
	for _, b := range batches {
		// Map each batch column to its slot in the union.
		slots := make([]int, len(b.Columns))
		seen := make(map[string]int, len(b.Columns))
		for j, col := range b.Columns {
			slots[j] = nthIndex(columns, col, seen[col])
			seen[col]++
		}
		for _, row := range b.Rows {
			out := make([]Value, len(columns))
			for j, v := range row {
				if j < len(slots) && slots[j] >= 0 {
					out[slots[j]] = v
				}
			}
			merged.Rows = append(merged.Rows, out)
		}
	}
	return merged
}

// nthIndex returns the index of the n-th (zero-based) occurrence of name,
// or -1 if there are not that many occurrences.
func nthIndex(columns []string, name string, n int) int {
	for i, col := range columns {
		if col == name {
			if n == 0 {
				return i
			}
			n--
		}
	}
	return -1
}
