// Package workbook serializes merge results into a single .xlsx container.
package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sheetmerge/sheetmerge/internal/merge"
)

// Write produces one output workbook from a merge result: one sheet per
// merged table, in the result's sheet order, with the column names as the
// first row. Returns the .xlsx container bytes.
func Write(result *merge.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range result.Sheets {
		if i == 0 {
			// A new container starts with one default sheet; claim it for
			// the first merged table instead of leaving it dangling.
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("rename sheet %q: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, result.Tables[sheet]); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeSheet streams one table into a sheet. The stream writer requires
// rows in ascending order, which matches the table's row order anyway.
func writeSheet(f *excelize.File, sheet string, t *merge.Table) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer for %q: %w", sheet, err)
	}

	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	cell, _ := excelize.CoordinatesToCellName(1, 1)
	if err := sw.SetRow(cell, header); err != nil {
		return fmt.Errorf("write header of %q: %w", sheet, err)
	}

	for r, row := range t.Rows {
		out := make([]any, len(row))
		for c, v := range row {
			out[c] = v.Native()
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := sw.SetRow(cell, out); err != nil {
			return fmt.Errorf("write row %d of %q: %w", r+1, sheet, err)
		}
	}
	return sw.Flush()
}
