// Package merge combines same-named sheets across multiple spreadsheet
// sources into one table per sheet name.
//
// The sheet-name schema comes from the first source. For every sheet name
// in the schema, the matching sheet is read from every source that has it,
// tagged with a source-identifier column, and the batches are concatenated
// in source order. A failed (source, sheet) read never aborts the run; it
// is collected on the Result and the pair is skipped.
package merge

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// Options controls a merge run.
type Options struct {
	// Workers bounds the number of (sheet, source) reads in flight.
	// Values <= 0 run the reads sequentially.
	Workers int

	// OnPair, if set, is called after each (sheet, source) pair finishes,
	// with the number of pairs done and the total. Called under the run's
	// internal lock, so it must not block.
	OnPair func(done, total int)
}

// Result is the outcome of one merge run: the combined table per sheet
// name, plus everything that went wrong along the way.
type Result struct {
	// Schema is the ordered sheet-name list taken from the first source.
	Schema []string

	// Sheets lists the sheet names present in Tables, in schema order.
	Sheets []string

	// Tables maps sheet name to its combined table. A sheet name appears
	// here iff at least one source contributed a readable batch.
	Tables map[string]*Table

	// ReadErrors are the recoverable per-pair failures, in (sheet, source)
	// scan order.
	ReadErrors []*SheetReadError

	// EmptySheets are schema names with zero contributing batches,
	// omitted from Tables.
	EmptySheets []string
}

// RowCount returns the total data rows across all merged tables.
func (r *Result) RowCount() int {
	n := 0
	for _, t := range r.Tables {
		n += t.RowCount()
	}
	return n
}

// Merge runs the full merge over sources. The returned Result carries any
// recoverable read errors; the returned error is non-nil only for fatal
// conditions (no sources, unreadable first source, cancelled context).
func Merge(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	schema, err := discoverSchema(sources[0])
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	total := len(schema) * len(sources)
	batches := make([][]*Table, len(schema))
	readErrs := make([][]*SheetReadError, len(schema))
	for i := range schema {
		batches[i] = make([]*Table, len(sources))
		readErrs[i] = make([]*SheetReadError, len(sources))
	}

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for si := range schema {
		for fi := range sources {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				batch, readErr := readSheet(sources[fi], schema[si])

				mu.Lock()
				batches[si][fi] = batch
				readErrs[si][fi] = readErr
				done++
				if opts.OnPair != nil {
					opts.OnPair(done, total)
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Fan-in: group by sheet name in schema order. Batches were indexed by
	// source position, so output order never depends on completion order.
	result := &Result{
		Schema: schema,
		Tables: make(map[string]*Table, len(schema)),
	}
	for si, sheet := range schema {
		var (
			contributed []*Table
			contribSrc  []string
		)
		for fi := range sources {
			if err := readErrs[si][fi]; err != nil {
				result.ReadErrors = append(result.ReadErrors, err)
			}
			if b := batches[si][fi]; b != nil {
				contributed = append(contributed, b)
				contribSrc = append(contribSrc, sources[fi].Name)
			}
		}
		if len(contributed) == 0 {
			result.EmptySheets = append(result.EmptySheets, sheet)
			continue
		}
		// One tag-column name per sheet, collision-free against every
		// contributing batch, so all source tags land in the same column.
		tag := tagColumnName(contributed)
		for bi, b := range contributed {
			b.tagSource(tag, contribSrc[bi])
		}
		result.Sheets = append(result.Sheets, sheet)
		result.Tables[sheet] = concat(contributed)
	}
	return result, nil
}

// discoverSchema opens the first source and returns its ordered sheet-name
// list. Failure here is fatal: no schema, no merge.
func discoverSchema(first Source) ([]string, error) {
	f, err := first.open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrSourceUnreadable, first.Name, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// readSheet reads one sheet from one source. Returns (nil, nil) when the
// source simply does not contain the sheet, and a SheetReadError when the
// sheet exists but cannot be read. Each call opens its own handle over the
// source bytes, so concurrent reads share no mutable state.
func readSheet(src Source, sheet string) (*Table, *SheetReadError) {
	f, err := src.open()
	if err != nil {
		return nil, &SheetReadError{Source: src.Name, Sheet: sheet, Err: err}
	}
	defer f.Close()

	if !slices.Contains(f.GetSheetList(), sheet) {
		return nil, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &SheetReadError{Source: src.Name, Sheet: sheet, Err: err}
	}
	if len(rows) == 0 {
		// Present but empty: a batch with no columns and no rows.
		return &Table{}, nil
	}

	// Data rows can be wider than the header; those cells still belong to
	// the sheet, so headerless positions get synthesized column names.
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) > width {
			width = len(row)
		}
	}
	columns := make([]string, width)
	copy(columns, rows[0])
	for j := len(rows[0]); j < width; j++ {
		columns[j] = "Unnamed: " + strconv.Itoa(j)
	}

	t := &Table{Columns: columns}
	for i, row := range rows[1:] {
		out := make([]Value, len(t.Columns))
		for j := range t.Columns {
			if j >= len(row) {
				out[j] = Absent
				continue
			}
			cellType := excelize.CellTypeUnset
			if ref, err := excelize.CoordinatesToCellName(j+1, i+2); err == nil {
				cellType, _ = f.GetCellType(sheet, ref)
			}
			out[j] = inferValue(row[j], cellType)
		}
		t.Rows = append(t.Rows, out)
	}
	return t, nil
}
