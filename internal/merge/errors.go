package merge

import (
	"errors"
	"fmt"
)

// ErrSourceUnreadable indicates that the first source could not be opened as
// a spreadsheet container. No schema can be established, so the whole merge
// run aborts before any output is produced.
var ErrSourceUnreadable = errors.New("sheetmerge: source unreadable")

// ErrNoSources indicates that Merge was called with an empty source list.
var ErrNoSources = errors.New("sheetmerge: no sources provided")

// SheetReadError records a failed read of one sheet from one source.
// It is recoverable: the (source, sheet) pair is skipped, the error is
// collected on the Result, and the run continues with all other pairs.
type SheetReadError struct {
	Source string // source identifier
	Sheet  string // sheet name
	Err    error  // underlying cause
}

// Error implements the error interface.
func (e *SheetReadError) Error() string {
	return fmt.Sprintf("read sheet %q from %q: %v", e.Sheet, e.Source, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SheetReadError) Unwrap() error {
	return e.Err
}
