// Package core runs merge jobs: it bounds concurrency, tracks progress,
// caches finished artifacts by source fingerprint, and hands the web layer
// everything it needs without knowing anything about HTTP.
package core

import (
	"time"

	"github.com/sheetmerge/sheetmerge/internal/merge"
)

// JobPhase indicates the current stage of a merge job.
type JobPhase string

const (
	PhaseStarting  JobPhase = "starting"
	PhaseReading   JobPhase = "reading"
	PhaseMerging   JobPhase = "merging"
	PhaseWriting   JobPhase = "writing"
	PhaseComplete  JobPhase = "complete"
	PhaseFailed    JobPhase = "failed"
	PhaseCancelled JobPhase = "cancelled"
)

// JobProgress is a snapshot of a running merge job.
type JobProgress struct {
	JobID       string   `json:"job_id"`
	Phase       JobPhase `json:"phase"`
	SourceCount int      `json:"source_count"`
	PairsDone   int      `json:"pairs_done"`
	PairsTotal  int      `json:"pairs_total"`
	Error       string   `json:"error,omitempty"` // non-empty when Phase is failed
}

// Percent returns the job's progress as a percentage (0-100), driven by
// how many (sheet, source) pairs have been read.
func (p JobProgress) Percent() int {
	switch p.Phase {
	case PhaseComplete:
		return 100
	case PhaseStarting:
		return 0
	}
	if p.PairsTotal > 0 {
		return (p.PairsDone * 100) / p.PairsTotal
	}
	return 0
}

// SheetSummary describes one sheet of the output workbook.
type SheetSummary struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// ReadFailure reports one skipped (source, sheet) pair.
type ReadFailure struct {
	Source string `json:"source"`
	Sheet  string `json:"sheet"`
	Reason string `json:"reason"`
}

// JobResult is the final outcome of a merge job. Output holds the merged
// workbook bytes; ReadFailures carries every recoverable error the run
// collected, alongside the (possibly partial) output.
type JobResult struct {
	JobID        string         `json:"job_id"`
	Fingerprint  string         `json:"fingerprint"`
	Sheets       []SheetSummary `json:"sheets"`
	EmptySheets  []string       `json:"empty_sheets,omitempty"`
	ReadFailures []ReadFailure  `json:"read_failures,omitempty"`
	CacheHit     bool           `json:"cache_hit"`
	Duration     time.Duration  `json:"-"`
	Error        string         `json:"error,omitempty"`

	Output []byte `json:"-"`
}

// newJobResult converts a completed merge run plus its serialized output
// into the result handed to callers.
func newJobResult(jobID, fingerprint string, res *merge.Result, output []byte, took time.Duration) *JobResult {
	jr := &JobResult{
		JobID:       jobID,
		Fingerprint: fingerprint,
		EmptySheets: res.EmptySheets,
		Duration:    took,
		Output:      output,
	}
	for _, sheet := range res.Sheets {
		jr.Sheets = append(jr.Sheets, SheetSummary{Name: sheet, Rows: res.Tables[sheet].RowCount()})
	}
	for _, re := range res.ReadErrors {
		jr.ReadFailures = append(jr.ReadFailures, ReadFailure{
			Source: re.Source,
			Sheet:  re.Sheet,
			Reason: re.Err.Error(),
		})
	}
	return jr
}
