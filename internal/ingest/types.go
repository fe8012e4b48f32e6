package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/rtb-ingest/internal/reports"
)

// Status is the terminal state of one import as recorded in history.
type Status string

const (
	StatusRunning        Status = "running"
	StatusComplete       Status = "complete"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
	StatusRejected       Status = "rejected"
)

// State is a step of the import state machine, logged as the job advances.
type State string

const (
	StateNew        State = "NEW"
	StateHeaderRead State = "HEADER_READ"
	StateClassified State = "CLASSIFIED"
	StateValidated  State = "VALIDATED"
	StateStreaming  State = "STREAMING"
	StateFlushBatch State = "FLUSH_BATCH"
	StateFinalize   State = "FINALIZE"
	StateRejected   State = "REJECTED"
)

// Bidder attribution sources.
const (
	BidderExplicit = "explicit"
	BidderInferred = "inferred"
	BidderUnknown  = "unknown"
)

// Defaults for Options.
const (
	DefaultBatchSize     = 1000
	DefaultMaxRowErrors  = 20
	DefaultProgressEvery = 50000
)

// Options control a single import.
type Options struct {
	// BidderID attributes every row to this account instead of inferring it
	// from billing ids.
	BidderID      string
	BatchSize     int
	MaxRowErrors  int
	ProgressEvery int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRowErrors <= 0 {
		o.MaxRowErrors = DefaultMaxRowErrors
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	return o
}

// Result is the provenance envelope of one file import.
type Result struct {
	BatchID      string       `json:"batch_id"`
	Filename     string       `json:"filename"`
	ReportType   reports.Type `json:"report_type"`
	Table        string       `json:"table"`
	Success      bool         `json:"success"`
	Status       Status       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`

	RowsRead      int `json:"rows_read"`
	RowsImported  int `json:"rows_imported"`
	RowsSkipped   int `json:"rows_skipped"`
	RowsDuplicate int `json:"rows_duplicate"`

	DateStart string `json:"date_range_start,omitempty"`
	DateEnd   string `json:"date_range_end,omitempty"`

	// Distinct holds sorted distinct values of key dimensions, e.g. "countries".
	Distinct map[string][]string `json:"distinct,omitempty"`
	// Totals sums key metrics; money totals are in micros.
	Totals map[string]int64 `json:"totals,omitempty"`
	// Rates holds derived overall rates such as "ivt_rate_pct".
	Rates map[string]float64 `json:"rates,omitempty"`

	BidderID     string `json:"bidder_id,omitempty"`
	BidderSource string `json:"bidder_id_source"`

	ColumnsFound   []string `json:"columns_found,omitempty"`
	ColumnsMissing []string `json:"columns_missing,omitempty"`

	Errors    []string      `json:"errors,omitempty"`
	FileSize  int64         `json:"file_size_bytes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func newResult(filename string) *Result {
	return &Result{
		BatchID:      newBatchID(),
		Filename:     filename,
		ReportType:   reports.Unknown,
		Status:       StatusRunning,
		BidderSource: BidderUnknown,
		StartedAt:    time.Now().UTC(),
	}
}

// newBatchID returns a short id stamped on every row of one import.
func newBatchID() string {
	return uuid.NewString()[:8]
}

// Summary is the uniform shape every import call returns.
type Summary struct {
	Success      bool         `json:"success"`
	ReportType   reports.Type `json:"report_type"`
	TargetTable  string       `json:"target_table"`
	ReportName   string       `json:"report_name"`
	RowsImported int          `json:"rows_imported"`
	RowsRead     int          `json:"rows_read"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Details      *Result      `json:"details,omitempty"`
}

func summarize(res *Result) Summary {
	return Summary{
		Success:      res.Success,
		ReportType:   res.ReportType,
		TargetTable:  res.ReportType.Table(),
		ReportName:   res.ReportType.Name(),
		RowsImported: res.RowsImported,
		RowsRead:     res.RowsRead,
		ErrorMessage: res.ErrorMessage,
		Details:      res,
	}
}
