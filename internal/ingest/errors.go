package ingest

import "errors"

// Pre-write failures: the import stops before anything is written.
var (
	ErrFileNotFound    = errors.New("file not found")
	ErrHeaderRead      = errors.New("cannot read CSV header")
	ErrUnknownReport   = errors.New("unknown report type")
	ErrWrongReportType = errors.New("wrong report type")
	ErrMissingColumns  = errors.New("missing required columns")
	ErrImportLocked    = errors.New("import already running")
)

// ErrImportAborted wraps a failure that stopped an import mid-stream.
// Batches committed before the failure stay committed.
var ErrImportAborted = errors.New("import aborted")
