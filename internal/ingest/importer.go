package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/pkg/logger"
	"github.com/ignite/rtb-ingest/internal/reports"
)

// recordKind is what one report type contributes to the shared pipeline.
type recordKind interface {
	// expected names the report the importer handles, for rejections.
	expected() string
	accepts(t reports.Type) bool
	table() *Table
	newBuilder(ctx context.Context, res *Result, opts Options, accounts AccountResolver) rowBuilder
}

// rowBuilder normalizes rows of one file and keeps its aggregates.
type rowBuilder interface {
	// build turns one row into a staged Row; an error skips the row.
	build(r *datanorm.RowReader) (Row, error)
	finish(res *Result)
}

// Deps are the collaborators shared by every importer. Only Store is
// required.
type Deps struct {
	Store    Store
	Accounts AccountResolver
	History  HistoryRecorder
	Progress ProgressSink
}

// Importer processes one CSV file of a single report type into its table.
type Importer struct {
	kind recordKind
	deps Deps
}

func newImporter(kind recordKind, deps Deps) *Importer {
	return &Importer{kind: kind, deps: deps}
}

// Table is the destination table of the importer.
func (imp *Importer) Table() *Table { return imp.kind.table() }

// Accepts reports whether the importer handles files classified as t.
func (imp *Importer) Accepts(t reports.Type) bool { return imp.kind.accepts(t) }

// Import streams the file at path into the importer's table. The returned
// Result is never nil; the error is non-nil whenever Result.Success is false
// and matches one of the package sentinels.
func (imp *Importer) Import(ctx context.Context, path string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	res := newResult(filepath.Base(path))
	res.Table = imp.kind.table().Name
	if opts.BidderID != "" {
		res.BidderID = opts.BidderID
		res.BidderSource = BidderExplicit
	}
	imp.transition(res, StateNew)

	err := imp.run(ctx, path, opts, res)
	res.Duration = time.Since(res.StartedAt)
	recordImport(res, res.Duration)

	logger.Info("import finished",
		"batch_id", res.BatchID, "file", res.Filename, "report_type", string(res.ReportType),
		"status", string(res.Status), "rows_read", res.RowsRead, "rows_imported", res.RowsImported,
		"rows_duplicate", res.RowsDuplicate, "rows_skipped", res.RowsSkipped,
		"duration_ms", res.Duration.Milliseconds())
	return res, err
}

func (imp *Importer) run(ctx context.Context, path string, opts Options, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return imp.reject(res, ErrFileNotFound, "File not found: "+path)
		}
		return imp.reject(res, ErrHeaderRead, fmt.Sprintf("Failed to open CSV: %v", err))
	}
	defer f.Close()
	if st, err := f.Stat(); err == nil {
		res.FileSize = st.Size()
	}

	reader := datanorm.NewCSVReader(f)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return imp.reject(res, ErrHeaderRead, "Failed to read CSV: file is empty")
		}
		return imp.reject(res, ErrHeaderRead, fmt.Sprintf("Failed to read CSV: %v", err))
	}
	header = append([]string(nil), header...)
	imp.transition(res, StateHeaderRead)

	det := reports.Classify(header)
	res.ReportType = det.Type
	imp.transition(res, StateClassified)
	switch {
	case det.Type == reports.Unknown:
		return imp.reject(res, ErrUnknownReport, det.UnknownMessage())
	case !imp.kind.accepts(det.Type):
		return imp.reject(res, ErrWrongReportType, fmt.Sprintf(
			"This CSV is not a %s report. Detected: %s\n%s",
			imp.kind.expected(), det.Type.Name(), det.Type.Description()))
	case len(det.Missing) > 0:
		res.ColumnsMissing = fieldNames(det.Missing)
		return imp.reject(res, ErrMissingColumns, det.MissingMessage()+"\n\n"+reports.FixInstructions(det.Type, det.Missing))
	}
	res.ColumnsFound, res.ColumnsMissing = columnCoverage(det)
	imp.transition(res, StateValidated)

	table := imp.kind.table()
	if err := imp.deps.Store.EnsureTable(ctx, table); err != nil {
		return imp.abort(ctx, res, fmt.Errorf("ensure table %s: %w", table.Name, err))
	}
	if imp.deps.History != nil {
		if err := imp.deps.History.Start(ctx, res); err != nil {
			logger.Warn("import history start failed", "batch_id", res.BatchID, "error", err)
		}
	}

	diag := NewDiagnostics(opts.MaxRowErrors)
	writer := NewBatchWriter(imp.deps.Store, table, res.BatchID, opts.BatchSize, diag)
	builder := imp.kind.newBuilder(ctx, res, opts, imp.deps.Accounts)
	imp.transition(res, StateStreaming)
	imp.publish(ctx, res, StateStreaming)

	var fatal error
	skipped := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				fatal = fmt.Errorf("read line %d: %w", line, err)
				break
			}
			res.RowsRead++
			skipped++
			diag.Addf(line, "%v", err)
			continue
		}
		res.RowsRead++

		rr := datanorm.NewRowReader(datanorm.NewRawRow(header, record), det.Columns)
		row, err := builder.build(rr)
		for _, issue := range rr.Issues() {
			diag.Addf(line, "%s", issue)
		}
		if err != nil {
			skipped++
			diag.Addf(line, "%v", err)
			continue
		}
		row.Line = line

		if err := writer.Add(ctx, row); err != nil {
			fatal = err
			break
		}
		if res.RowsRead%opts.ProgressEvery == 0 {
			syncCounts(res, writer, skipped)
			logger.Info("import progress",
				"batch_id", res.BatchID, "rows_read", res.RowsRead, "rows_imported", res.RowsImported)
			imp.publish(ctx, res, StateStreaming)
		}
	}
	if fatal == nil {
		imp.transition(res, StateFlushBatch)
		fatal = writer.Flush(ctx)
	}

	imp.transition(res, StateFinalize)
	syncCounts(res, writer, skipped)
	recordRows(table.Name, "skipped", skipped)
	builder.finish(res)
	res.Errors = diag.Messages()
	if n := diag.Dropped(); n > 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("... %d more row errors not shown", n))
	}

	if fatal != nil {
		return imp.abort(ctx, res, fatal)
	}
	res.Success = true
	res.Status = StatusComplete
	imp.finish(ctx, res)
	return nil
}

// syncCounts folds the writer's committed counters into res. Rows the store
// rejected count as skipped alongside rows that failed to parse.
func syncCounts(res *Result, w *BatchWriter, parseSkipped int) {
	res.RowsImported = w.Imported()
	res.RowsDuplicate = w.Duplicates()
	res.RowsSkipped = parseSkipped + w.Failed()
}

// reject ends an import before any write.
func (imp *Importer) reject(res *Result, sentinel error, msg string) error {
	res.Success = false
	res.Status = StatusRejected
	res.ErrorMessage = msg
	imp.transition(res, StateRejected)
	return fmt.Errorf("%w: %s", sentinel, firstLine(msg))
}

// abort ends an import that failed after writes may have happened. Batches
// committed before the failure are kept.
func (imp *Importer) abort(ctx context.Context, res *Result, err error) error {
	res.Success = false
	res.Status = StatusFailed
	if res.RowsImported > 0 || res.RowsDuplicate > 0 {
		res.Status = StatusPartialFailure
	}
	res.ErrorMessage = err.Error()
	res.Errors = append(res.Errors, "Fatal: "+err.Error())
	logger.Error("import aborted", "batch_id", res.BatchID, "file", res.Filename,
		"rows_committed", res.RowsImported, "error", err)
	imp.finish(ctx, res)
	return fmt.Errorf("%w: %w", ErrImportAborted, err)
}

func (imp *Importer) finish(ctx context.Context, res *Result) {
	imp.publish(ctx, res, StateFinalize)
	if imp.deps.History == nil {
		return
	}
	if err := imp.deps.History.Finish(ctx, res); err != nil {
		logger.Warn("import history finish failed", "batch_id", res.BatchID, "error", err)
	}
}

func (imp *Importer) publish(ctx context.Context, res *Result, state State) {
	if imp.deps.Progress != nil {
		imp.deps.Progress.Publish(ctx, snapshot(res, state))
	}
}

func (imp *Importer) transition(res *Result, state State) {
	logger.Debug("import state", "batch_id", res.BatchID, "file", res.Filename, "state", string(state))
}

func columnCoverage(det reports.Detection) (found, missing []string) {
	schema, _ := reports.SchemaFor(det.Type)
	for _, f := range schema.Fields() {
		if det.Has(f) {
			found = append(found, string(f))
		} else {
			missing = append(missing, string(f))
		}
	}
	sort.Strings(found)
	sort.Strings(missing)
	return found, missing
}

func fieldNames(fields []reports.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
