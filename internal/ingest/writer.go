package ingest

import (
	"context"
	"fmt"

	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

// Diagnostics keeps the first max row-level messages of an import and
// counts the rest.
type Diagnostics struct {
	max      int
	messages []string
	dropped  int
}

// NewDiagnostics creates a list capped at max messages.
func NewDiagnostics(max int) *Diagnostics {
	return &Diagnostics{max: max}
}

// Addf records a message for a source line.
func (d *Diagnostics) Addf(line int, format string, args ...any) {
	if len(d.messages) >= d.max {
		d.dropped++
		return
	}
	d.messages = append(d.messages, fmt.Sprintf("Row %d: ", line)+fmt.Sprintf(format, args...))
}

// Messages returns the retained messages.
func (d *Diagnostics) Messages() []string { return d.messages }

// Dropped is how many messages were discarded past the cap.
func (d *Diagnostics) Dropped() int { return d.dropped }

// BatchWriter stages rows and writes them in fixed-size transactions. A row
// whose key already exists counts as a duplicate; a row the store rejects
// for any other reason is skipped and reported. Neither aborts the batch.
type BatchWriter struct {
	store     Store
	table     *Table
	batchID   string
	batchSize int
	diag      *Diagnostics

	pending []Row

	imported   int
	duplicates int
	failed     int
	batches    int
}

// NewBatchWriter creates a writer for one import into table.
func NewBatchWriter(store Store, table *Table, batchID string, batchSize int, diag *Diagnostics) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchWriter{
		store:     store,
		table:     table,
		batchID:   batchID,
		batchSize: batchSize,
		diag:      diag,
		pending:   make([]Row, 0, batchSize),
	}
}

// Add stages row and flushes when the batch is full.
func (w *BatchWriter) Add(ctx context.Context, row Row) error {
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the staged rows in one transaction. Counters only move once
// the transaction commits; on error the staged rows are dropped and rows
// from earlier flushes remain committed.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := w.pending
	w.pending = w.pending[:0]

	tx, err := w.store.Begin(ctx)
	if err != nil {
		recordFlush(w.table.Name, err)
		return fmt.Errorf("begin batch %d: %w", w.batches+1, err)
	}

	var imported, duplicates, failed int
	for _, row := range rows {
		outcome, err := tx.Insert(ctx, w.table, w.batchID, row)
		if err != nil {
			failed++
			w.diag.Addf(row.Line, "%v", err)
			continue
		}
		switch outcome {
		case Inserted:
			imported++
		case Duplicate:
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		recordFlush(w.table.Name, err)
		return fmt.Errorf("commit batch %d: %w", w.batches+1, err)
	}

	w.batches++
	w.imported += imported
	w.duplicates += duplicates
	w.failed += failed
	recordFlush(w.table.Name, nil)
	recordRows(w.table.Name, "imported", imported)
	recordRows(w.table.Name, "duplicate", duplicates)
	recordRows(w.table.Name, "failed", failed)

	logger.Debug("batch committed",
		"table", w.table.Name, "batch_id", w.batchID, "batch", w.batches,
		"imported", imported, "duplicates", duplicates, "failed", failed)
	return nil
}

// Imported is the number of rows committed as new.
func (w *BatchWriter) Imported() int { return w.imported }

// Duplicates is the number of committed rows whose key already existed.
func (w *BatchWriter) Duplicates() int { return w.duplicates }

// Failed is the number of rows the store rejected.
func (w *BatchWriter) Failed() int { return w.failed }

// Batches is the number of committed transactions.
func (w *BatchWriter) Batches() int { return w.batches }
