package ingest

import "context"

// Table describes one destination table. Columns lists the insert columns
// in the order Row.Values supplies them; the store adds row_hash and
// import_batch_id itself.
type Table struct {
	Name    string
	Columns []string
	// Schema is an idempotent CREATE TABLE IF NOT EXISTS statement.
	Schema  string
	Indexes []string
}

// Row is one normalized record staged for insert.
type Row struct {
	Line   int
	Key    string
	Values []any
}

// InsertOutcome says what happened to one staged row.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Duplicate
)

// Store persists normalized rows. Implementations must enforce uniqueness
// of the dedup key.
type Store interface {
	EnsureTable(ctx context.Context, t *Table) error
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one batch transaction. Insert must isolate a failing row so the
// transaction stays usable for the rest of the batch.
type Tx interface {
	Insert(ctx context.Context, t *Table, batchID string, row Row) (InsertOutcome, error)
	Commit() error
	Rollback() error
}

// AccountResolver attributes billing ids to their parent bidder account.
type AccountResolver interface {
	BidderID(ctx context.Context, billingID string) (string, bool)
	BidderIDForBillingIDs(ctx context.Context, billingIDs []string) (string, bool)
}

// HistoryRecorder keeps the import_history trail. Errors are logged by the
// caller and never fail an import.
type HistoryRecorder interface {
	Start(ctx context.Context, res *Result) error
	Finish(ctx context.Context, res *Result) error
}
