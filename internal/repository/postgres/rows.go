package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/ignite/rtb-ingest/internal/ingest"
)

// uniqueViolation is the SQLSTATE Postgres raises for a duplicate key.
const uniqueViolation = "23505"

// RowStore implements ingest.Store against PostgreSQL. Every fact table has
// a UNIQUE row_hash column, so re-importing a file only counts duplicates.
type RowStore struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool
	inserts map[string]string
}

// NewRowStore creates a Postgres-backed row store.
func NewRowStore(db *sql.DB) *RowStore {
	return &RowStore{
		db:      db,
		ensured: make(map[string]bool),
		inserts: make(map[string]string),
	}
}

// EnsureTable creates t and its indexes if they do not exist. Each table is
// checked once per process.
func (s *RowStore) EnsureTable(ctx context.Context, t *ingest.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[t.Name] {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, t.Schema); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	for _, idx := range t.Indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s: %w", t.Name, err)
		}
	}
	s.ensured[t.Name] = true
	return nil
}

// Begin opens one batch transaction.
func (s *RowStore) Begin(ctx context.Context) (ingest.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &rowTx{store: s, tx: tx}, nil
}

func (s *RowStore) insertSQL(t *ingest.Table) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.inserts[t.Name]; ok {
		return q
	}
	cols := make([]string, 0, len(t.Columns)+2)
	marks := make([]string, 0, len(t.Columns)+2)
	for _, c := range append(append([]string(nil), t.Columns...), "row_hash", "import_batch_id") {
		cols = append(cols, pq.QuoteIdentifier(c))
		marks = append(marks, fmt.Sprintf("$%d", len(marks)+1))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (row_hash) DO NOTHING",
		pq.QuoteIdentifier(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	s.inserts[t.Name] = q
	return q
}

type rowTx struct {
	store *RowStore
	tx    *sql.Tx
}

// Insert writes one row inside a savepoint so a rejected row does not abort
// the rest of the batch.
func (r *rowTx) Insert(ctx context.Context, t *ingest.Table, batchID string, row ingest.Row) (ingest.InsertOutcome, error) {
	if len(row.Values) != len(t.Columns) {
		return 0, fmt.Errorf("%s: %d values for %d columns", t.Name, len(row.Values), len(t.Columns))
	}
	if _, err := r.tx.ExecContext(ctx, "SAVEPOINT ingest_row"); err != nil {
		return 0, fmt.Errorf("savepoint: %w", err)
	}

	args := make([]any, 0, len(row.Values)+2)
	args = append(args, row.Values...)
	args = append(args, row.Key, batchID)

	res, err := r.tx.ExecContext(ctx, r.store.insertSQL(t), args...)
	if err != nil {
		if _, rbErr := r.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT ingest_row"); rbErr != nil {
			return 0, fmt.Errorf("insert into %s: %w (rollback to savepoint: %v)", t.Name, err, rbErr)
		}
		if isUniqueViolation(err) {
			return ingest.Duplicate, nil
		}
		return 0, fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	if _, err := r.tx.ExecContext(ctx, "RELEASE SAVEPOINT ingest_row"); err != nil {
		return 0, fmt.Errorf("release savepoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return ingest.Duplicate, nil
	}
	return ingest.Inserted, nil
}

func (r *rowTx) Commit() error   { return r.tx.Commit() }
func (r *rowTx) Rollback() error { return r.tx.Rollback() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
