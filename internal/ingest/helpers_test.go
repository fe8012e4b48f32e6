package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func TestMain(m *testing.M) {
	logger.SetOutput(nil)
	os.Exit(m.Run())
}

// memStore is an in-memory Store that enforces key uniqueness per table the
// way the row_hash unique constraint does.
type memStore struct {
	mu      sync.Mutex
	tables  map[string]map[string][]any
	ensured []string
	commits int

	ensureErr error
	beginErr  error
	// failCommit fails the n-th commit (1-based); 0 never fails.
	failCommit int
	// failKeys makes Insert fail for rows with these keys.
	failKeys map[string]error
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]map[string][]any)}
}

func (s *memStore) EnsureTable(ctx context.Context, t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureErr != nil {
		return s.ensureErr
	}
	s.ensured = append(s.ensured, t.Name)
	if _, ok := s.tables[t.Name]; !ok {
		s.tables[t.Name] = make(map[string][]any)
	}
	return nil
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &memTx{store: s, staged: make(map[string]map[string][]any)}, nil
}

// rows returns the committed values of table keyed by row key.
func (s *memStore) rows(table string) map[string][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table]
}

type memTx struct {
	store  *memStore
	staged map[string]map[string][]any
}

func (tx *memTx) Insert(ctx context.Context, t *Table, batchID string, row Row) (InsertOutcome, error) {
	if len(row.Values) != len(t.Columns) {
		return 0, fmt.Errorf("%s: %d values for %d columns", t.Name, len(row.Values), len(t.Columns))
	}
	if err, ok := tx.store.failKeys[row.Key]; ok {
		return 0, err
	}
	tx.store.mu.Lock()
	_, committed := tx.store.tables[t.Name][row.Key]
	tx.store.mu.Unlock()
	if committed {
		return Duplicate, nil
	}
	staged, ok := tx.staged[t.Name]
	if !ok {
		staged = make(map[string][]any)
		tx.staged[t.Name] = staged
	}
	if _, ok := staged[row.Key]; ok {
		return Duplicate, nil
	}
	staged[row.Key] = row.Values
	return Inserted, nil
}

func (tx *memTx) Commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if s.failCommit == s.commits {
		return errors.New("connection reset by peer")
	}
	for table, rows := range tx.staged {
		if _, ok := s.tables[table]; !ok {
			s.tables[table] = make(map[string][]any)
		}
		for k, v := range rows {
			s.tables[table][k] = v
		}
	}
	tx.staged = nil
	return nil
}

func (tx *memTx) Rollback() error {
	tx.staged = nil
	return nil
}

// fakeAccounts resolves billing ids from a fixed map.
type fakeAccounts map[string]string

func (f fakeAccounts) BidderID(ctx context.Context, billingID string) (string, bool) {
	id, ok := f[billingID]
	return id, ok
}

func (f fakeAccounts) BidderIDForBillingIDs(ctx context.Context, billingIDs []string) (string, bool) {
	found := make(map[string]struct{})
	for _, b := range billingIDs {
		id, ok := f[b]
		if !ok {
			return "", false
		}
		found[id] = struct{}{}
	}
	if len(found) != 1 {
		return "", false
	}
	for id := range found {
		return id, true
	}
	return "", false
}

// fakeHistory records the statuses it was handed.
type fakeHistory struct {
	started  []string
	finished []Status
}

func (h *fakeHistory) Start(ctx context.Context, res *Result) error {
	h.started = append(h.started, res.BatchID)
	return nil
}

func (h *fakeHistory) Finish(ctx context.Context, res *Result) error {
	h.finished = append(h.finished, res.Status)
	return nil
}

// writeCSV writes lines to a temp file and returns its path.
func writeCSV(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
