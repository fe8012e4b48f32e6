package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

// Progress is a point-in-time snapshot of a running import.
type Progress struct {
	BatchID       string    `json:"batch_id"`
	Filename      string    `json:"filename"`
	ReportType    string    `json:"report_type"`
	State         State     `json:"state"`
	RowsRead      int       `json:"rows_read"`
	RowsImported  int       `json:"rows_imported"`
	RowsDuplicate int       `json:"rows_duplicate"`
	RowsSkipped   int       `json:"rows_skipped"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProgressSink receives progress snapshots. Publishing is best effort.
type ProgressSink interface {
	Publish(ctx context.Context, p Progress)
}

// ProgressKey is the Redis key holding the snapshot of one import.
func ProgressKey(batchID string) string {
	return fmt.Sprintf("import:progress:%s", batchID)
}

// RedisProgress stores snapshots as JSON under ProgressKey with a TTL so
// other processes can watch an import.
type RedisProgress struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisProgress creates a Redis-backed progress sink.
func NewRedisProgress(client redis.Cmdable, ttl time.Duration) *RedisProgress {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProgress{client: client, ttl: ttl}
}

// Publish writes the snapshot; failures are logged and otherwise ignored.
func (p *RedisProgress) Publish(ctx context.Context, snap Progress) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, ProgressKey(snap.BatchID), data, p.ttl).Err(); err != nil {
		logger.Warn("progress publish failed", "batch_id", snap.BatchID, "error", err)
	}
}

// Get reads the latest snapshot of an import.
func (p *RedisProgress) Get(ctx context.Context, batchID string) (*Progress, error) {
	data, err := p.client.Get(ctx, ProgressKey(batchID)).Bytes()
	if err != nil {
		return nil, err
	}
	var snap Progress
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", batchID, err)
	}
	return &snap, nil
}

func snapshot(res *Result, state State) Progress {
	return Progress{
		BatchID:       res.BatchID,
		Filename:      res.Filename,
		ReportType:    string(res.ReportType),
		State:         state,
		RowsRead:      res.RowsRead,
		RowsImported:  res.RowsImported,
		RowsDuplicate: res.RowsDuplicate,
		RowsSkipped:   res.RowsSkipped,
		UpdatedAt:     time.Now().UTC(),
	}
}
