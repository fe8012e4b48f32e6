package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/rtb-ingest/internal/ingest"
)

// Anomaly thresholds for daily upload volume relative to the trailing
// seven-day average.
const (
	anomalyLowRatio  = 0.5
	anomalyHighRatio = 2.0
	anomalyMinDays   = 3
	anomalyWindow    = 7
)

// HistoryRepo keeps the import_history audit trail and the daily upload
// rollups. It implements ingest.HistoryRecorder.
type HistoryRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryRepo creates a Postgres-backed history repository.
func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db, now: time.Now}
}

// Start records an import as running.
func (r *HistoryRepo) Start(ctx context.Context, res *ingest.Result) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_history (batch_id, filename, report_type, target_table, status, file_size_bytes, bidder_id, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (batch_id) DO NOTHING
	`, res.BatchID, res.Filename, string(res.ReportType), res.Table, string(ingest.StatusRunning),
		res.FileSize, nullString(res.BidderID), res.StartedAt)
	if err != nil {
		return fmt.Errorf("start import history %s: %w", res.BatchID, err)
	}
	return nil
}

// Finish writes the final state of an import and folds it into the daily
// rollups, all in one transaction.
func (r *HistoryRepo) Finish(ctx context.Context, res *ingest.Result) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish import history %s: %w", res.BatchID, err)
	}
	defer tx.Rollback()

	if err := r.upsertHistory(ctx, tx, res); err != nil {
		return err
	}
	day := r.now().UTC().Format("2006-01-02")
	if err := r.rollupDaily(ctx, tx, day, res); err != nil {
		return err
	}
	if res.BidderID != "" {
		if err := r.rollupAccount(ctx, tx, day, res); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import history %s: %w", res.BatchID, err)
	}
	return nil
}

func (r *HistoryRepo) upsertHistory(ctx context.Context, tx *sql.Tx, res *ingest.Result) error {
	found, _ := json.Marshal(res.ColumnsFound)
	missing, _ := json.Marshal(res.ColumnsMissing)
	totals, _ := json.Marshal(res.Totals)
	billingIDs, _ := json.Marshal(res.Distinct["billing_ids"])

	_, err := tx.ExecContext(ctx, `
		INSERT INTO import_history (
			batch_id, filename, report_type, target_table, status,
			rows_read, rows_imported, rows_skipped, rows_duplicate,
			date_range_start, date_range_end, columns_found, columns_missing, totals,
			error_message, file_size_bytes, bidder_id, billing_ids, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (batch_id) DO UPDATE SET
			report_type      = EXCLUDED.report_type,
			target_table     = EXCLUDED.target_table,
			status           = EXCLUDED.status,
			rows_read        = EXCLUDED.rows_read,
			rows_imported    = EXCLUDED.rows_imported,
			rows_skipped     = EXCLUDED.rows_skipped,
			rows_duplicate   = EXCLUDED.rows_duplicate,
			date_range_start = EXCLUDED.date_range_start,
			date_range_end   = EXCLUDED.date_range_end,
			columns_found    = EXCLUDED.columns_found,
			columns_missing  = EXCLUDED.columns_missing,
			totals           = EXCLUDED.totals,
			error_message    = EXCLUDED.error_message,
			bidder_id        = EXCLUDED.bidder_id,
			billing_ids      = EXCLUDED.billing_ids,
			finished_at      = EXCLUDED.finished_at
	`, res.BatchID, res.Filename, string(res.ReportType), res.Table, string(res.Status),
		res.RowsRead, res.RowsImported, res.RowsSkipped, res.RowsDuplicate,
		nullString(res.DateStart), nullString(res.DateEnd), string(found), string(missing), string(totals),
		nullString(res.ErrorMessage), res.FileSize, nullString(res.BidderID), string(billingIDs),
		res.StartedAt, res.StartedAt.Add(res.Duration))
	if err != nil {
		return fmt.Errorf("finish import history %s: %w", res.BatchID, err)
	}
	return nil
}

func uploadCounts(res *ingest.Result) (ok, failed int) {
	if res.Success {
		return 1, 0
	}
	return 0, 1
}

func (r *HistoryRepo) rollupDaily(ctx context.Context, tx *sql.Tx, day string, res *ingest.Result) error {
	ok, failed := uploadCounts(res)
	var total int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO daily_upload_summary (
			upload_date, total_uploads, successful_uploads, failed_uploads,
			total_rows_written, total_file_size_bytes, min_rows, max_rows, avg_rows_per_upload
		) VALUES ($1, 1, $2, $3, $4, $5, $4, $4, $4)
		ON CONFLICT (upload_date) DO UPDATE SET
			total_uploads         = daily_upload_summary.total_uploads + 1,
			successful_uploads    = daily_upload_summary.successful_uploads + EXCLUDED.successful_uploads,
			failed_uploads        = daily_upload_summary.failed_uploads + EXCLUDED.failed_uploads,
			total_rows_written    = daily_upload_summary.total_rows_written + EXCLUDED.total_rows_written,
			total_file_size_bytes = daily_upload_summary.total_file_size_bytes + EXCLUDED.total_file_size_bytes,
			min_rows              = LEAST(daily_upload_summary.min_rows, EXCLUDED.min_rows),
			max_rows              = GREATEST(daily_upload_summary.max_rows, EXCLUDED.max_rows),
			avg_rows_per_upload   = (daily_upload_summary.total_rows_written + EXCLUDED.total_rows_written)::float8
			                        / (daily_upload_summary.total_uploads + 1),
			updated_at            = NOW()
		RETURNING total_rows_written
	`, day, ok, failed, res.RowsImported, res.FileSize).Scan(&total)
	if err != nil {
		return fmt.Errorf("upsert daily upload summary: %w", err)
	}

	var days int
	var avg float64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(total_rows_written), 0)
		FROM daily_upload_summary
		WHERE upload_date >= $1::date - $2::int AND upload_date < $1::date
	`, day, anomalyWindow).Scan(&days, &avg)
	if err != nil {
		return fmt.Errorf("daily upload baseline: %w", err)
	}

	flagged, reason := detectAnomaly(total, days, avg)
	if _, err := tx.ExecContext(ctx,
		`UPDATE daily_upload_summary SET has_anomaly = $2, anomaly_reason = $3 WHERE upload_date = $1`,
		day, flagged, nullString(reason),
	); err != nil {
		return fmt.Errorf("flag daily upload summary: %w", err)
	}
	return nil
}

func (r *HistoryRepo) rollupAccount(ctx context.Context, tx *sql.Tx, day string, res *ingest.Result) error {
	ok, failed := uploadCounts(res)
	var total int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO account_daily_upload_summary (
			upload_date, bidder_id, total_uploads, successful_uploads, failed_uploads,
			total_rows_written, total_file_size_bytes, min_rows, max_rows, avg_rows_per_upload
		) VALUES ($1, $2, 1, $3, $4, $5, $6, $5, $5, $5)
		ON CONFLICT (upload_date, bidder_id) DO UPDATE SET
			total_uploads         = account_daily_upload_summary.total_uploads + 1,
			successful_uploads    = account_daily_upload_summary.successful_uploads + EXCLUDED.successful_uploads,
			failed_uploads        = account_daily_upload_summary.failed_uploads + EXCLUDED.failed_uploads,
			total_rows_written    = account_daily_upload_summary.total_rows_written + EXCLUDED.total_rows_written,
			total_file_size_bytes = account_daily_upload_summary.total_file_size_bytes + EXCLUDED.total_file_size_bytes,
			min_rows              = LEAST(account_daily_upload_summary.min_rows, EXCLUDED.min_rows),
			max_rows              = GREATEST(account_daily_upload_summary.max_rows, EXCLUDED.max_rows),
			avg_rows_per_upload   = (account_daily_upload_summary.total_rows_written + EXCLUDED.total_rows_written)::float8
			                        / (account_daily_upload_summary.total_uploads + 1),
			updated_at            = NOW()
		RETURNING total_rows_written
	`, day, res.BidderID, ok, failed, res.RowsImported, res.FileSize).Scan(&total)
	if err != nil {
		return fmt.Errorf("upsert account upload summary: %w", err)
	}

	var days int
	var avg float64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(total_rows_written), 0)
		FROM account_daily_upload_summary
		WHERE bidder_id = $3 AND upload_date >= $1::date - $2::int AND upload_date < $1::date
	`, day, anomalyWindow, res.BidderID).Scan(&days, &avg)
	if err != nil {
		return fmt.Errorf("account upload baseline: %w", err)
	}

	flagged, reason := detectAnomaly(total, days, avg)
	if _, err := tx.ExecContext(ctx,
		`UPDATE account_daily_upload_summary SET has_anomaly = $3, anomaly_reason = $4 WHERE upload_date = $1 AND bidder_id = $2`,
		day, res.BidderID, flagged, nullString(reason),
	); err != nil {
		return fmt.Errorf("flag account upload summary: %w", err)
	}
	return nil
}

// detectAnomaly compares today's row volume with the average of the prior
// days. It needs at least anomalyMinDays of history.
func detectAnomaly(today int64, priorDays int, avg float64) (bool, string) {
	if priorDays < anomalyMinDays || avg <= 0 {
		return false, ""
	}
	ratio := float64(today) / avg
	switch {
	case ratio < anomalyLowRatio:
		return true, fmt.Sprintf("low volume: %d rows is %.0f%% of the %d-day average (%.0f)", today, ratio*100, anomalyWindow, avg)
	case ratio > anomalyHighRatio:
		return true, fmt.Sprintf("high volume: %d rows is %.0f%% of the %d-day average (%.0f)", today, ratio*100, anomalyWindow, avg)
	}
	return false, ""
}

// HistoryEntry is one row of import_history.
type HistoryEntry struct {
	BatchID       string     `json:"batch_id"`
	Filename      string     `json:"filename"`
	ReportType    string     `json:"report_type"`
	TargetTable   string     `json:"target_table"`
	Status        string     `json:"status"`
	RowsRead      int        `json:"rows_read"`
	RowsImported  int        `json:"rows_imported"`
	RowsSkipped   int        `json:"rows_skipped"`
	RowsDuplicate int        `json:"rows_duplicate"`
	DateStart     *string    `json:"date_range_start,omitempty"`
	DateEnd       *string    `json:"date_range_end,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	BidderID      *string    `json:"bidder_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Recent lists the latest imports, newest first.
func (r *HistoryRepo) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, filename, report_type, target_table, status,
		       rows_read, rows_imported, rows_skipped, rows_duplicate,
		       to_char(date_range_start, 'YYYY-MM-DD'), to_char(date_range_end, 'YYYY-MM-DD'),
		       error_message, bidder_id, started_at, finished_at
		FROM import_history
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.BatchID, &e.Filename, &e.ReportType, &e.TargetTable, &e.Status,
			&e.RowsRead, &e.RowsImported, &e.RowsSkipped, &e.RowsDuplicate,
			&e.DateStart, &e.DateEnd, &e.ErrorMessage, &e.BidderID, &e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DailySummary is one row of daily_upload_summary.
type DailySummary struct {
	UploadDate        string  `json:"upload_date"`
	TotalUploads      int     `json:"total_uploads"`
	SuccessfulUploads int     `json:"successful_uploads"`
	FailedUploads     int     `json:"failed_uploads"`
	TotalRowsWritten  int64   `json:"total_rows_written"`
	AvgRowsPerUpload  float64 `json:"avg_rows_per_upload"`
	HasAnomaly        bool    `json:"has_anomaly"`
	AnomalyReason     *string `json:"anomaly_reason,omitempty"`
}

// DailySummaries lists the latest days of upload rollups, newest first.
func (r *HistoryRepo) DailySummaries(ctx context.Context, days int) ([]DailySummary, error) {
	if days <= 0 {
		days = anomalyWindow
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(upload_date, 'YYYY-MM-DD'), total_uploads, successful_uploads, failed_uploads,
		       total_rows_written, avg_rows_per_upload, has_anomaly, anomaly_reason
		FROM daily_upload_summary
		ORDER BY upload_date DESC
		LIMIT $1
	`, days)
	if err != nil {
		return nil, fmt.Errorf("list daily upload summary: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var d DailySummary
		if err := rows.Scan(&d.UploadDate, &d.TotalUploads, &d.SuccessfulUploads, &d.FailedUploads,
			&d.TotalRowsWritten, &d.AvgRowsPerUpload, &d.HasAnomaly, &d.AnomalyReason); err != nil {
			return nil, fmt.Errorf("scan daily upload summary: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
