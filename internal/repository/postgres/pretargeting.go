package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PretargetingRepo reads billing id ownership from pretargeting_configs.
// It implements accounts.Repository.
type PretargetingRepo struct{ db *sql.DB }

// NewPretargetingRepo creates a Postgres-backed pretargeting repository.
func NewPretargetingRepo(db *sql.DB) *PretargetingRepo { return &PretargetingRepo{db: db} }

func (r *PretargetingRepo) LoadMappings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT billing_id, bidder_id
		FROM pretargeting_configs
		WHERE billing_id IS NOT NULL AND bidder_id IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load billing mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var billingID, bidderID string
		if err := rows.Scan(&billingID, &bidderID); err != nil {
			return nil, fmt.Errorf("scan billing mapping: %w", err)
		}
		out[billingID] = bidderID
	}
	return out, rows.Err()
}

func (r *PretargetingRepo) LookupBidder(ctx context.Context, billingID string) (string, bool, error) {
	var bidderID string
	err := r.db.QueryRowContext(ctx,
		`SELECT bidder_id FROM pretargeting_configs WHERE billing_id = $1 LIMIT 1`,
		billingID,
	).Scan(&bidderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup bidder for %s: %w", billingID, err)
	}
	return bidderID, true, nil
}

func (r *PretargetingRepo) BillingIDsForBidder(ctx context.Context, bidderID string) ([]string, error) {
	return r.strings(ctx, `
		SELECT billing_id FROM pretargeting_configs
		WHERE bidder_id = $1 AND billing_id IS NOT NULL
		ORDER BY billing_id
	`, bidderID)
}

func (r *PretargetingRepo) BidderIDs(ctx context.Context) ([]string, error) {
	return r.strings(ctx, `
		SELECT DISTINCT bidder_id FROM pretargeting_configs
		WHERE bidder_id IS NOT NULL
		ORDER BY bidder_id
	`)
}

func (r *PretargetingRepo) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
