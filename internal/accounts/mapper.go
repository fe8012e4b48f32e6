// Package accounts attributes billing ids (pretargeting configs) to the
// bidder account that owns them.
package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

// Repository reads the billing id to bidder id mapping.
type Repository interface {
	// LoadMappings returns every billing id with a known bidder.
	LoadMappings(ctx context.Context) (map[string]string, error)
	// LookupBidder returns the bidder of one billing id; ok is false when
	// the id is not mapped.
	LookupBidder(ctx context.Context, billingID string) (bidderID string, ok bool, err error)
	BillingIDsForBidder(ctx context.Context, bidderID string) ([]string, error)
	BidderIDs(ctx context.Context) ([]string, error)
}

// Mapper caches billing id lookups for the lifetime of a process. Misses
// are cached too, so an unmapped id costs one query per Refresh.
type Mapper struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string]string
	miss  map[string]struct{}
}

// NewMapper loads the full mapping from repo.
func NewMapper(ctx context.Context, repo Repository) (*Mapper, error) {
	m := &Mapper{repo: repo}
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh drops the cache and reloads every mapping.
func (m *Mapper) Refresh(ctx context.Context) error {
	mappings, err := m.repo.LoadMappings(ctx)
	if err != nil {
		return fmt.Errorf("load account mappings: %w", err)
	}
	m.mu.Lock()
	m.cache = mappings
	if m.cache == nil {
		m.cache = make(map[string]string)
	}
	m.miss = make(map[string]struct{})
	m.mu.Unlock()
	recordCacheInvalidate()
	logger.Debug("account mappings loaded", "count", len(mappings))
	return nil
}

// BidderID resolves the bidder owning billingID.
func (m *Mapper) BidderID(ctx context.Context, billingID string) (string, bool) {
	if billingID == "" {
		return "", false
	}

	m.mu.RLock()
	id, hit := m.cache[billingID]
	_, missed := m.miss[billingID]
	m.mu.RUnlock()
	if hit || missed {
		recordCacheRequest(true)
		return id, hit
	}
	recordCacheRequest(false)

	id, ok, err := m.repo.LookupBidder(ctx, billingID)
	if err != nil {
		logger.Warn("bidder lookup failed", "billing_id", billingID, "error", err)
		return "", false
	}

	m.mu.Lock()
	if ok {
		m.cache[billingID] = id
	} else {
		m.miss[billingID] = struct{}{}
	}
	m.mu.Unlock()
	return id, ok
}

// BidderIDForBillingIDs returns the one bidder that owns every id in
// billingIDs. It is unresolved when the list is empty, when any id is
// unmapped, or when the ids span more than one bidder.
func (m *Mapper) BidderIDForBillingIDs(ctx context.Context, billingIDs []string) (string, bool) {
	if len(billingIDs) == 0 {
		return "", false
	}
	var bidder string
	for _, billingID := range billingIDs {
		id, ok := m.BidderID(ctx, billingID)
		if !ok {
			return "", false
		}
		if bidder != "" && id != bidder {
			return "", false
		}
		bidder = id
	}
	return bidder, true
}

// BillingIDsForBidder lists the billing ids owned by bidderID.
func (m *Mapper) BillingIDsForBidder(ctx context.Context, bidderID string) ([]string, error) {
	return m.repo.BillingIDsForBidder(ctx, bidderID)
}

// BidderIDs lists every known bidder account.
func (m *Mapper) BidderIDs(ctx context.Context) ([]string, error) {
	return m.repo.BidderIDs(ctx)
}

// Size is the number of cached positive mappings.
func (m *Mapper) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}
