package ingest

import (
	"context"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/reports"
)

var bidFilteringTable = &Table{
	Name: reports.TableBidFiltering,
	Columns: []string{
		"metric_date", "country", "buyer_account_id", "filtering_reason", "creative_id",
		"bids", "bids_in_auction", "opportunity_cost_micros", "bidder_id",
	},
	Schema: `
		CREATE TABLE IF NOT EXISTS rtb_bid_filtering (
			id                      BIGSERIAL PRIMARY KEY,
			metric_date             DATE NOT NULL,
			country                 TEXT,
			buyer_account_id        TEXT,
			filtering_reason        TEXT NOT NULL,
			creative_id             TEXT,
			bids                    BIGINT NOT NULL DEFAULT 0,
			bids_in_auction         BIGINT NOT NULL DEFAULT 0,
			opportunity_cost_micros BIGINT NOT NULL DEFAULT 0,
			bidder_id               TEXT,
			row_hash                TEXT NOT NULL UNIQUE,
			import_batch_id         TEXT NOT NULL,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	Indexes: []string{
		`CREATE INDEX IF NOT EXISTS idx_rtb_bid_filtering_date ON rtb_bid_filtering (metric_date)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_bid_filtering_reason ON rtb_bid_filtering (filtering_reason)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_bid_filtering_country ON rtb_bid_filtering (country)`,
	},
}

type bidFilteringKind struct{}

// NewBidFilteringImporter imports Bid Filtering exports into rtb_bid_filtering.
func NewBidFilteringImporter(deps Deps) *Importer {
	return newImporter(bidFilteringKind{}, deps)
}

func (bidFilteringKind) expected() string            { return reports.BidFiltering.Name() }
func (bidFilteringKind) accepts(t reports.Type) bool { return t == reports.BidFiltering }
func (bidFilteringKind) table() *Table               { return bidFilteringTable }

func (bidFilteringKind) newBuilder(ctx context.Context, res *Result, opts Options, accounts AccountResolver) rowBuilder {
	b := &bidFilteringBuilder{stats: newRunStats()}
	if opts.BidderID != "" {
		b.bidder = &opts.BidderID
	}
	return b
}

type bidFilteringBuilder struct {
	stats  *runStats
	bidder *string
}

func (b *bidFilteringBuilder) build(r *datanorm.RowReader) (Row, error) {
	date, err := r.Date(reports.FieldDay)
	if err != nil {
		return Row{}, err
	}
	reason, err := r.Required(reports.FieldFilteringReason)
	if err != nil {
		return Row{}, err
	}
	country := r.Optional(reports.FieldCountry)
	buyerAccount := r.Optional(reports.FieldBuyerAccountID)
	creativeID := r.Optional(reports.FieldCreativeID)

	bids := r.Int(reports.FieldBids)
	inAuction := r.Int(reports.FieldBidsInAuction)
	cost := r.Micros(reports.FieldOpportunityCost)

	key := datanorm.Key(date, datanorm.Deref(country), datanorm.Deref(buyerAccount), reason, datanorm.Deref(creativeID))

	b.stats.date(date)
	b.stats.add("filtering_reasons", reason)
	b.stats.addPtr("countries", country)
	b.stats.sum("bids", bids)
	b.stats.sum("bids_in_auction", inAuction)
	b.stats.sum("opportunity_cost_micros", cost)

	return Row{
		Key: key,
		Values: []any{
			date, country, buyerAccount, reason, creativeID,
			bids, inAuction, cost, b.bidder,
		},
	}, nil
}

func (b *bidFilteringBuilder) finish(res *Result) {
	b.stats.apply(res)
}
