package ingest

import (
	"context"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/reports"
)

var funnelTable = &Table{
	Name: reports.TableFunnel,
	Columns: []string{
		"metric_date", "hour", "country", "buyer_account_id", "publisher_id", "publisher_name",
		"platform", "environment", "transaction_type", "report_variant",
		"bid_requests", "reached_queries", "inventory_matches", "successful_responses",
		"bids", "bids_in_auction", "auctions_won", "impressions", "clicks",
		"bid_rate_pct", "win_rate_pct", "bidder_id",
	},
	Schema: `
		CREATE TABLE IF NOT EXISTS rtb_funnel (
			id                   BIGSERIAL PRIMARY KEY,
			metric_date          DATE NOT NULL,
			hour                 SMALLINT,
			country              TEXT,
			buyer_account_id     TEXT,
			publisher_id         TEXT,
			publisher_name       TEXT,
			platform             TEXT,
			environment          TEXT,
			transaction_type     TEXT,
			report_variant       TEXT NOT NULL,
			bid_requests         BIGINT NOT NULL DEFAULT 0,
			reached_queries      BIGINT NOT NULL DEFAULT 0,
			inventory_matches    BIGINT NOT NULL DEFAULT 0,
			successful_responses BIGINT NOT NULL DEFAULT 0,
			bids                 BIGINT NOT NULL DEFAULT 0,
			bids_in_auction      BIGINT NOT NULL DEFAULT 0,
			auctions_won         BIGINT NOT NULL DEFAULT 0,
			impressions          BIGINT NOT NULL DEFAULT 0,
			clicks               BIGINT NOT NULL DEFAULT 0,
			bid_rate_pct         DOUBLE PRECISION NOT NULL DEFAULT 0,
			win_rate_pct         DOUBLE PRECISION NOT NULL DEFAULT 0,
			bidder_id            TEXT,
			row_hash             TEXT NOT NULL UNIQUE,
			import_batch_id      TEXT NOT NULL,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	Indexes: []string{
		`CREATE INDEX IF NOT EXISTS idx_rtb_funnel_date ON rtb_funnel (metric_date)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_funnel_country ON rtb_funnel (country)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_funnel_publisher ON rtb_funnel (publisher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_funnel_platform ON rtb_funnel (platform)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_funnel_environment ON rtb_funnel (environment)`,
	},
}

type funnelKind struct{}

// NewFunnelImporter imports both RTB Funnel variants into rtb_funnel.
func NewFunnelImporter(deps Deps) *Importer {
	return newImporter(funnelKind{}, deps)
}

func (funnelKind) expected() string            { return "RTB Funnel" }
func (funnelKind) accepts(t reports.Type) bool { return t.IsFunnel() }
func (funnelKind) table() *Table               { return funnelTable }

func (funnelKind) newBuilder(ctx context.Context, res *Result, opts Options, accounts AccountResolver) rowBuilder {
	b := &funnelBuilder{stats: newRunStats(), variant: "geo"}
	if res.ReportType == reports.FunnelPublisher {
		b.variant = "publisher"
	}
	if opts.BidderID != "" {
		b.bidder = &opts.BidderID
	}
	return b
}

type funnelBuilder struct {
	stats   *runStats
	variant string
	bidder  *string
}

func (b *funnelBuilder) build(r *datanorm.RowReader) (Row, error) {
	date, err := r.Date(reports.FieldDay)
	if err != nil {
		return Row{}, err
	}
	country, err := r.Required(reports.FieldCountry)
	if err != nil {
		return Row{}, err
	}
	hour := r.OptionalInt(reports.FieldHour)
	buyerAccount := r.Optional(reports.FieldBuyerAccountID)
	publisherID := r.Optional(reports.FieldPublisherID)
	publisherName := r.Optional(reports.FieldPublisherName)
	platform := r.Optional(reports.FieldPlatform)
	environment := r.Optional(reports.FieldEnvironment)
	transactionType := r.Optional(reports.FieldTransactionType)

	bidRequests := r.Int(reports.FieldBidRequests)
	reached := r.Int(reports.FieldReachedQueries)
	inventory := r.Int(reports.FieldInventoryMatches)
	responses := r.Int(reports.FieldSuccessfulResponses)
	bids := r.Int(reports.FieldBids)
	inAuction := r.Int(reports.FieldBidsInAuction)
	won := r.Int(reports.FieldAuctionsWon)
	impressions := r.Int(reports.FieldImpressions)
	clicks := r.Int(reports.FieldClicks)

	key := datanorm.Key(
		date, country, datanorm.DerefInt(hour), datanorm.Deref(buyerAccount),
		datanorm.Deref(publisherID), datanorm.Deref(platform), datanorm.Deref(environment),
		datanorm.Deref(transactionType),
	)

	b.stats.date(date)
	b.stats.add("countries", country)
	b.stats.addPtr("publishers", publisherID)
	b.stats.addPtr("platforms", platform)
	b.stats.sum("bid_requests", bidRequests)
	b.stats.sum("reached_queries", reached)
	b.stats.sum("bids", bids)
	b.stats.sum("bids_in_auction", inAuction)
	b.stats.sum("auctions_won", won)
	b.stats.sum("impressions", impressions)

	return Row{
		Key: key,
		Values: []any{
			date, hour, country, buyerAccount, publisherID, publisherName,
			platform, environment, transactionType, b.variant,
			bidRequests, reached, inventory, responses,
			bids, inAuction, won, impressions, clicks,
			datanorm.Percent(bids, bidRequests), datanorm.Percent(won, inAuction), b.bidder,
		},
	}, nil
}

func (b *funnelBuilder) finish(res *Result) {
	b.stats.apply(res)
	t := b.stats.totals
	res.setRate("bid_rate_pct", datanorm.Percent(t["bids"], t["bid_requests"]))
	res.setRate("win_rate_pct", datanorm.Percent(t["auctions_won"], t["bids_in_auction"]))
	res.setRate("reached_pct", datanorm.Percent(t["reached_queries"], t["bid_requests"]))
}
