package ingest

import (
	"context"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/reports"
)

var performanceTable = &Table{
	Name: reports.TableDaily,
	Columns: []string{
		"metric_date", "hour", "creative_id", "billing_id", "creative_size", "creative_format",
		"country", "platform", "environment", "app_id", "app_name",
		"publisher_id", "publisher_name", "publisher_domain", "deal_id", "deal_name",
		"transaction_type", "advertiser", "buyer_account_id", "buyer_account_name",
		"reached_queries", "impressions", "clicks", "spend_micros",
		"video_starts", "video_first_quartile", "video_midpoint", "video_third_quartile",
		"video_completions", "vast_errors", "engaged_views",
		"active_view_measurable", "active_view_viewable", "gma_sdk", "buyer_sdk",
		"ctr_pct", "bidder_id",
	},
	Schema: `
		CREATE TABLE IF NOT EXISTS rtb_daily (
			id                     BIGSERIAL PRIMARY KEY,
			metric_date            DATE NOT NULL,
			hour                   SMALLINT,
			creative_id            TEXT NOT NULL,
			billing_id             TEXT NOT NULL,
			creative_size          TEXT,
			creative_format        TEXT,
			country                TEXT,
			platform               TEXT,
			environment            TEXT,
			app_id                 TEXT,
			app_name               TEXT,
			publisher_id           TEXT,
			publisher_name         TEXT,
			publisher_domain       TEXT,
			deal_id                TEXT,
			deal_name              TEXT,
			transaction_type       TEXT,
			advertiser             TEXT,
			buyer_account_id       TEXT,
			buyer_account_name     TEXT,
			reached_queries        BIGINT NOT NULL DEFAULT 0,
			impressions            BIGINT NOT NULL DEFAULT 0,
			clicks                 BIGINT NOT NULL DEFAULT 0,
			spend_micros           BIGINT NOT NULL DEFAULT 0,
			video_starts           BIGINT,
			video_first_quartile   BIGINT,
			video_midpoint         BIGINT,
			video_third_quartile   BIGINT,
			video_completions      BIGINT,
			vast_errors            BIGINT,
			engaged_views          BIGINT,
			active_view_measurable BIGINT,
			active_view_viewable   BIGINT,
			gma_sdk                BOOLEAN NOT NULL DEFAULT FALSE,
			buyer_sdk              BOOLEAN NOT NULL DEFAULT FALSE,
			ctr_pct                DOUBLE PRECISION NOT NULL DEFAULT 0,
			bidder_id              TEXT,
			row_hash               TEXT NOT NULL UNIQUE,
			import_batch_id        TEXT NOT NULL,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	Indexes: []string{
		`CREATE INDEX IF NOT EXISTS idx_rtb_daily_date ON rtb_daily (metric_date)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_daily_country ON rtb_daily (country)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_daily_creative ON rtb_daily (creative_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_daily_billing ON rtb_daily (billing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_daily_publisher ON rtb_daily (publisher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_daily_bidder_date ON rtb_daily (bidder_id, metric_date)`,
	},
}

type performanceKind struct{}

// NewPerformanceImporter imports Performance Detail exports into rtb_daily.
func NewPerformanceImporter(deps Deps) *Importer {
	return newImporter(performanceKind{}, deps)
}

func (performanceKind) expected() string            { return reports.PerformanceDetail.Name() }
func (performanceKind) accepts(t reports.Type) bool { return t == reports.PerformanceDetail }
func (performanceKind) table() *Table               { return performanceTable }

func (performanceKind) newBuilder(ctx context.Context, res *Result, opts Options, accounts AccountResolver) rowBuilder {
	return &performanceBuilder{
		ctx:      ctx,
		stats:    newRunStats(),
		explicit: opts.BidderID,
		accounts: accounts,
	}
}

type performanceBuilder struct {
	ctx      context.Context
	stats    *runStats
	explicit string
	accounts AccountResolver
}

func (b *performanceBuilder) build(r *datanorm.RowReader) (Row, error) {
	date, err := r.Date(reports.FieldDay)
	if err != nil {
		return Row{}, err
	}
	creativeID, err := r.Required(reports.FieldCreativeID)
	if err != nil {
		return Row{}, err
	}
	billingID, err := r.Required(reports.FieldBillingID)
	if err != nil {
		return Row{}, err
	}

	hour := r.OptionalInt(reports.FieldHour)
	size := r.Optional(reports.FieldCreativeSize)
	country := r.Optional(reports.FieldCountry)
	platform := r.Optional(reports.FieldPlatform)
	environment := r.Optional(reports.FieldEnvironment)
	appID := r.Optional(reports.FieldAppID)
	publisherID := r.Optional(reports.FieldPublisherID)
	advertiser := r.Optional(reports.FieldAdvertiser)
	buyerAccount := r.Optional(reports.FieldBuyerAccountID)

	// Google prints "0" and "(none)" for open-auction traffic.
	dealID := r.Optional(reports.FieldDealID)
	if dealID != nil && *dealID == "0" {
		dealID = nil
	}
	dealName := r.Optional(reports.FieldDealName)
	if dealName != nil && *dealName == "(none)" {
		dealName = nil
	}

	reached := r.Int(reports.FieldReachedQueries)
	impressions := r.Int(reports.FieldImpressions)
	clicks := r.Int(reports.FieldClicks)
	spend := r.Micros(reports.FieldSpend)

	key := datanorm.Key(
		date, datanorm.DerefInt(hour), creativeID, billingID,
		datanorm.Deref(size), datanorm.Deref(country), datanorm.Deref(platform),
		datanorm.Deref(environment), datanorm.Deref(appID), datanorm.Deref(publisherID),
		datanorm.Deref(dealID), datanorm.Deref(advertiser), datanorm.Deref(buyerAccount),
	)

	b.stats.date(date)
	b.stats.add("creatives", creativeID)
	b.stats.add("billing_ids", billingID)
	b.stats.addPtr("sizes", size)
	b.stats.addPtr("countries", country)
	b.stats.sum("reached_queries", reached)
	b.stats.sum("impressions", impressions)
	b.stats.sum("clicks", clicks)
	b.stats.sum("spend_micros", spend)

	return Row{
		Key: key,
		Values: []any{
			date, hour, creativeID, billingID, size, r.Optional(reports.FieldCreativeFormat),
			country, platform, environment, appID, r.Optional(reports.FieldAppName),
			publisherID, r.Optional(reports.FieldPublisherName), r.Optional(reports.FieldPublisherDomain), dealID, dealName,
			r.Optional(reports.FieldTransactionType), advertiser, buyerAccount, r.Optional(reports.FieldBuyerAccountName),
			reached, impressions, clicks, spend,
			r.OptionalInt(reports.FieldVideoStarts), r.OptionalInt(reports.FieldVideoFirstQuartile),
			r.OptionalInt(reports.FieldVideoMidpoint), r.OptionalInt(reports.FieldVideoThirdQuartile),
			r.OptionalInt(reports.FieldVideoCompletions), r.OptionalInt(reports.FieldVASTErrors),
			r.OptionalInt(reports.FieldEngagedViews),
			r.OptionalInt(reports.FieldMeasurable), r.OptionalInt(reports.FieldViewable),
			r.Bool(reports.FieldGMASDK), r.Bool(reports.FieldBuyerSDK),
			datanorm.Percent(clicks, impressions), b.rowBidder(billingID),
		},
	}, nil
}

// rowBidder attributes one row: the explicit override wins, otherwise the
// billing id is looked up in the account mapping.
func (b *performanceBuilder) rowBidder(billingID string) *string {
	if b.explicit != "" {
		return &b.explicit
	}
	if b.accounts == nil {
		return nil
	}
	if id, ok := b.accounts.BidderID(b.ctx, billingID); ok {
		return &id
	}
	return nil
}

func (b *performanceBuilder) finish(res *Result) {
	b.stats.apply(res)
	res.setRate("ctr_pct", datanorm.Percent(b.stats.totals["clicks"], b.stats.totals["impressions"]))

	if res.BidderSource == BidderExplicit || b.accounts == nil {
		return
	}
	if id, ok := b.accounts.BidderIDForBillingIDs(b.ctx, b.stats.values("billing_ids")); ok {
		res.BidderID = id
		res.BidderSource = BidderInferred
	}
}
