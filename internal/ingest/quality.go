package ingest

import (
	"context"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/reports"
)

var qualityTable = &Table{
	Name: reports.TableQuality,
	Columns: []string{
		"metric_date", "publisher_id", "publisher_name", "country",
		"impressions", "pre_filtered_impressions", "ivt_credited_impressions", "billed_impressions",
		"measurable_impressions", "viewable_impressions", "ivt_rate_pct", "viewability_pct", "bidder_id",
	},
	Schema: `
		CREATE TABLE IF NOT EXISTS rtb_quality (
			id                       BIGSERIAL PRIMARY KEY,
			metric_date              DATE NOT NULL,
			publisher_id             TEXT NOT NULL,
			publisher_name           TEXT,
			country                  TEXT,
			impressions              BIGINT NOT NULL DEFAULT 0,
			pre_filtered_impressions BIGINT NOT NULL DEFAULT 0,
			ivt_credited_impressions BIGINT NOT NULL DEFAULT 0,
			billed_impressions       BIGINT NOT NULL DEFAULT 0,
			measurable_impressions   BIGINT NOT NULL DEFAULT 0,
			viewable_impressions     BIGINT NOT NULL DEFAULT 0,
			ivt_rate_pct             DOUBLE PRECISION NOT NULL DEFAULT 0,
			viewability_pct          DOUBLE PRECISION NOT NULL DEFAULT 0,
			bidder_id                TEXT,
			row_hash                 TEXT NOT NULL UNIQUE,
			import_batch_id          TEXT NOT NULL,
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	Indexes: []string{
		`CREATE INDEX IF NOT EXISTS idx_rtb_quality_date ON rtb_quality (metric_date)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_quality_publisher ON rtb_quality (publisher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_quality_ivt ON rtb_quality (ivt_rate_pct)`,
		`CREATE INDEX IF NOT EXISTS idx_rtb_quality_viewability ON rtb_quality (viewability_pct)`,
	},
}

type qualityKind struct{}

// NewQualityImporter imports Quality Signals exports into rtb_quality.
func NewQualityImporter(deps Deps) *Importer {
	return newImporter(qualityKind{}, deps)
}

func (qualityKind) expected() string            { return reports.Quality.Name() }
func (qualityKind) accepts(t reports.Type) bool { return t == reports.Quality }
func (qualityKind) table() *Table               { return qualityTable }

func (qualityKind) newBuilder(ctx context.Context, res *Result, opts Options, accounts AccountResolver) rowBuilder {
	b := &qualityBuilder{stats: newRunStats()}
	if opts.BidderID != "" {
		b.bidder = &opts.BidderID
	}
	return b
}

type qualityBuilder struct {
	stats  *runStats
	bidder *string
}

func (b *qualityBuilder) build(r *datanorm.RowReader) (Row, error) {
	date, err := r.Date(reports.FieldDay)
	if err != nil {
		return Row{}, err
	}
	publisherID, err := r.Required(reports.FieldPublisherID)
	if err != nil {
		return Row{}, err
	}
	country := r.Optional(reports.FieldCountry)

	impressions := r.Int(reports.FieldImpressions)
	preFiltered := r.Int(reports.FieldPreFiltered)
	ivt := r.Int(reports.FieldIVTCredited)
	billed := r.Int(reports.FieldBilled)
	measurable := r.Int(reports.FieldMeasurable)
	viewable := r.Int(reports.FieldViewable)

	key := datanorm.Key(date, publisherID, datanorm.Deref(country))

	b.stats.date(date)
	b.stats.add("publishers", publisherID)
	b.stats.addPtr("countries", country)
	b.stats.sum("impressions", impressions)
	b.stats.sum("pre_filtered_impressions", preFiltered)
	b.stats.sum("ivt_credited_impressions", ivt)
	b.stats.sum("billed_impressions", billed)
	b.stats.sum("measurable_impressions", measurable)
	b.stats.sum("viewable_impressions", viewable)

	return Row{
		Key: key,
		Values: []any{
			date, publisherID, r.Optional(reports.FieldPublisherName), country,
			impressions, preFiltered, ivt, billed, measurable, viewable,
			datanorm.Percent(ivt, impressions), datanorm.Percent(viewable, measurable), b.bidder,
		},
	}, nil
}

func (b *qualityBuilder) finish(res *Result) {
	b.stats.apply(res)
	t := b.stats.totals
	res.setRate("ivt_rate_pct", datanorm.Percent(t["ivt_credited_impressions"], t["impressions"]))
	res.setRate("viewability_pct", datanorm.Percent(t["viewable_impressions"], t["measurable_impressions"]))
}
