package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/reports"
)

const bidFilteringHeader = "Day,Country,Bid filtering reason,Bids,Bids in auction,Opportunity cost"

func bidFilteringCSV(t *testing.T) string {
	return writeCSV(t, "bid_filtering.csv",
		bidFilteringHeader,
		"1/15/2024,US,Bid below floor,100,80,$12.50",
		"1/15/2024,GB,Bid below floor,50,40,$1.00",
		`1/16/2024,US,Creative not approved,"1,200",0,0`,
	)
}

func TestBidFilteringImport_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	path := bidFilteringCSV(t)

	first, err := NewBidFilteringImporter(Deps{Store: store}).Import(ctx, path, Options{})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, StatusComplete, first.Status)
	assert.Equal(t, reports.BidFiltering, first.ReportType)
	assert.Equal(t, reports.TableBidFiltering, first.Table)
	assert.Equal(t, 3, first.RowsRead)
	assert.Equal(t, 3, first.RowsImported)
	assert.Equal(t, 0, first.RowsDuplicate)
	assert.Equal(t, "2024-01-15", first.DateStart)
	assert.Equal(t, "2024-01-16", first.DateEnd)
	assert.Equal(t, []string{"Bid below floor", "Creative not approved"}, first.Distinct["filtering_reasons"])
	assert.Equal(t, int64(1350), first.Totals["bids"])
	assert.Equal(t, int64(13_500_000), first.Totals["opportunity_cost_micros"])
	assert.Len(t, first.BatchID, 8)
	assert.Len(t, store.rows(reports.TableBidFiltering), 3)

	second, err := NewBidFilteringImporter(Deps{Store: store}).Import(ctx, path, Options{})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.RowsImported)
	assert.Equal(t, 3, second.RowsDuplicate)
	assert.NotEqual(t, first.BatchID, second.BatchID)
	assert.Len(t, store.rows(reports.TableBidFiltering), 3)
}

func TestImport_DuplicateRowsWithinOneFile(t *testing.T) {
	path := writeCSV(t, "dupes.csv",
		bidFilteringHeader,
		"1/15/2024,US,Bid below floor,100,80,$12.50",
		"1/15/2024,US,Bid below floor,100,80,$12.50",
	)

	res, err := NewBidFilteringImporter(Deps{Store: newMemStore()}).Import(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsImported)
	assert.Equal(t, 1, res.RowsDuplicate)
}

func performanceCSV(t *testing.T) string {
	return writeCSV(t, "performance.csv",
		"#Day,Creative ID,Billing ID,Creative size,Country,Deal ID,Deal name,Reached queries,Impressions,Clicks,Spend (bidder currency)",
		`01/15/2024,cr-1,111,300x250,US,0,(none),"1,000",500,5,"$1,234.56"`,
		"01/15/2024,cr-2,222,728x90,US,deal-9,PMP Deal,200,100,0,$0.50",
		"01/15/2024,,111,300x250,US,0,(none),10,10,0,$0",
	)
}

func TestPerformanceImport(t *testing.T) {
	store := newMemStore()
	deps := Deps{Store: store, Accounts: fakeAccounts{"111": "bidder-1", "222": "bidder-1"}}

	res, err := NewPerformanceImporter(deps).Import(context.Background(), performanceCSV(t), Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, reports.PerformanceDetail, res.ReportType)
	assert.Equal(t, 3, res.RowsRead)
	assert.Equal(t, 2, res.RowsImported)
	assert.Equal(t, 1, res.RowsSkipped)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Row 4: Creative ID: missing value", res.Errors[0])

	assert.Equal(t, "bidder-1", res.BidderID)
	assert.Equal(t, BidderInferred, res.BidderSource)
	assert.Equal(t, []string{"111", "222"}, res.Distinct["billing_ids"])
	assert.Equal(t, []string{"cr-1", "cr-2"}, res.Distinct["creatives"])
	assert.Equal(t, int64(600), res.Totals["impressions"])
	assert.Equal(t, int64(1_235_060_000), res.Totals["spend_micros"])
	assert.Equal(t, 0.83, res.Rates["ctr_pct"])

	var open []any
	for _, values := range store.rows(reports.TableDaily) {
		if values[2] == "cr-1" {
			open = values
		}
	}
	require.NotNil(t, open)
	assert.Equal(t, "2024-01-15", open[0])
	assert.Nil(t, open[14], "deal id 0 is stored as NULL")
	assert.Nil(t, open[15], "deal name (none) is stored as NULL")
	assert.Equal(t, int64(1000), open[20])
	assert.Equal(t, int64(1_234_560_000), open[23])
	assert.Equal(t, 1.0, open[35])
	bidder, ok := open[36].(*string)
	require.True(t, ok)
	require.NotNil(t, bidder)
	assert.Equal(t, "bidder-1", *bidder)
}

func TestPerformanceImport_BidderAttribution(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit override wins", func(t *testing.T) {
		deps := Deps{Store: newMemStore(), Accounts: fakeAccounts{"111": "bidder-1", "222": "bidder-1"}}
		res, err := NewPerformanceImporter(deps).Import(ctx, performanceCSV(t), Options{BidderID: "override"})
		require.NoError(t, err)
		assert.Equal(t, "override", res.BidderID)
		assert.Equal(t, BidderExplicit, res.BidderSource)
	})

	t.Run("billing ids of two bidders stay unknown", func(t *testing.T) {
		deps := Deps{Store: newMemStore(), Accounts: fakeAccounts{"111": "bidder-1", "222": "bidder-2"}}
		res, err := NewPerformanceImporter(deps).Import(ctx, performanceCSV(t), Options{})
		require.NoError(t, err)
		assert.Empty(t, res.BidderID)
		assert.Equal(t, BidderUnknown, res.BidderSource)
	})

	t.Run("unmapped billing id stays unknown", func(t *testing.T) {
		deps := Deps{Store: newMemStore(), Accounts: fakeAccounts{"111": "bidder-1"}}
		res, err := NewPerformanceImporter(deps).Import(ctx, performanceCSV(t), Options{})
		require.NoError(t, err)
		assert.Equal(t, BidderUnknown, res.BidderSource)
	})
}

func TestFunnelImport(t *testing.T) {
	ctx := context.Background()

	t.Run("geo", func(t *testing.T) {
		store := newMemStore()
		path := writeCSV(t, "funnel_geo.csv",
			"Day,Country,Bid requests,Reached queries,Bids,Bids in auction,Auctions won,Impressions",
			"2024-01-15,US,1000,900,400,300,150,140",
			"2024-01-15,GB,500,450,100,100,25,20",
		)
		res, err := NewFunnelImporter(Deps{Store: store}).Import(ctx, path, Options{BidderID: "acct-9"})
		require.NoError(t, err)

		assert.Equal(t, reports.FunnelGeo, res.ReportType)
		assert.Equal(t, reports.TableFunnel, res.Table)
		assert.Equal(t, 2, res.RowsImported)
		assert.Equal(t, 33.33, res.Rates["bid_rate_pct"])
		assert.Equal(t, 43.75, res.Rates["win_rate_pct"])
		assert.Equal(t, []string{"GB", "US"}, res.Distinct["countries"])
		for _, values := range store.rows(reports.TableFunnel) {
			assert.Equal(t, "geo", values[9])
			bidder := values[21].(*string)
			assert.Equal(t, "acct-9", *bidder)
		}
	})

	t.Run("publisher", func(t *testing.T) {
		store := newMemStore()
		path := writeCSV(t, "funnel_pub.csv",
			"Day,Country,Publisher ID,Publisher name,Bid requests,Bids,Bids in auction,Auctions won",
			"2024-01-15,US,pub-1,News,1000,400,300,150",
			"2024-01-15,US,pub-2,Blog,1000,400,300,150",
		)
		res, err := NewFunnelImporter(Deps{Store: store}).Import(ctx, path, Options{})
		require.NoError(t, err)

		assert.Equal(t, reports.FunnelPublisher, res.ReportType)
		assert.Equal(t, 2, res.RowsImported)
		assert.Equal(t, []string{"pub-1", "pub-2"}, res.Distinct["publishers"])
		for _, values := range store.rows(reports.TableFunnel) {
			assert.Equal(t, "publisher", values[9])
			assert.Nil(t, values[21])
		}
	})
}

func TestFunnelImport_RowWithoutCountryIsSkipped(t *testing.T) {
	store := newMemStore()
	path := writeCSV(t, "funnel_geo.csv",
		"Day,Country,Bid requests,Bids",
		"2024-01-15,US,1000,400",
		"2024-01-15,,500,100",
	)

	res, err := NewFunnelImporter(Deps{Store: store}).Import(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RowsRead)
	assert.Equal(t, 1, res.RowsImported)
	assert.Equal(t, 1, res.RowsSkipped)
	assert.Equal(t, []string{"Row 3: Country: missing value"}, res.Errors)
	assert.Equal(t, []string{"US"}, res.Distinct["countries"])
	assert.Equal(t, int64(1000), res.Totals["bid_requests"])
	assert.Len(t, store.rows(reports.TableFunnel), 1)
}

func TestImport_RevisedMetricsKeepFirstSeenRow(t *testing.T) {
	ctx := context.Background()

	t.Run("funnel", func(t *testing.T) {
		store := newMemStore()
		const header = "Day,Hour,Country,Publisher ID,Platform,Environment,Transaction type,Bid requests,Bids"
		first := writeCSV(t, "funnel_v1.csv", header, "2024-01-15,7,US,pub-1,Desktop,Web,Open auction,1000,400")
		revised := writeCSV(t, "funnel_v2.csv", header, "2024-01-15,7,US,pub-1,Desktop,Web,Open auction,1200,999")

		res, err := NewFunnelImporter(Deps{Store: store}).Import(ctx, first, Options{})
		require.NoError(t, err)
		require.Equal(t, 1, res.RowsImported)

		res, err = NewFunnelImporter(Deps{Store: store}).Import(ctx, revised, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.RowsImported)
		assert.Equal(t, 1, res.RowsDuplicate)

		rows := store.rows(reports.TableFunnel)
		require.Len(t, rows, 1)
		for _, values := range rows {
			assert.Equal(t, int64(1000), values[10])
			assert.Equal(t, int64(400), values[14])
		}
	})

	t.Run("performance", func(t *testing.T) {
		store := newMemStore()
		const header = "Day,Creative ID,Billing ID,Creative size,Country,Impressions,Spend"
		first := writeCSV(t, "perf_v1.csv", header, "2024-01-15,cr-1,111,300x250,US,500,$2.00")
		revised := writeCSV(t, "perf_v2.csv", header, "2024-01-15,cr-1,111,300x250,US,750,$3.00")

		res, err := NewPerformanceImporter(Deps{Store: store}).Import(ctx, first, Options{})
		require.NoError(t, err)
		require.Equal(t, 1, res.RowsImported)

		res, err = NewPerformanceImporter(Deps{Store: store}).Import(ctx, revised, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.RowsImported)
		assert.Equal(t, 1, res.RowsDuplicate)

		rows := store.rows(reports.TableDaily)
		require.Len(t, rows, 1)
		for _, values := range rows {
			assert.Equal(t, int64(500), values[21])
			assert.Equal(t, int64(2_000_000), values[23])
		}
	})

	t.Run("changed dimension is a new row", func(t *testing.T) {
		store := newMemStore()
		const header = "Day,Country,Bid requests,Bids"
		_, err := NewFunnelImporter(Deps{Store: store}).Import(ctx, writeCSV(t, "a.csv", header, "2024-01-15,US,1000,400"), Options{})
		require.NoError(t, err)

		res, err := NewFunnelImporter(Deps{Store: store}).Import(ctx, writeCSV(t, "b.csv", header, "2024-01-15,CA,1000,400"), Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.RowsImported)
		assert.Equal(t, 0, res.RowsDuplicate)
		assert.Len(t, store.rows(reports.TableFunnel), 2)
	})
}

func TestQualityImport(t *testing.T) {
	store := newMemStore()
	path := writeCSV(t, "quality.csv",
		"Day,Publisher ID,Publisher name,Impressions,IVT credited impressions,Active View measurable,Active View viewable",
		"2024-01-15,pub-1,News,1000,5,800,600",
		"2024-01-15,pub-2,Blog,1000,15,200,100",
	)

	res, err := NewQualityImporter(Deps{Store: store}).Import(context.Background(), path, Options{})
	require.NoError(t, err)

	assert.Equal(t, reports.Quality, res.ReportType)
	assert.Equal(t, 2, res.RowsImported)
	assert.Equal(t, 1.0, res.Rates["ivt_rate_pct"])
	assert.Equal(t, 70.0, res.Rates["viewability_pct"])

	for _, values := range store.rows(reports.TableQuality) {
		if values[1] == "pub-1" {
			assert.Equal(t, 0.5, values[10])
			assert.Equal(t, 75.0, values[11])
		}
	}
}

func TestImport_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		path     func(t *testing.T) string
		sentinel error
		message  string
	}{
		{
			name: "wrong report type",
			path: func(t *testing.T) string {
				return writeCSV(t, "funnel.csv", "Day,Country,Bid requests", "2024-01-15,US,10")
			},
			sentinel: ErrWrongReportType,
			message:  "This CSV is not a Performance Detail report. Detected: RTB Funnel (Geo)",
		},
		{
			name: "missing required column",
			path: func(t *testing.T) string {
				return writeCSV(t, "perf.csv", "Day,Creative ID,Impressions", "2024-01-15,cr-1,10")
			},
			sentinel: ErrMissingColumns,
			message:  "Missing required columns: Billing ID",
		},
		{
			name: "unknown layout",
			path: func(t *testing.T) string {
				return writeCSV(t, "other.csv", "foo,bar", "1,2")
			},
			sentinel: ErrUnknownReport,
			message:  "Could not detect report type",
		},
		{
			name: "missing file",
			path: func(t *testing.T) string {
				return t.TempDir() + "/nope.csv"
			},
			sentinel: ErrFileNotFound,
			message:  "File not found:",
		},
		{
			name: "empty file",
			path: func(t *testing.T) string {
				return writeCSV(t, "empty.csv")
			},
			sentinel: ErrHeaderRead,
			message:  "file is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			history := &fakeHistory{}
			res, err := NewPerformanceImporter(Deps{Store: store, History: history}).Import(ctx, tt.path(t), Options{})

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Equal(t, StatusRejected, res.Status)
			assert.Contains(t, res.ErrorMessage, tt.message)
			assert.Empty(t, store.ensured, "rejected imports must not touch the store")
			assert.Empty(t, history.started)
			assert.Empty(t, history.finished)
		})
	}
}

func TestImport_MissingColumnsListsFixInstructions(t *testing.T) {
	path := writeCSV(t, "perf.csv", "Day,Creative ID,Impressions", "2024-01-15,cr-1,10")

	res, err := NewPerformanceImporter(Deps{Store: newMemStore()}).Import(context.Background(), path, Options{})
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Equal(t, []string{"billing_id"}, res.ColumnsMissing)
	assert.Contains(t, res.ErrorMessage, reports.FixInstructions(reports.PerformanceDetail, []reports.Field{reports.FieldBillingID}))
}

func TestImport_RowIssuesAreReported(t *testing.T) {
	path := writeCSV(t, "bf.csv",
		bidFilteringHeader,
		"1/15/2024,US,Bid below floor,abc,80,$12.50",
		"not a date,US,Bid below floor,1,1,1",
	)

	res, err := NewBidFilteringImporter(Deps{Store: newMemStore()}).Import(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsImported)
	assert.Equal(t, 1, res.RowsSkipped)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, `Row 2: bids: invalid integer "abc"`, res.Errors[0])
	assert.True(t, strings.HasPrefix(res.Errors[1], "Row 3: Day"), res.Errors[1])
}

func TestImport_DiagnosticsAreCapped(t *testing.T) {
	lines := []string{"Day,Publisher ID,Impressions,IVT credited impressions"}
	for i := 0; i < 5; i++ {
		lines = append(lines, "2024-01-15,,100,1")
	}
	path := writeCSV(t, "quality.csv", lines...)

	res, err := NewQualityImporter(Deps{Store: newMemStore()}).Import(context.Background(), path, Options{MaxRowErrors: 2})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 5, res.RowsSkipped)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, "... 3 more row errors not shown", res.Errors[2])
}

func TestImport_StoreRejectedRowIsSkipped(t *testing.T) {
	store := newMemStore()
	store.failKeys = map[string]error{
		datanorm.Key("2024-01-15", "US", "", "Bid below floor", ""): errors.New("value too long"),
	}

	res, err := NewBidFilteringImporter(Deps{Store: store}).Import(context.Background(), bidFilteringCSV(t), Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RowsImported)
	assert.Equal(t, 1, res.RowsSkipped)
	assert.Contains(t, res.Errors, "Row 2: value too long")
}

func TestImport_CommitFailureKeepsEarlierBatches(t *testing.T) {
	ctx := context.Background()
	lines := []string{bidFilteringHeader}
	for _, country := range []string{"US", "GB", "FR", "DE", "IT"} {
		lines = append(lines, "1/15/2024,"+country+",Bid below floor,1,1,$1")
	}

	t.Run("partial failure", func(t *testing.T) {
		store := newMemStore()
		store.failCommit = 2
		history := &fakeHistory{}

		res, err := NewBidFilteringImporter(Deps{Store: store, History: history}).
			Import(ctx, writeCSV(t, "bf.csv", lines...), Options{BatchSize: 2})
		require.ErrorIs(t, err, ErrImportAborted)
		assert.False(t, res.Success)
		assert.Equal(t, StatusPartialFailure, res.Status)
		assert.Equal(t, 2, res.RowsImported)
		assert.Len(t, store.rows(reports.TableBidFiltering), 2)
		require.NotEmpty(t, res.Errors)
		assert.True(t, strings.HasPrefix(res.Errors[len(res.Errors)-1], "Fatal: "))
		assert.Equal(t, []Status{StatusPartialFailure}, history.finished)
	})

	t.Run("nothing committed", func(t *testing.T) {
		store := newMemStore()
		store.failCommit = 1

		res, err := NewBidFilteringImporter(Deps{Store: store}).
			Import(ctx, writeCSV(t, "bf.csv", lines...), Options{BatchSize: 2})
		require.ErrorIs(t, err, ErrImportAborted)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, 0, res.RowsImported)
	})

	t.Run("ensure table failure", func(t *testing.T) {
		store := newMemStore()
		store.ensureErr = errors.New("permission denied")

		res, err := NewBidFilteringImporter(Deps{Store: store}).
			Import(ctx, writeCSV(t, "bf.csv", lines...), Options{})
		require.ErrorIs(t, err, ErrImportAborted)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.ErrorMessage, "permission denied")
	})
}

func TestImport_RecordsHistory(t *testing.T) {
	history := &fakeHistory{}
	res, err := NewBidFilteringImporter(Deps{Store: newMemStore(), History: history}).
		Import(context.Background(), bidFilteringCSV(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{res.BatchID}, history.started)
	assert.Equal(t, []Status{StatusComplete}, history.finished)
}

func TestImport_PublishesProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	progress := NewRedisProgress(client, 0)

	res, err := NewBidFilteringImporter(Deps{Store: newMemStore(), Progress: progress}).
		Import(context.Background(), bidFilteringCSV(t), Options{ProgressEvery: 1})
	require.NoError(t, err)

	snap, err := progress.Get(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, StateFinalize, snap.State)
	assert.Equal(t, 3, snap.RowsImported)
	assert.Equal(t, string(reports.BidFiltering), snap.ReportType)
	assert.True(t, mr.Exists(ProgressKey(res.BatchID)))
	assert.Equal(t, "24h0m0s", mr.TTL(ProgressKey(res.BatchID)).String())
}

func TestImport_CountsRowsInMetrics(t *testing.T) {
	imported := rowsTotal.WithLabelValues(reports.TableBidFiltering, "imported")
	duplicates := rowsTotal.WithLabelValues(reports.TableBidFiltering, "duplicate")
	beforeImported := testutil.ToFloat64(imported)
	beforeDuplicates := testutil.ToFloat64(duplicates)

	store := newMemStore()
	path := bidFilteringCSV(t)
	for i := 0; i < 2; i++ {
		_, err := NewBidFilteringImporter(Deps{Store: store}).Import(context.Background(), path, Options{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(imported)-beforeImported)
	assert.Equal(t, 3.0, testutil.ToFloat64(duplicates)-beforeDuplicates)
}
