package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtb",
		Subsystem: "ingest",
		Name:      "imports_total",
		Help:      "Total number of CSV imports broken down by report type and terminal status.",
	}, []string{"report_type", "status"})

	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtb",
		Subsystem: "ingest",
		Name:      "rows_total",
		Help:      "Total number of CSV rows broken down by destination table and outcome.",
	}, []string{"table", "outcome"})

	batchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtb",
		Subsystem: "ingest",
		Name:      "batch_flushes_total",
		Help:      "Total number of batch transactions broken down by table and result.",
	}, []string{"table", "result"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rtb",
		Subsystem: "ingest",
		Name:      "import_duration_seconds",
		Help:      "Wall time of one CSV import.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"report_type"})
)

func recordImport(res *Result, elapsed time.Duration) {
	importsTotal.WithLabelValues(string(res.ReportType), string(res.Status)).Inc()
	importDuration.WithLabelValues(string(res.ReportType)).Observe(elapsed.Seconds())
}

func recordRows(table, outcome string, n int) {
	if n <= 0 {
		return
	}
	rowsTotal.WithLabelValues(table, outcome).Add(float64(n))
}

func recordFlush(table string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	batchFlushes.WithLabelValues(table, result).Inc()
}
