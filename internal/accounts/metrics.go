package accounts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtb",
		Subsystem: "accounts",
		Name:      "cache_requests_total",
		Help:      "Total number of billing id cache lookups broken down by result.",
	}, []string{"result"})

	cacheRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtb",
		Subsystem: "accounts",
		Name:      "cache_refreshes_total",
		Help:      "Total number of full reloads of the account mapping.",
	})
)

func recordCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(result).Inc()
}

func recordCacheInvalidate() {
	cacheRefreshes.Inc()
}
