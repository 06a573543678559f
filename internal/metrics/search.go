package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "searches_total",
			Help:      "Total number of search requests by outcome",
		},
		[]string{"status"}, // "success" / "fallback" / "unavailable"
	)

	SearchVariants = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "search_variants",
			Help:      "Number of query variants per search",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	ExpansionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "query_expansions_total",
			Help:      "Total query expansion calls by outcome",
		},
		[]string{"status"}, // "success" / "error"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchVariants)
	prometheus.MustRegister(ExpansionsTotal)
	searchMetricsRegistered = true
}
