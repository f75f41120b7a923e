package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodis_http_requests_total",
		Help: "Total number of HTTP requests by status code",
	}, []string{"code"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geodis_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	// kind: nearest|ip|ip_aux；result: hit|miss|error
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodis_lookups_total",
		Help: "Total resolver lookups by kind and result",
	}, []string{"kind", "result"})
	LookupDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geodis_lookup_duration_ms",
		Help:    "Resolver lookup duration in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200},
	}, []string{"kind"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodis_cache_hits_total",
		Help: "Total in-process result cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodis_cache_misses_total",
		Help: "Total in-process result cache misses",
	})
	CorruptEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodis_corrupt_entries_total",
		Help: "Stored scores or members that failed to parse",
	}, []string{"index"})
	ImportedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodis_imported_total",
		Help: "Items queued by importers, by kind",
	}, []string{"kind"})
	ImportSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodis_import_skipped_total",
		Help: "Rows rejected by importers, by kind",
	}, []string{"kind"})
	BatchFlushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodis_batch_flushes_total",
		Help: "Pipelined batch round trips",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodis_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CorruptEntriesTotal)
	prometheus.MustRegister(ImportedTotal)
	prometheus.MustRegister(ImportSkippedTotal)
	prometheus.MustRegister(BatchFlushesTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// Handler：Prometheus 抓取端点
func Handler() http.Handler { return promhttp.Handler() }
