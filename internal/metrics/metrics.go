// Package metrics exposes Prometheus collectors for every websearch role.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	frontierSize               prometheus.Gauge
	replicaCallsTotal          *prometheus.CounterVec
	indexWritesTotal           *prometheus.CounterVec
	pagesCrawledTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	statisticsRefreshTotal     prometheus.Counter
	statsListeners             prometheus.Gauge
	activeWorkers              prometheus.Gauge
	replicaDocuments           *prometheus.GaugeVec
	replicaResponseMs          *prometheus.GaugeVec
	topSearchHits              *prometheus.GaugeVec

	once sync.Once
)

// Init registers the collectors. It is safe to call repeatedly; every
// Observe helper calls it too.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "websearch_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		frontierSize = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "websearch_frontier_size",
			Help: "Number of URLs currently queued in the frontier.",
		})

		replicaCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_replica_calls_total",
				Help: "Gateway read calls against replicas, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)

		indexWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_index_writes_total",
				Help: "Per-replica outcomes of crawler write fan-out.",
			},
			[]string{"outcome"},
		)

		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_pages_crawled_total",
				Help: "Pages processed by crawl workers, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "websearch_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		statisticsRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "websearch_statistics_refresh_total",
			Help: "Statistics snapshots computed by the gateway.",
		})

		statsListeners = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "websearch_statistics_listeners",
			Help: "Registered statistics listeners.",
		})

		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "websearch_active_workers",
			Help: "Crawl workers currently processing a URL.",
		})

		replicaDocuments = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "websearch_replica_index_rows",
			Help: "Word-url rows held by each replica, from the last statistics snapshot.",
		}, []string{"replica"})

		replicaResponseMs = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "websearch_replica_avg_response_ms",
			Help: "Mean gateway read latency per replica, from the last statistics snapshot.",
		}, []string{"replica"})

		topSearchHits = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "websearch_top_search_hits",
			Help: "Hit counters of the current top searched words.",
		}, []string{"word"})
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetFrontierSize updates the frontier size gauge.
func SetFrontierSize(n int) {
	Init()
	frontierSize.Set(float64(n))
}

// ObserveReplicaCall counts a gateway read against a replica.
func ObserveReplicaCall(op string, err error) {
	Init()
	replicaCallsTotal.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveIndexWrite counts one replica's result in a write fan-out.
// Outcome is one of "ok", "locked" or "failed".
func ObserveIndexWrite(result string) {
	Init()
	indexWritesTotal.WithLabelValues(result).Inc()
}

// ObserveCrawl counts a processed page.
func ObserveCrawl(site, result string) {
	Init()
	pagesCrawledTotal.WithLabelValues(site, result).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// IncStatisticsRefresh counts a recomputed statistics snapshot.
func IncStatisticsRefresh() {
	Init()
	statisticsRefreshTotal.Inc()
}

// SetStatisticsListeners updates the listener gauge.
func SetStatisticsListeners(n int) {
	Init()
	statsListeners.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// SetStatistics mirrors a statistics snapshot into gauges. Series for
// replicas or words absent from the snapshot are dropped.
func SetStatistics(docCounts map[string]int64, avgResponseMs map[string]float64, top map[string]int64) {
	Init()
	replicaDocuments.Reset()
	for addr, n := range docCounts {
		replicaDocuments.WithLabelValues(addr).Set(float64(n))
	}
	replicaResponseMs.Reset()
	for addr, ms := range avgResponseMs {
		replicaResponseMs.WithLabelValues(addr).Set(ms)
	}
	topSearchHits.Reset()
	for word, n := range top {
		topSearchHits.WithLabelValues(word).Set(float64(n))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
