// Package telemetry exposes engine counters and latency histograms via
// Prometheus exposition. jhkimqd-chaos-utils consumes client_golang as a
// PromQL query client; here the same dependency is used the other way
// around — promauto/promhttp — since this process is the one being
// scraped, not the one scraping.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry tracks request counts, cache hit/miss rates, per-action
// tallies, and a latency histogram, and exposes all of it at /metrics.
type Telemetry struct {
	requestsTotal *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	latency       prometheus.Histogram
	handler       http.Handler

	mu        sync.Mutex
	dayEpoch  int64
	dayCounts map[string]int64
}

// New registers all metrics against a dedicated registry and returns a
// Telemetry ready for use.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	t := &Telemetry{
		dayCounts: map[string]int64{},
		dayEpoch:  dayBucket(time.Now()),
	}

	factory := promauto.With(reg)
	t.requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threatscore_requests_total",
		Help: "Total scoring requests by resulting action.",
	}, []string{"action"})
	t.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Name: "threatscore_cache_hits_total",
		Help: "Decision cache hits.",
	})
	t.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Name: "threatscore_cache_misses_total",
		Help: "Decision cache misses.",
	})
	t.latency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "threatscore_score_latency_seconds",
		Help:    "End-to-end /score handler latency.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	t.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return t
}

// Handler returns the http.Handler to mount at GET /metrics.
func (t *Telemetry) Handler() http.Handler { return t.handler }

// RecordAction increments the counter for a resulting action.
func (t *Telemetry) RecordAction(action string) {
	t.requestsTotal.WithLabelValues(action).Inc()
	t.bumpDaily(action)
}

// RecordCacheHit / RecordCacheMiss track the decision cache's hit rate.
func (t *Telemetry) RecordCacheHit()  { t.cacheHits.Inc() }
func (t *Telemetry) RecordCacheMiss() { t.cacheMisses.Inc() }

// ObserveLatency records one /score handler's wall-clock duration.
func (t *Telemetry) ObserveLatency(d time.Duration) {
	t.latency.Observe(d.Seconds())
}

func dayBucket(now time.Time) int64 {
	return now.Unix() / int64(24*time.Hour/time.Second)
}

// bumpDaily maintains an in-memory per-action counter for the current
// day bucket (Unix seconds / 86400). The first bump in a new bucket
// replaces the map with an empty one. These counts are read through
// Daily24h and are not registered with Prometheus.
func (t *Telemetry) bumpDaily(action string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	epoch := dayBucket(time.Now())
	if epoch != t.dayEpoch {
		t.dayEpoch = epoch
		t.dayCounts = map[string]int64{}
	}
	t.dayCounts[action]++
}

// Daily24h returns a snapshot of the current rolling day's per-action
// counts.
func (t *Telemetry) Daily24h() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.dayCounts))
	for k, v := range t.dayCounts {
		out[k] = v
	}
	return out
}
