// Package observability exposes Prometheus metrics for the content engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	gatherer       prometheus.Gatherer
	merges         *prometheus.CounterVec
	unmerges       *prometheus.CounterVec
	duplicateScans prometheus.Counter
	searches       *prometheus.CounterVec
	mergeDuration  prometheus.Histogram
}

// NewMetrics registers the collectors on reg, which also backs Handler.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contenthub_merge_total",
			Help: "Content merges by result.",
		}, []string{"result"}),
		unmerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contenthub_unmerge_total",
			Help: "Merge undo attempts by result.",
		}, []string{"result"}),
		duplicateScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contenthub_duplicate_scan_total",
			Help: "Duplicate detection scans.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contenthub_search_total",
			Help: "Content searches by mode.",
		}, []string{"mode"}),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contenthub_merge_duration_seconds",
			Help:    "Wall time of merge transactions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.merges, m.unmerges, m.duplicateScans, m.searches, m.mergeDuration)
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func (m *Metrics) ObserveMerge(started time.Time, err error) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(resultLabel(err)).Inc()
	m.mergeDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveUnmerge(err error) {
	if m == nil {
		return
	}
	m.unmerges.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) ObserveDuplicateScan() {
	if m == nil {
		return
	}
	m.duplicateScans.Inc()
}

func (m *Metrics) ObserveSearch(mode string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
