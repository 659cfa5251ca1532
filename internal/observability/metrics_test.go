package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsExposeCounters(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveMerge(time.Now(), nil)
	m.ObserveMerge(time.Now(), errors.New("boom"))
	m.ObserveUnmerge(nil)
	m.ObserveDuplicateScan()
	m.ObserveSearch("keyword")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`contenthub_merge_total{result="success"} 1`,
		`contenthub_merge_total{result="failure"} 1`,
		`contenthub_unmerge_total{result="success"} 1`,
		`contenthub_duplicate_scan_total 1`,
		`contenthub_search_total{mode="keyword"} 1`,
		`contenthub_merge_duration_seconds_count 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveMerge(time.Now(), nil)
	m.ObserveUnmerge(nil)
	m.ObserveDuplicateScan()
	m.ObserveSearch("list")
	if m.Handler() == nil {
		t.Fatalf("expected fallback handler")
	}
}
