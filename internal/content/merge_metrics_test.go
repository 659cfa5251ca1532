package content

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db/dbtest"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/observability"
)

func TestMergeDurationIgnoresPinnedClock(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	svc, pool := newTestService(t, Options{Metrics: observability.NewMetrics(registry)})
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "Intro to Lambda"},
		dbtest.Item{Owner: "u1", Title: "Introduction to AWS Lambda"},
	)
	if _, err := svc.Merge(context.Background(), user("u1"), MergeRequest{
		PrimaryID:    items[0].ID,
		SecondaryIDs: []string{items[1].ID},
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "contenthub_merge_duration_seconds" {
			continue
		}
		hist := family.GetMetric()[0].GetHistogram()
		if hist.GetSampleCount() != 1 {
			t.Fatalf("expected one duration sample, got %d", hist.GetSampleCount())
		}
		if sum := hist.GetSampleSum(); sum < 0 || sum > 60 {
			t.Fatalf("expected wall-clock merge duration, got %fs", sum)
		}
		return
	}
	t.Fatalf("contenthub_merge_duration_seconds not registered")
}
