package content

import (
	"testing"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db/dbtest"
)

func TestPlanMergeTagUnionIgnoresOrder(t *testing.T) {
	t.Parallel()

	a := item("a", "A", []string{"a", "b"}, nil)
	b := item("b", "B", []string{"b", "c"}, nil)

	forward := planMerge(a, []db.ContentItem{b})
	backward := planMerge(b, []db.ContentItem{a})

	set := func(tags []string) map[string]bool {
		out := make(map[string]bool, len(tags))
		for _, tag := range tags {
			out[tag] = true
		}
		return out
	}
	want := map[string]bool{"a": true, "b": true, "c": true}
	for _, plan := range []mergePlan{forward, backward} {
		got := set(plan.Fields.Tags)
		if len(plan.Fields.Tags) != 3 || len(got) != len(want) {
			t.Fatalf("expected {a,b,c}, got %v", plan.Fields.Tags)
		}
		for tag := range want {
			if !got[tag] {
				t.Fatalf("missing tag %s in %v", tag, plan.Fields.Tags)
			}
		}
	}
	if !equalStrings(forward.Fields.Tags, []string{"a", "b", "c"}) {
		t.Fatalf("expected first-seen order, got %v", forward.Fields.Tags)
	}
}

func TestPlanMergeDatesAndText(t *testing.T) {
	t.Parallel()

	primary := item("a", "AB", nil, []string{"https://x.example"})
	primary.PublishDate = dbtest.Date(2025, 3, 1)
	second := item("b", "ABCDE", nil, []string{"https://x.example", "https://y.example"})
	second.PublishDate = dbtest.Date(2025, 1, 1)
	third := item("c", "VWXYZ", nil, nil)
	third.Description = "kept"

	plan := planMerge(primary, []db.ContentItem{second, third})
	if plan.Fields.Title != "ABCDE" {
		t.Fatalf("expected longest title with earliest tie-break, got %q", plan.Fields.Title)
	}
	if plan.Fields.PublishDate == nil || !plan.Fields.PublishDate.Equal(*dbtest.Date(2025, 1, 1)) {
		t.Fatalf("expected earliest date, got %v", plan.Fields.PublishDate)
	}
	if plan.Fields.Description != "kept" {
		t.Fatalf("expected the only non-empty description, got %q", plan.Fields.Description)
	}
	if !equalStrings(plan.NewURLs, []string{"https://y.example"}) {
		t.Fatalf("expected only the url missing from the primary, got %v", plan.NewURLs)
	}
	meta := plan.metadata()
	if meta["item_count"] != 3 || meta["url_count"] != 2 || meta["new_url_count"] != 1 {
		t.Fatalf("unexpected metadata %v", meta)
	}
}

func TestPlanMergeKeepsNullDateWhenNoneSet(t *testing.T) {
	t.Parallel()

	plan := planMerge(item("a", "A", nil, nil), []db.ContentItem{item("b", "B", nil, nil)})
	if plan.Fields.PublishDate != nil {
		t.Fatalf("expected nil publish date, got %v", plan.Fields.PublishDate)
	}
	if plan.Fields.Title != "A" {
		t.Fatalf("equal lengths keep the primary title, got %q", plan.Fields.Title)
	}
}
