package content

import (
	"context"
	"errors"
	"testing"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db/dbtest"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func TestMergeLambdaScenario(t *testing.T) {
	t.Parallel()

	sink := &recordingAudit{}
	index := &recordingIndex{}
	svc, pool := newTestService(t, Options{Audit: sink, Index: index})
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "Intro to Lambda", Tags: []string{"aws"}, URLs: []string{"https://a.example/lambda"}},
		dbtest.Item{Owner: "u1", Title: "Introduction to AWS Lambda", Tags: []string{"lambda"}, URLs: []string{"https://b.example/lambda"}},
	)
	a, b := items[0], items[1]
	ctx := context.Background()

	result, err := svc.Merge(ctx, user("u1"), MergeRequest{PrimaryID: a.ID, SecondaryIDs: []string{b.ID}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Content.ID != a.ID {
		t.Fatalf("expected primary to survive, got %s", result.Content.ID)
	}
	if result.Content.Title != "Introduction to AWS Lambda" {
		t.Fatalf("expected longer title, got %q", result.Content.Title)
	}
	if !equalStrings(result.Content.Tags, []string{"aws", "lambda"}) {
		t.Fatalf("expected tag union, got %v", result.Content.Tags)
	}
	if !equalStrings(result.Content.URLStrings(), []string{"https://a.example/lambda", "https://b.example/lambda"}) {
		t.Fatalf("expected url union, got %v", result.Content.URLStrings())
	}
	if result.Content.Version != a.Version+1 {
		t.Fatalf("expected version bump to %d, got %d", a.Version+1, result.Content.Version)
	}

	live, err := pool.FindByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("find secondary: %v", err)
	}
	if live != nil {
		t.Fatalf("expected secondary to be soft-deleted")
	}
	absorbed, err := pool.FindByIDIncludingDeleted(ctx, b.ID)
	if err != nil || absorbed == nil || absorbed.DeletedAt == nil {
		t.Fatalf("expected recoverable soft-deleted secondary, got %+v (%v)", absorbed, err)
	}

	history, err := pool.GetMergeHistory(ctx, result.History.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if !equalStrings(history.MergedContentIDs, []string{b.ID}) {
		t.Fatalf("expected merged ids [%s], got %v", b.ID, history.MergedContentIDs)
	}
	if !history.CanUndo {
		t.Fatalf("expected undoable history")
	}
	if !history.UndoDeadline.Equal(mergeAt.Add(DefaultUndoWindow)) {
		t.Fatalf("expected deadline %s, got %s", mergeAt.Add(DefaultUndoWindow), history.UndoDeadline)
	}
	if history.MergeReason != DefaultMergeReason || history.MergedBy != "u1" {
		t.Fatalf("unexpected history attribution: %+v", history)
	}
	if got, ok := history.MergedMetadata["url_count"].(float64); !ok || got != 2 {
		t.Fatalf("expected url_count 2 in metadata, got %v", history.MergedMetadata["url_count"])
	}

	if got := sink.actions(); !equalStrings(got, []string{audit.ActionMerge}) {
		t.Fatalf("expected merge audit event, got %v", got)
	}
	if !equalStrings(index.indexed, []string{a.ID}) || !equalStrings(index.removed, []string{b.ID}) {
		t.Fatalf("expected index update for primary and removal of secondary, got %v / %v", index.indexed, index.removed)
	}
}

func TestMergeKeepsEarliestDateAndLongestFields(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "AB", PublishDate: dbtest.Date(2025, 3, 1)},
		dbtest.Item{Owner: "u1", Title: "ABCDE", Description: "a longer description", PublishDate: dbtest.Date(2025, 1, 1)},
		dbtest.Item{Owner: "u1", Title: "VWXYZ", Description: "short"},
	)

	result, err := svc.MergeContent(context.Background(), items[0].ID, []string{items[1].ID, items[2].ID}, "u1", "cleanup")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Content.Title != "ABCDE" {
		t.Fatalf("expected earliest of the longest titles, got %q", result.Content.Title)
	}
	if result.Content.Description != "a longer description" {
		t.Fatalf("expected longest description, got %q", result.Content.Description)
	}
	if result.Content.PublishDate == nil || !result.Content.PublishDate.Equal(*dbtest.Date(2025, 1, 1)) {
		t.Fatalf("expected earliest publish date, got %v", result.Content.PublishDate)
	}
	if result.History.MergeReason != "cleanup" {
		t.Fatalf("expected caller reason, got %q", result.History.MergeReason)
	}
	if !equalStrings(result.History.MergedContentIDs, []string{items[1].ID, items[2].ID}) {
		t.Fatalf("expected merged ids in caller order, got %v", result.History.MergedContentIDs)
	}
}

func TestMergeRollsBackOnMidTransactionFailure(t *testing.T) {
	t.Parallel()

	for _, step := range []string{"urls", "primary", "absorb", "history"} {
		step := step
		t.Run(step, func(t *testing.T) {
			t.Parallel()

			sink := &recordingAudit{}
			svc, pool := newTestService(t, Options{Audit: sink})
			items := dbtest.Seed(t, pool, base,
				dbtest.Item{Owner: "u1", Title: "Short", Tags: []string{"a"}, URLs: []string{"https://x.example"}},
				dbtest.Item{Owner: "u1", Title: "Much longer title", Tags: []string{"b"}, URLs: []string{"https://y.example"}},
			)
			svc.afterStep = func(name string) error {
				if name == step {
					return errors.New("injected failure")
				}
				return nil
			}
			ctx := context.Background()

			_, err := svc.Merge(ctx, user("u1"), MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[1].ID}})
			expectKind(t, err, KindTransactionFailure)

			secondary, err := pool.FindByID(ctx, items[1].ID)
			if err != nil || secondary == nil {
				t.Fatalf("expected secondary to stay live, got %+v (%v)", secondary, err)
			}
			primary, err := pool.FindByID(ctx, items[0].ID)
			if err != nil || primary == nil {
				t.Fatalf("reload primary: %+v (%v)", primary, err)
			}
			if primary.Title != "Short" || primary.Version != items[0].Version {
				t.Fatalf("expected primary untouched, got %q v%d", primary.Title, primary.Version)
			}
			if !equalStrings(primary.URLStrings(), []string{"https://x.example"}) {
				t.Fatalf("expected no url inserts to survive, got %v", primary.URLStrings())
			}
			history, err := pool.ListMergeHistoryForContent(ctx, items[0].ID)
			if err != nil {
				t.Fatalf("list history: %v", err)
			}
			if len(history) != 0 {
				t.Fatalf("expected no history record, got %d", len(history))
			}
			if len(sink.actions()) != 0 {
				t.Fatalf("expected no audit event for a failed merge")
			}
		})
	}
}

func TestMergeReportsMissingIDs(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items := dbtest.Seed(t, pool, base, dbtest.Item{Owner: "u1", Title: "Only"})

	_, err := svc.Merge(context.Background(), user("u1"), MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{"ghost"}})
	typed := expectKind(t, err, KindNotFound)
	missing, ok := typed.Details["missing_ids"].([]string)
	if !ok || !equalStrings(missing, []string{"ghost"}) {
		t.Fatalf("expected missing ids [ghost], got %v", typed.Details["missing_ids"])
	}

	_, err = svc.MergeContent(context.Background(), items[0].ID, []string{"ghost"}, "u1", "")
	expectKind(t, err, KindNotFound)
}

func TestMergeRetryAgainstAbsorbedItemIsNotFound(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "One"},
		dbtest.Item{Owner: "u1", Title: "Two"},
	)
	req := MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[1].ID}}
	if _, err := svc.Merge(context.Background(), user("u1"), req); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	_, err := svc.Merge(context.Background(), user("u1"), req)
	expectKind(t, err, KindNotFound)
}

func TestMergePermissionGate(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "Public one"},
		dbtest.Item{Owner: "u1", Title: "Public two"},
		dbtest.Item{Owner: "u1", Title: "Private", Visibility: visibility.Private},
	)
	ctx := context.Background()

	_, err := svc.Merge(ctx, visibility.Viewer{}, MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[1].ID}})
	expectKind(t, err, KindPermissionDenied)

	_, err = svc.Merge(ctx, user("u2"), MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[1].ID}})
	expectKind(t, err, KindPermissionDenied)

	// The private item is hidden from u2, so it reads as missing.
	_, err = svc.Merge(ctx, user("u2"), MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[2].ID}})
	expectKind(t, err, KindNotFound)

	// Admins cannot see private items of others either.
	_, err = svc.Merge(ctx, admin("root"), MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[2].ID}})
	expectKind(t, err, KindNotFound)

	result, err := svc.Merge(ctx, admin("root"), MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[1].ID}})
	if err != nil {
		t.Fatalf("admin merge: %v", err)
	}
	if result.History.MergedBy != "root" {
		t.Fatalf("expected admin attribution, got %q", result.History.MergedBy)
	}
}

func TestMergeValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	cases := []MergeRequest{
		{PrimaryID: "", SecondaryIDs: []string{"b"}},
		{PrimaryID: "a"},
		{PrimaryID: "a", SecondaryIDs: []string{"a"}},
		{PrimaryID: "a", SecondaryIDs: []string{"b", "b"}},
		{PrimaryID: "a", SecondaryIDs: []string{" "}},
	}
	for _, req := range cases {
		_, err := svc.Merge(ctx, user("u1"), req)
		expectKind(t, err, KindValidation)
	}

	if _, err := MergeRequestFromContentIDs("a", []string{"b", "c"}, ""); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error when primary is not among content ids, got %v", err)
	}
	req, err := MergeRequestFromContentIDs("b", []string{"a", "b", "c"}, "dup")
	if err != nil {
		t.Fatalf("from content ids: %v", err)
	}
	if req.PrimaryID != "b" || !equalStrings(req.SecondaryIDs, []string{"a", "c"}) {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestMergeURLUnionIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "Primary", URLs: []string{"https://x.example", "https://y.example"}},
		dbtest.Item{Owner: "u1", Title: "Secondary", URLs: []string{"https://y.example", "https://z.example"}},
	)
	ctx := context.Background()
	req := MergeRequest{PrimaryID: items[0].ID, SecondaryIDs: []string{items[1].ID}}

	first, err := svc.Merge(ctx, user("u1"), req)
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if _, err := svc.Unmerge(ctx, user("u1"), first.History.ID); err != nil {
		t.Fatalf("unmerge: %v", err)
	}
	second, err := svc.Merge(ctx, user("u1"), req)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	want := []string{"https://x.example", "https://y.example", "https://z.example"}
	if !equalStrings(first.Content.URLStrings(), want) {
		t.Fatalf("first merge urls: %v", first.Content.URLStrings())
	}
	if !equalStrings(second.Content.URLStrings(), want) {
		t.Fatalf("expected the same url set after re-merge, got %v", second.Content.URLStrings())
	}
}
