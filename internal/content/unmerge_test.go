package content

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db/dbtest"
)

func mergeThree(t *testing.T, svc *Service, pool *db.Pool) ([]db.ContentItem, MergeResult) {
	t.Helper()
	items := dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "Intro to Lambda", Tags: []string{"aws"}},
		dbtest.Item{Owner: "u1", Title: "Introduction to AWS Lambda", Tags: []string{"lambda"}},
		dbtest.Item{Owner: "u1", Title: "Lambda notes", Tags: []string{"serverless"}},
	)
	result, err := svc.Merge(context.Background(), user("u1"), MergeRequest{
		PrimaryID:    items[0].ID,
		SecondaryIDs: []string{items[1].ID, items[2].ID},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return items, result
}

func TestUnmergeRestoresExactlyTheAbsorbedItems(t *testing.T) {
	t.Parallel()

	sink := &recordingAudit{}
	index := &recordingIndex{}
	svc, pool := newTestService(t, Options{Audit: sink, Index: index})
	items, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	svc.now = func() time.Time { return mergeAt.Add(24 * time.Hour) }
	result, err := svc.Unmerge(ctx, user("u1"), merged.History.ID)
	if err != nil {
		t.Fatalf("unmerge: %v", err)
	}

	got := append([]string(nil), result.RestoredIDs...)
	want := append([]string(nil), merged.History.MergedContentIDs...)
	sort.Strings(got)
	sort.Strings(want)
	if !equalStrings(got, want) {
		t.Fatalf("expected restored %v, got %v", want, got)
	}
	if result.PrimaryContentID != items[0].ID {
		t.Fatalf("expected primary %s, got %s", items[0].ID, result.PrimaryContentID)
	}
	for _, id := range want {
		live, err := pool.FindByID(ctx, id)
		if err != nil || live == nil {
			t.Fatalf("expected %s to be live again, got %+v (%v)", id, live, err)
		}
	}

	// The primary keeps its merged fields.
	primary, err := pool.FindByID(ctx, items[0].ID)
	if err != nil || primary == nil {
		t.Fatalf("reload primary: %v", err)
	}
	if primary.Title != "Introduction to AWS Lambda" || len(primary.Tags) != 3 {
		t.Fatalf("expected merged primary to be kept, got %q %v", primary.Title, primary.Tags)
	}

	history, err := pool.GetMergeHistory(ctx, merged.History.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if history.CanUndo {
		t.Fatalf("expected history to be closed")
	}

	if actions := sink.actions(); !equalStrings(actions, []string{audit.ActionMerge, audit.ActionUnmerge}) {
		t.Fatalf("unexpected audit actions %v", actions)
	}
	if len(index.indexed) != 3 {
		t.Fatalf("expected primary plus two restored items indexed, got %v", index.indexed)
	}

	_, err = svc.Unmerge(ctx, user("u1"), merged.History.ID)
	typed := expectKind(t, err, KindConflict)
	if _, ok := typed.Details["undo_deadline"]; !ok {
		t.Fatalf("expected undo deadline in conflict details, got %v", typed.Details)
	}
}

func TestUnmergeAfterDeadlineIsExpired(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	svc.now = func() time.Time { return mergeAt.Add(31 * 24 * time.Hour) }
	_, err := svc.Unmerge(ctx, user("u1"), merged.History.ID)
	expectKind(t, err, KindExpired)

	live, err := pool.FindByID(ctx, items[1].ID)
	if err != nil {
		t.Fatalf("find absorbed: %v", err)
	}
	if live != nil {
		t.Fatalf("expected absorbed item to stay soft-deleted")
	}
	history, err := pool.GetMergeHistory(ctx, merged.History.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if !history.CanUndo {
		t.Fatalf("an expired attempt must not flip can_undo")
	}

	// The engine entry point applies the same deadline.
	_, err = svc.UnmergeContent(ctx, merged.History.ID)
	expectKind(t, err, KindExpired)
}

func TestUnmergeAtDeadlineStillSucceeds(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	_, merged := mergeThree(t, svc, pool)

	svc.now = func() time.Time { return merged.History.UndoDeadline }
	if _, err := svc.UnmergeContent(context.Background(), merged.History.ID); err != nil {
		t.Fatalf("unmerge at the deadline: %v", err)
	}
}

func TestUnmergeRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	svc.afterStep = func(name string) error {
		if name == "close" {
			return errors.New("injected failure")
		}
		return nil
	}
	_, err := svc.Unmerge(ctx, user("u1"), merged.History.ID)
	expectKind(t, err, KindTransactionFailure)

	live, err := pool.FindByID(ctx, items[1].ID)
	if err != nil {
		t.Fatalf("find absorbed: %v", err)
	}
	if live != nil {
		t.Fatalf("expected restore to roll back")
	}
	history, err := pool.GetMergeHistory(ctx, merged.History.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if !history.CanUndo {
		t.Fatalf("expected history to stay undoable after rollback")
	}
}

func TestUnmergeAccess(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	_, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	_, err := svc.Unmerge(ctx, user("u2"), merged.History.ID)
	expectKind(t, err, KindNotFound)

	_, err = svc.Unmerge(ctx, user("u1"), "missing")
	expectKind(t, err, KindNotFound)

	_, err = svc.UnmergeContent(ctx, "missing")
	expectKind(t, err, KindNotFound)

	if _, err := svc.GetMergeHistory(ctx, user("u2"), merged.History.ID); !IsKind(err, KindNotFound) {
		t.Fatalf("expected not found for a stranger, got %v", err)
	}
	rec, err := svc.GetMergeHistory(ctx, admin("root"), merged.History.ID)
	if err != nil || rec.ID != merged.History.ID {
		t.Fatalf("admin read: %+v (%v)", rec, err)
	}

	if _, err := svc.Unmerge(ctx, admin("root"), merged.History.ID); err != nil {
		t.Fatalf("admin unmerge: %v", err)
	}
}

func TestListMergeHistory(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	records, err := svc.ListMergeHistory(ctx, user("u1"), items[0].ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 1 || records[0].ID != merged.History.ID {
		t.Fatalf("expected the merge record, got %+v", records)
	}

	_, err = svc.ListMergeHistory(ctx, user("u2"), items[0].ID)
	expectKind(t, err, KindPermissionDenied)
}

func TestListMergeHistoryForAbsorbedItem(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	items, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	records, err := svc.ListMergeHistory(ctx, user("u1"), items[1].ID)
	if err != nil {
		t.Fatalf("list history for absorbed item: %v", err)
	}
	if len(records) != 1 || records[0].ID != merged.History.ID {
		t.Fatalf("expected the merge record, got %+v", records)
	}

	_, err = svc.ListMergeHistory(ctx, user("u2"), items[1].ID)
	expectKind(t, err, KindPermissionDenied)

	_, err = svc.ListMergeHistory(ctx, user("u1"), "missing")
	expectKind(t, err, KindNotFound)
}

func TestUnmergeAfterUndoIsConflictEvenPastDeadline(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	_, merged := mergeThree(t, svc, pool)
	ctx := context.Background()

	if _, err := svc.Unmerge(ctx, user("u1"), merged.History.ID); err != nil {
		t.Fatalf("first unmerge: %v", err)
	}
	svc.now = func() time.Time { return mergeAt.Add(31 * 24 * time.Hour) }
	_, err := svc.Unmerge(ctx, user("u1"), merged.History.ID)
	expectKind(t, err, KindConflict)
}
