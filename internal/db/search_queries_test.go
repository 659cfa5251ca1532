package db_test

import (
	"context"
	"testing"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db/dbtest"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func seedSearchFixtures(t *testing.T) *db.Pool {
	t.Helper()

	pool := dbtest.Pool(t)
	dbtest.Seed(t, pool, base,
		dbtest.Item{ID: "pub-blog", Owner: "u1", Title: "Lambda cold starts", Type: "blog", Visibility: visibility.Public, Tags: []string{"lambda", "aws"}, PublishDate: dbtest.Date(2025, 1, 10), URLs: []string{"https://b.example/1"}},
		dbtest.Item{ID: "pub-video", Owner: "u2", Title: "Intro to DynamoDB", Type: "video", Visibility: visibility.Public, Tags: []string{"dynamodb"}, PublishDate: dbtest.Date(2025, 2, 10)},
		dbtest.Item{ID: "community", Owner: "u2", Title: "Lambda for builders", Type: "blog", Visibility: visibility.AWSCommunity, Tags: []string{"lambda"}, PublishDate: dbtest.Date(2025, 3, 10)},
		dbtest.Item{ID: "aws-only", Owner: "u2", Title: "Internal Lambda roadmap", Type: "talk", Visibility: visibility.AWSOnly, Tags: []string{"lambda"}, PublishDate: dbtest.Date(2025, 4, 10)},
		dbtest.Item{ID: "private", Owner: "u3", Title: "Lambda notes", Type: "blog", Visibility: visibility.Private, Tags: []string{"lambda"}, PublishDate: dbtest.Date(2025, 5, 10)},
	)
	return pool
}

func ids(page db.SearchPage) []string {
	out := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, item.Content.ID)
	}
	return out
}

func TestSearchAnonymousSeesOnlyPublic(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	page, err := pool.SearchContent(context.Background(), db.SearchParams{
		Scope: visibility.ScopeFor(visibility.Viewer{}),
		Tags:  []string{"lambda"},
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	got := ids(page)
	if len(got) != 1 || got[0] != "pub-blog" || page.Total != 1 {
		t.Fatalf("expected only public lambda item, got %#v total=%d", got, page.Total)
	}
	if len(page.Items[0].Content.URLs) != 1 {
		t.Fatalf("expected urls attached to results")
	}
}

func TestSearchDefaultOrderIsNewestFirst(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	page, err := pool.SearchContent(context.Background(), db.SearchParams{
		Scope: visibility.ScopeFor(visibility.Viewer{UserID: "emp", IsAWSEmployee: true}),
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	got := ids(page)
	want := []string{"aws-only", "community", "pub-video", "pub-blog"}
	if len(got) != len(want) {
		t.Fatalf("unexpected results: %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %#v", got)
		}
	}
}

func TestSearchOwnerSeesOwnPrivate(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	page, err := pool.SearchContent(context.Background(), db.SearchParams{
		Scope:   visibility.ScopeFor(visibility.Viewer{UserID: "u3"}),
		Keyword: "notes",
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if got := ids(page); len(got) != 1 || got[0] != "private" {
		t.Fatalf("expected owner to find private item, got %#v", got)
	}
}

func TestSearchFiltersCompose(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	admin := visibility.ScopeFor(visibility.Viewer{UserID: "admin", IsAdmin: true})
	ctx := context.Background()

	page, err := pool.SearchContent(ctx, db.SearchParams{
		Scope:        admin,
		ContentTypes: []string{"BLOG"},
		Tags:         []string{"lambda", "unknown"},
		From:         dbtest.Date(2025, 1, 1),
		To:           dbtest.Date(2025, 3, 10),
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if got := ids(page); len(got) != 2 || got[0] != "community" || got[1] != "pub-blog" {
		t.Fatalf("unexpected filtered results: %#v", got)
	}

	page, err = pool.SearchContent(ctx, db.SearchParams{
		Scope:        admin,
		Visibilities: []visibility.Level{visibility.AWSOnly},
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if got := ids(page); len(got) != 1 || got[0] != "aws-only" {
		t.Fatalf("unexpected visibility subset results: %#v", got)
	}

	// An explicit subset never widens the viewer's scope.
	page, err = pool.SearchContent(ctx, db.SearchParams{
		Scope:        visibility.ScopeFor(visibility.Viewer{}),
		Visibilities: []visibility.Level{visibility.AWSOnly},
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("anonymous viewer must not reach aws_only content, got %#v", ids(page))
	}
}

func TestSearchInvertedDateRangeIsEmpty(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	page, err := pool.SearchContent(context.Background(), db.SearchParams{
		Scope: visibility.ScopeFor(visibility.Viewer{}),
		From:  dbtest.Date(2025, 6, 1),
		To:    dbtest.Date(2025, 1, 1),
	})
	if err != nil {
		t.Fatalf("inverted range must not error: %v", err)
	}
	if page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("expected no rows, got %#v", ids(page))
	}
}

func TestSearchPagination(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	page, err := pool.SearchContent(context.Background(), db.SearchParams{
		Scope:  visibility.ScopeFor(visibility.Viewer{UserID: "admin", IsAdmin: true}),
		Limit:  2,
		Offset: 2,
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if page.Total != 4 || page.Limit != 2 || page.Offset != 2 {
		t.Fatalf("unexpected page metadata: %#v", page)
	}
	if got := ids(page); len(got) != 2 || got[0] != "pub-video" || got[1] != "pub-blog" {
		t.Fatalf("unexpected page: %#v", got)
	}
}

func TestSearchInGivenIDOrder(t *testing.T) {
	t.Parallel()

	pool := seedSearchFixtures(t)
	page, err := pool.SearchContent(context.Background(), db.SearchParams{
		Scope: visibility.ScopeFor(visibility.Viewer{}),
		IDs:   []string{"community", "pub-video", "pub-blog"},
		Order: db.OrderGivenIDs,
	})
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if got := ids(page); len(got) != 2 || got[0] != "pub-video" || got[1] != "pub-blog" {
		t.Fatalf("expected index order with invisible ids dropped, got %#v", got)
	}
	if page.Items[0].Score <= page.Items[1].Score {
		t.Fatalf("expected descending scores, got %#v", page.Items)
	}
}

func TestSearchContentByVectorRanksBySimilarity(t *testing.T) {
	t.Parallel()

	pool := dbtest.Pool(t)
	dbtest.Seed(t, pool, base,
		dbtest.Item{ID: "near", Owner: "u1", Title: "Near", Embedding: []float64{1, 0.1, 0}},
		dbtest.Item{ID: "far", Owner: "u1", Title: "Far", Embedding: []float64{0, 0, 1}},
		dbtest.Item{ID: "hidden", Owner: "u1", Title: "Hidden", Visibility: visibility.Private, Embedding: []float64{1, 0, 0}},
		dbtest.Item{ID: "none", Owner: "u1", Title: "No embedding"},
	)

	page, err := pool.SearchContentByVector(context.Background(), db.SearchParams{
		Scope: visibility.ScopeFor(visibility.Viewer{UserID: "u2"}),
	}, []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("SearchContentByVector: %v", err)
	}
	if got := ids(page); len(got) != 2 || got[0] != "near" || got[1] != "far" {
		t.Fatalf("unexpected vector ranking: %#v", got)
	}
	if page.Items[0].Score <= page.Items[1].Score {
		t.Fatalf("expected descending similarity, got %#v", page.Items)
	}
}
