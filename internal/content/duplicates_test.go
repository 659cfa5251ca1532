package content

import (
	"context"
	"math"
	"testing"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db/dbtest"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func item(id, title string, tags, urls []string) db.ContentItem {
	out := db.ContentItem{ID: id, Title: title, Tags: tags}
	for _, u := range urls {
		out.URLs = append(out.URLs, db.ContentURL{URL: u})
	}
	return out
}

func TestTitleSimilarity(t *testing.T) {
	t.Parallel()

	if got := TitleSimilarity("Intro to Lambda", "intro  to lambda"); got != 1 {
		t.Fatalf("expected folded titles to match exactly, got %f", got)
	}
	if got := TitleSimilarity("abc", "xyz"); got != 0 {
		t.Fatalf("expected disjoint titles to score 0, got %f", got)
	}
	if got := TitleSimilarity("", "abc"); got != 0 {
		t.Fatalf("expected empty title to score 0, got %f", got)
	}
	got := TitleSimilarity("abcd", "abce")
	// {abc, bcd} vs {abc, bce}: one shared of three.
	if math.Abs(got-1.0/3.0) > 1e-9 {
		t.Fatalf("expected 1/3, got %f", got)
	}
}

func TestSetAndTagSimilarity(t *testing.T) {
	t.Parallel()

	if got := SetSimilarity([]string{"a", "b"}, []string{"b", "c"}); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Fatalf("expected 1/3, got %f", got)
	}
	if got := SetSimilarity([]string{"A"}, []string{"a"}); got != 0 {
		t.Fatalf("urls compare exactly, got %f", got)
	}
	if got := TagSimilarity([]string{"AWS"}, []string{"aws"}); got != 1 {
		t.Fatalf("tags compare case-insensitively, got %f", got)
	}
	if got := SetSimilarity(nil, nil); got != 0 {
		t.Fatalf("two empty sets score 0, got %f", got)
	}
}

func TestFindDuplicatesThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	items := []db.ContentItem{
		item("a", "serverless patterns", nil, nil),
		item("b", "serverless pattern", nil, nil),
	}
	score := TitleSimilarity(items[0].Title, items[1].Title)
	if score <= 0 || score >= 1 {
		t.Fatalf("fixture should score strictly between 0 and 1, got %f", score)
	}

	matches, err := FindDuplicates(items, DuplicateOptions{Threshold: score, Fields: []Field{FieldTitle}})
	if err != nil {
		t.Fatalf("find duplicates: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected a match at exactly the threshold, got %d", len(matches))
	}
	if matches[0].Content.ID != "b" || matches[0].DuplicateOfID != "a" {
		t.Fatalf("unexpected pair %+v", matches[0])
	}

	above := math.Nextafter(score, 1)
	matches, err = FindDuplicates(items, DuplicateOptions{Threshold: above, Fields: []Field{FieldTitle}})
	if err != nil {
		t.Fatalf("find duplicates: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no match just above the score, got %d", len(matches))
	}
}

func TestFindDuplicatesAveragesMatchedFieldsOnly(t *testing.T) {
	t.Parallel()

	items := []db.ContentItem{
		item("a", "Intro to Lambda", []string{"aws", "lambda"}, []string{"https://x.example"}),
		item("b", "Intro to Lambda", []string{"aws", "lambda"}, []string{"https://y.example"}),
	}
	matches, err := FindDuplicates(items, DuplicateOptions{Threshold: 0.8})
	if err != nil {
		t.Fatalf("find duplicates: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	match := matches[0]
	if match.Similarity != 1 {
		t.Fatalf("unmatched url field must not drag the average down, got %f", match.Similarity)
	}
	if len(match.MatchedFields) != 2 || match.MatchedFields[0] != FieldTitle || match.MatchedFields[1] != FieldTags {
		t.Fatalf("unexpected matched fields %v", match.MatchedFields)
	}
	if match.FieldScores[FieldURLs] != 0 {
		t.Fatalf("expected url score to be reported, got %v", match.FieldScores)
	}
}

func TestFindDuplicatesWithTargetAndOrdering(t *testing.T) {
	t.Parallel()

	items := []db.ContentItem{
		item("a", "x", []string{"go", "db", "sql"}, nil),
		item("b", "y", []string{"go", "db"}, nil),
		item("c", "z", []string{"go", "db", "sql"}, nil),
		item("d", "w", []string{"rust"}, nil),
	}
	matches, err := FindDuplicates(items, DuplicateOptions{Threshold: 0.5, Fields: []Field{FieldTags}, TargetContentID: " a "})
	if err != nil {
		t.Fatalf("find duplicates: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected two matches, got %d", len(matches))
	}
	if matches[0].Content.ID != "c" || matches[1].Content.ID != "b" {
		t.Fatalf("expected descending similarity order, got %s then %s", matches[0].Content.ID, matches[1].Content.ID)
	}
	for _, match := range matches {
		if match.DuplicateOfID != "a" {
			t.Fatalf("expected every match to reference the target, got %s", match.DuplicateOfID)
		}
	}

	_, err = FindDuplicates(items, DuplicateOptions{Threshold: 0.5, TargetContentID: "nope"})
	expectKind(t, err, KindNotFound)
}

func TestFindDuplicatesEdgeCases(t *testing.T) {
	t.Parallel()

	matches, err := FindDuplicates([]db.ContentItem{item("a", "solo", nil, nil)}, DuplicateOptions{Threshold: 0.5})
	if err != nil || len(matches) != 0 {
		t.Fatalf("expected empty result for a single item, got %v (%v)", matches, err)
	}

	for _, threshold := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := FindDuplicates(nil, DuplicateOptions{Threshold: threshold})
		expectKind(t, err, KindValidation)
	}

	_, err = FindDuplicates(nil, DuplicateOptions{Threshold: 0.5, Fields: []Field{"body"}})
	expectKind(t, err, KindValidation)
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	fields, err := ParseFields(" Title, urls ,")
	if err != nil {
		t.Fatalf("parse fields: %v", err)
	}
	if len(fields) != 2 || fields[0] != FieldTitle || fields[1] != FieldURLs {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields, err := ParseFields(""); err != nil || fields != nil {
		t.Fatalf("expected nil for empty input, got %v (%v)", fields, err)
	}
	if _, err := ParseFields("title,body"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceFindDuplicatesScansOwnLibrary(t *testing.T) {
	t.Parallel()

	svc, pool := newTestService(t, Options{})
	dbtest.Seed(t, pool, base,
		dbtest.Item{Owner: "u1", Title: "Intro to Lambda", Visibility: visibility.Private},
		dbtest.Item{Owner: "u1", Title: "Intro to Lambda"},
		dbtest.Item{Owner: "u2", Title: "Intro to Lambda"},
	)
	ctx := context.Background()

	matches, err := svc.FindDuplicates(ctx, user("u1"), DuplicateOptions{Threshold: 0.9, Fields: []Field{FieldTitle}})
	if err != nil {
		t.Fatalf("find duplicates: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one pair inside u1's library, got %d", len(matches))
	}
	if matches[0].Content.UserID != "u1" {
		t.Fatalf("expected only u1 content, got owner %s", matches[0].Content.UserID)
	}

	_, err = svc.FindDuplicates(ctx, visibility.Viewer{}, DuplicateOptions{Threshold: 0.9})
	expectKind(t, err, KindPermissionDenied)
}
