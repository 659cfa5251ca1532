package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

// Filter is one condition of a content search.
type Filter interface {
	// SQL returns the fragment, using ? placeholders.
	SQL() string
	Args() []any
	// Valid reports whether the filter should be applied at all.
	Valid() bool
}

func visibilityPredicate(scope visibility.Scope) (string, []any) {
	allowed := visibility.Strings(scope.Allowed)
	if len(allowed) == 0 {
		allowed = []string{string(visibility.Public)}
	}
	if scope.ViewerID == "" {
		return "c.visibility IN ?", []any{allowed}
	}
	return "(c.user_id = ? OR c.visibility IN ?)", []any{scope.ViewerID, allowed}
}

// VisibilityScopeFilter is the base predicate: owned OR allowed level.
type VisibilityScopeFilter struct {
	Scope visibility.Scope
}

func (f *VisibilityScopeFilter) Valid() bool { return true }

func (f *VisibilityScopeFilter) SQL() string {
	fragment, _ := visibilityPredicate(f.Scope)
	return fragment
}

func (f *VisibilityScopeFilter) Args() []any {
	_, args := visibilityPredicate(f.Scope)
	return args
}

// VisibilitySubsetFilter narrows results to explicitly requested levels.
type VisibilitySubsetFilter struct {
	Levels []visibility.Level
}

func (f *VisibilitySubsetFilter) Valid() bool {
	if len(f.Levels) == 0 {
		return false
	}
	for _, level := range f.Levels {
		if !level.Valid() {
			return false
		}
	}
	return true
}

func (f *VisibilitySubsetFilter) SQL() string { return "c.visibility IN ?" }

func (f *VisibilitySubsetFilter) Args() []any {
	return []any{visibility.Strings(f.Levels)}
}

type ContentTypeFilter struct {
	Types []string
}

func (f *ContentTypeFilter) Valid() bool {
	return len(f.normalized()) > 0
}

func (f *ContentTypeFilter) normalized() []string {
	lowered := make([]string, 0, len(f.Types))
	for _, t := range f.Types {
		lowered = append(lowered, strings.ToLower(t))
	}
	return dedupeTrimmed(lowered)
}

func (f *ContentTypeFilter) SQL() string { return "c.content_type IN ?" }

func (f *ContentTypeFilter) Args() []any {
	return []any{f.normalized()}
}

// TagsFilter matches content carrying any of the tags.
type TagsFilter struct {
	Tags    []string
	Dialect string
}

func (f *TagsFilter) Valid() bool {
	return len(dedupeTrimmed(f.Tags)) > 0
}

func (f *TagsFilter) SQL() string {
	if f.Dialect == DialectPostgres {
		return "EXISTS (SELECT 1 FROM jsonb_array_elements_text(c.tags) AS t(tag) WHERE t.tag IN ?)"
	}
	return "EXISTS (SELECT 1 FROM json_each(c.tags) AS t WHERE t.value IN ?)"
}

func (f *TagsFilter) Args() []any {
	return []any{dedupeTrimmed(f.Tags)}
}

// DateRangeFilter bounds publish_date inclusively. An inverted range
// matches nothing rather than failing.
type DateRangeFilter struct {
	From *time.Time
	To   *time.Time
}

func (f *DateRangeFilter) Valid() bool {
	return f.From != nil || f.To != nil
}

func (f *DateRangeFilter) Inverted() bool {
	return f.From != nil && f.To != nil && f.From.After(*f.To)
}

func (f *DateRangeFilter) SQL() string {
	if f.Inverted() {
		return "1 = 0"
	}
	parts := make([]string, 0, 2)
	if f.From != nil {
		parts = append(parts, "c.publish_date >= ?")
	}
	if f.To != nil {
		parts = append(parts, "c.publish_date <= ?")
	}
	return strings.Join(parts, " AND ")
}

func (f *DateRangeFilter) Args() []any {
	if f.Inverted() {
		return nil
	}
	args := make([]any, 0, 2)
	if f.From != nil {
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		args = append(args, f.To.UTC())
	}
	return args
}

// KeywordFilter uses the full-text index on postgres and a case-insensitive
// substring match per term elsewhere.
type KeywordFilter struct {
	Query   string
	Dialect string
}

func (f *KeywordFilter) terms() []string {
	return strings.Fields(strings.ToLower(f.Query))
}

func (f *KeywordFilter) Valid() bool {
	return len(f.terms()) > 0
}

const fullTextDocument = "to_tsvector('english', coalesce(c.title, '') || ' ' || coalesce(c.description, ''))"

func (f *KeywordFilter) SQL() string {
	if f.Dialect == DialectPostgres {
		return fullTextDocument + " @@ plainto_tsquery('english', ?)"
	}
	terms := f.terms()
	parts := make([]string, 0, len(terms))
	for range terms {
		parts = append(parts, "(LOWER(c.title) LIKE ? OR LOWER(c.description) LIKE ?)")
	}
	return strings.Join(parts, " AND ")
}

func (f *KeywordFilter) Args() []any {
	if f.Dialect == DialectPostgres {
		return []any{strings.TrimSpace(f.Query)}
	}
	terms := f.terms()
	args := make([]any, 0, len(terms)*2)
	for _, term := range terms {
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	return args
}

type IDsFilter struct {
	IDs []string
}

func (f *IDsFilter) Valid() bool { return f.IDs != nil }

func (f *IDsFilter) SQL() string {
	if len(dedupeTrimmed(f.IDs)) == 0 {
		return "1 = 0"
	}
	return "c.id IN ?"
}

func (f *IDsFilter) Args() []any {
	ids := dedupeTrimmed(f.IDs)
	if len(ids) == 0 {
		return nil
	}
	return []any{ids}
}

// FilterBuilder collects valid filters and joins them with AND.
type FilterBuilder struct {
	dialect string
	filters []Filter
}

func NewFilterBuilder(dialect string) *FilterBuilder {
	return &FilterBuilder{dialect: dialect, filters: make([]Filter, 0, 8)}
}

func (fb *FilterBuilder) add(filter Filter) *FilterBuilder {
	if filter.Valid() {
		fb.filters = append(fb.filters, filter)
	}
	return fb
}

func (fb *FilterBuilder) Scope(scope visibility.Scope) *FilterBuilder {
	return fb.add(&VisibilityScopeFilter{Scope: scope})
}

func (fb *FilterBuilder) Visibilities(levels ...visibility.Level) *FilterBuilder {
	return fb.add(&VisibilitySubsetFilter{Levels: levels})
}

func (fb *FilterBuilder) ContentTypes(types ...string) *FilterBuilder {
	return fb.add(&ContentTypeFilter{Types: types})
}

func (fb *FilterBuilder) Tags(tags ...string) *FilterBuilder {
	return fb.add(&TagsFilter{Tags: tags, Dialect: fb.dialect})
}

func (fb *FilterBuilder) DateRange(from, to *time.Time) *FilterBuilder {
	return fb.add(&DateRangeFilter{From: from, To: to})
}

func (fb *FilterBuilder) Keyword(query string) *FilterBuilder {
	return fb.add(&KeywordFilter{Query: query, Dialect: fb.dialect})
}

// IDs restricts to a candidate set. A non-nil empty slice matches nothing.
func (fb *FilterBuilder) IDs(ids []string) *FilterBuilder {
	return fb.add(&IDsFilter{IDs: ids})
}

func (fb *FilterBuilder) Filters() []Filter {
	return fb.filters
}

// Build returns the WHERE body, always excluding soft-deleted rows.
func (fb *FilterBuilder) Build() (string, []any) {
	parts := []string{"c.deleted_at IS NULL"}
	args := make([]any, 0, len(fb.filters)*2)
	for _, filter := range fb.filters {
		fragment := strings.TrimSpace(filter.SQL())
		if fragment == "" {
			continue
		}
		parts = append(parts, fragment)
		args = append(args, filter.Args()...)
	}
	return strings.Join(parts, "\n  AND "), args
}

type SearchOrder string

const (
	OrderCreatedDesc SearchOrder = "created_desc"
	OrderRank        SearchOrder = "rank"
	// OrderGivenIDs keeps the order of SearchParams.IDs, e.g. a search
	// index ranking.
	OrderGivenIDs SearchOrder = "ids"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	vectorCandidateCap = 5000
)

type SearchParams struct {
	Scope        visibility.Scope
	ContentTypes []string
	Tags         []string
	From         *time.Time
	To           *time.Time
	Visibilities []visibility.Level
	Keyword      string
	IDs          []string
	Order        SearchOrder
	Limit        int
	Offset       int
}

func (p SearchParams) normalizedPage() (int, int) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (p SearchParams) builder(dialect string) *FilterBuilder {
	fb := NewFilterBuilder(dialect).
		Scope(p.Scope).
		ContentTypes(p.ContentTypes...).
		Tags(p.Tags...).
		DateRange(p.From, p.To).
		Visibilities(p.Visibilities...).
		Keyword(p.Keyword)
	if p.IDs != nil {
		fb.IDs(p.IDs)
	}
	return fb
}

type ScoredContent struct {
	Content ContentItem `json:"content"`
	Score   float64     `json:"score"`
}

type SearchPage struct {
	Items  []ScoredContent `json:"items"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// SearchContent runs a visibility-filtered, paginated query. Every result
// carries its URLs.
func (p *Pool) SearchContent(ctx context.Context, params SearchParams) (SearchPage, error) {
	dialect := p.Dialect()
	limit, offset := params.normalizedPage()
	where, args := params.builder(dialect).Build()

	page := SearchPage{Items: []ScoredContent{}, Limit: limit, Offset: offset}

	if params.Order == OrderGivenIDs {
		return p.searchInGivenOrder(ctx, params, where, args, page)
	}

	countQuery := `SELECT COUNT(*) FROM content c WHERE ` + where
	if err := p.QueryRow(ctx, countQuery, args...).Scan(&page.Total); err != nil {
		return SearchPage{}, fmt.Errorf("count content search: %w", err)
	}
	if page.Total == 0 {
		return page, nil
	}

	rankExpr := "0.0"
	orderBy := "c.created_at DESC, c.id DESC"
	selectArgs := []any{}
	if params.Order == OrderRank && strings.TrimSpace(params.Keyword) != "" && dialect == DialectPostgres {
		rankExpr = "ts_rank(" + fullTextDocument + ", plainto_tsquery('english', ?))"
		selectArgs = append(selectArgs, strings.TrimSpace(params.Keyword))
		orderBy = "score DESC, c.created_at DESC, c.id DESC"
	}

	query := `SELECT ` + contentColumns + `,
	` + rankExpr + ` AS score
FROM content c
WHERE ` + where + `
ORDER BY ` + orderBy + `
LIMIT ? OFFSET ?`
	allArgs := append(append(selectArgs, args...), limit, offset)

	items, err := p.queryScored(ctx, query, allArgs...)
	if err != nil {
		return SearchPage{}, err
	}
	page.Items = items
	return page, nil
}

func (p *Pool) searchInGivenOrder(ctx context.Context, params SearchParams, where string, args []any, page SearchPage) (SearchPage, error) {
	query := `SELECT ` + contentColumns + `,
	0.0 AS score
FROM content c
WHERE ` + where
	items, err := p.queryScored(ctx, query, args...)
	if err != nil {
		return SearchPage{}, err
	}

	position := make(map[string]int, len(params.IDs))
	for i, id := range params.IDs {
		if _, ok := position[id]; !ok {
			position[id] = i
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return position[items[i].Content.ID] < position[items[j].Content.ID]
	})
	for i := range items {
		// Higher is better, mirroring rank ordering.
		items[i].Score = float64(len(params.IDs) - position[items[i].Content.ID])
	}

	page.Total = int64(len(items))
	page.Items = paginate(items, page.Limit, page.Offset)
	return page, nil
}

func (p *Pool) queryScored(ctx context.Context, query string, args ...any) ([]ScoredContent, error) {
	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	items := make([]ScoredContent, 0)
	contents := make([]ContentItem, 0)
	for rows.Next() {
		var score float64
		item, err := scanContent(rows, &score)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		contents = append(contents, item)
		items = append(items, ScoredContent{Score: score})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	rows.Close()

	if err := attachContentURLs(ctx, p, contents); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Content = contents[i]
	}
	return items, nil
}

// SearchContentByVector orders visible content by cosine similarity to vec.
// With pgvector the database ranks; otherwise candidates are ranked here.
func (p *Pool) SearchContentByVector(ctx context.Context, params SearchParams, vec []float64) (SearchPage, error) {
	if len(vec) == 0 {
		return SearchPage{}, fmt.Errorf("query vector is empty")
	}
	limit, offset := params.normalizedPage()
	params.Keyword = ""
	where, args := params.builder(p.Dialect()).Build()
	where += "\n  AND c.embedding IS NOT NULL"
	page := SearchPage{Items: []ScoredContent{}, Limit: limit, Offset: offset}

	if p.Dialect() == DialectPostgres && p.HasVectorExtension() {
		literal := VectorLiteral(vec)
		countQuery := `SELECT COUNT(*) FROM content c WHERE ` + where
		if err := p.QueryRow(ctx, countQuery, args...).Scan(&page.Total); err != nil {
			return SearchPage{}, fmt.Errorf("count vector search: %w", err)
		}
		query := `SELECT ` + contentColumns + `,
	1 - (c.embedding::vector <=> ?::vector) AS score
FROM content c
WHERE ` + where + `
ORDER BY c.embedding::vector <=> ?::vector, c.id
LIMIT ? OFFSET ?`
		allArgs := append(append([]any{literal}, args...), literal, limit, offset)
		items, err := p.queryScored(ctx, query, allArgs...)
		if err != nil {
			return SearchPage{}, err
		}
		page.Items = items
		return page, nil
	}

	query := `SELECT ` + contentColumns + `,
	c.embedding
FROM content c
WHERE ` + where + `
ORDER BY c.created_at DESC, c.id DESC
LIMIT ?`
	rows, err := p.Query(ctx, query, append(args, vectorCandidateCap)...)
	if err != nil {
		return SearchPage{}, fmt.Errorf("vector search candidates: %w", err)
	}
	scored := make([]ScoredContent, 0)
	for rows.Next() {
		var raw sql.NullString
		item, err := scanContent(rows, &raw)
		if err != nil {
			rows.Close()
			return SearchPage{}, fmt.Errorf("scan vector candidate: %w", err)
		}
		candidate, err := ParseVectorLiteral(raw.String)
		if err != nil || len(candidate) != len(vec) {
			continue
		}
		scored = append(scored, ScoredContent{Content: item, Score: CosineSimilarity(vec, candidate)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return SearchPage{}, fmt.Errorf("iterate vector candidates: %w", err)
	}
	rows.Close()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	page.Total = int64(len(scored))
	page.Items = paginate(scored, limit, offset)

	contents := make([]ContentItem, len(page.Items))
	for i := range page.Items {
		contents[i] = page.Items[i].Content
	}
	if err := attachContentURLs(ctx, p, contents); err != nil {
		return SearchPage{}, err
	}
	for i := range page.Items {
		page.Items[i].Content = contents[i]
	}
	return page, nil
}

func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func paginate(items []ScoredContent, limit, offset int) []ScoredContent {
	if offset >= len(items) {
		return []ScoredContent{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
