package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

type ContentURL struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type ContentItem struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id,omitempty"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	ContentType    string           `json:"content_type"`
	Visibility     visibility.Level `json:"visibility"`
	Tags           []string         `json:"tags"`
	OriginalAuthor string           `json:"original_author,omitempty"`
	PublishDate    *time.Time       `json:"publish_date,omitempty"`
	CaptureDate    time.Time        `json:"capture_date"`
	IsClaimed      bool             `json:"is_claimed"`
	Version        int64            `json:"version"`
	DeletedAt      *time.Time       `json:"deleted_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	URLs           []ContentURL     `json:"urls"`
}

// URLStrings returns the attached URLs in stored order.
func (c ContentItem) URLStrings() []string {
	out := make([]string, 0, len(c.URLs))
	for _, u := range c.URLs {
		out = append(out, u.URL)
	}
	return out
}

type NewContent struct {
	ID             string
	UserID         string
	Title          string
	Description    string
	ContentType    string
	Visibility     visibility.Level
	Tags           []string
	OriginalAuthor string
	PublishDate    *time.Time
	CaptureDate    time.Time
	IsClaimed      bool
	URLs           []string
	Embedding      []float64
}

// ContentPatch holds the fields a versioned update may change. Nil fields
// are left untouched.
type ContentPatch struct {
	Title          *string
	Description    *string
	ContentType    *string
	Visibility     *visibility.Level
	Tags           *[]string
	OriginalAuthor *string
	PublishDate    *time.Time
}

func (p ContentPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ContentType == nil && p.Visibility == nil &&
		p.Tags == nil && p.OriginalAuthor == nil && p.PublishDate == nil
}

// VersionConflictError reports an optimistic-lock miss and the version the
// row currently holds.
type VersionConflictError struct {
	ContentID       string
	ExpectedVersion int64
	CurrentVersion  int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("content %s is at version %d, expected %d", e.ContentID, e.CurrentVersion, e.ExpectedVersion)
}

func IsVersionConflict(err error) bool {
	var conflict *VersionConflictError
	return errors.As(err, &conflict)
}

const contentColumns = `
	c.id,
	c.user_id,
	c.title,
	c.description,
	c.content_type,
	c.visibility,
	c.tags,
	c.original_author,
	c.publish_date,
	c.capture_date,
	c.is_claimed,
	c.version,
	c.deleted_at,
	c.created_at,
	c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner, extra ...any) (ContentItem, error) {
	var (
		item        ContentItem
		userID      sql.NullString
		author      sql.NullString
		tags        datatypes.JSON
		level       string
		publishDate sql.NullTime
		deletedAt   sql.NullTime
	)
	dest := []any{
		&item.ID,
		&userID,
		&item.Title,
		&item.Description,
		&item.ContentType,
		&level,
		&tags,
		&author,
		&publishDate,
		&item.CaptureDate,
		&item.IsClaimed,
		&item.Version,
		&deletedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return ContentItem{}, err
	}

	item.UserID = userID.String
	item.OriginalAuthor = author.String
	item.Visibility = visibility.Level(level)
	if publishDate.Valid {
		t := publishDate.Time.UTC()
		item.PublishDate = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		item.DeletedAt = &t
	}
	item.CaptureDate = item.CaptureDate.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()

	decoded, err := decodeStringList(tags)
	if err != nil {
		return ContentItem{}, fmt.Errorf("decode tags for content %s: %w", item.ID, err)
	}
	item.Tags = decoded
	item.URLs = []ContentURL{}
	return item, nil
}

func decodeStringList(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func encodeStringList(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// NormalizeTags trims tags and drops empties and repeats, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	return dedupeTrimmed(tags)
}

// NormalizeURLs trims URLs and drops empties and repeats, keeping first-seen order.
func NormalizeURLs(urls []string) []string {
	return dedupeTrimmed(urls)
}

func dedupeTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// VectorLiteral renders an embedding in pgvector's text form.
func VectorLiteral(vec []float64) string {
	parts := make([]string, 0, len(vec))
	for _, v := range vec {
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func ParseVectorLiteral(raw string) ([]float64, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if strings.TrimSpace(trimmed) == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func nullableString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

// attachContentURLs loads child URL rows for every item in place.
func attachContentURLs(ctx context.Context, q Querier, items []ContentItem) error {
	if len(items) == 0 {
		return nil
	}
	index := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for i := range items {
		index[items[i].ID] = i
		ids = append(ids, items[i].ID)
	}

	const query = `
SELECT content_id, id, url, created_at
FROM content_urls
WHERE content_id IN ?
ORDER BY content_id ASC, position ASC, created_at ASC, id ASC
`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("query content urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contentID string
			u         ContentURL
		)
		if err := rows.Scan(&contentID, &u.ID, &u.URL, &u.CreatedAt); err != nil {
			return fmt.Errorf("scan content url: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		if i, ok := index[contentID]; ok {
			items[i].URLs = append(items[i].URLs, u)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate content urls: %w", err)
	}
	return nil
}

func queryContent(ctx context.Context, q Querier, query string, args ...any) ([]ContentItem, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items := make([]ContentItem, 0)
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	// Close before hydrating so single-connection pools do not deadlock.
	rows.Close()

	if err := attachContentURLs(ctx, q, items); err != nil {
		return nil, err
	}
	return items, nil
}

func findContentByIDs(ctx context.Context, q Querier, ids []string, includeDeleted bool) ([]ContentItem, error) {
	cleaned := dedupeTrimmed(ids)
	if len(cleaned) == 0 {
		return []ContentItem{}, nil
	}

	query := `SELECT ` + contentColumns + `
FROM content c
WHERE c.id IN ?`
	if !includeDeleted {
		query += `
  AND c.deleted_at IS NULL`
	}
	query += `
ORDER BY c.id ASC`

	items, err := queryContent(ctx, q, query, cleaned)
	if err != nil {
		return nil, fmt.Errorf("find content by ids: %w", err)
	}
	return items, nil
}

func findContentByID(ctx context.Context, q Querier, id string, includeDeleted bool) (*ContentItem, error) {
	items, err := findContentByIDs(ctx, q, []string{id}, includeDeleted)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// FindByID returns nil when the row is absent or soft-deleted.
func (p *Pool) FindByID(ctx context.Context, id string) (*ContentItem, error) {
	return findContentByID(ctx, p, id, false)
}

// FindByIDIncludingDeleted is the restore path's read.
func (p *Pool) FindByIDIncludingDeleted(ctx context.Context, id string) (*ContentItem, error) {
	return findContentByID(ctx, p, id, true)
}

// FindByIDs drops missing ids silently; callers compare lengths to find gaps.
func (p *Pool) FindByIDs(ctx context.Context, ids []string) ([]ContentItem, error) {
	return findContentByIDs(ctx, p, ids, false)
}

// FindByURL resolves through content_urls. When several live items share
// the URL the most recently created wins.
func (p *Pool) FindByURL(ctx context.Context, url string) (*ContentItem, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, fmt.Errorf("url is required")
	}

	query := `SELECT ` + contentColumns + `
FROM content c
JOIN content_urls u ON u.content_id = c.id
WHERE u.url = ?
  AND c.deleted_at IS NULL
ORDER BY c.created_at DESC, c.id DESC
LIMIT 1`
	items, err := queryContent(ctx, p, query, trimmed)
	if err != nil {
		return nil, fmt.Errorf("find content by url: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// FindVisibleByID applies the viewer scope to a single read. Rows the
// viewer cannot see come back as nil, the same as missing rows.
func (p *Pool) FindVisibleByID(ctx context.Context, id string, scope visibility.Scope) (*ContentItem, error) {
	predicate, args := visibilityPredicate(scope)
	query := `SELECT ` + contentColumns + `
FROM content c
WHERE c.id = ?
  AND c.deleted_at IS NULL
  AND ` + predicate
	items, err := queryContent(ctx, p, query, append([]any{strings.TrimSpace(id)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("find visible content: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ListByOwner returns the owner's live content, oldest first.
func (p *Pool) ListByOwner(ctx context.Context, userID string) ([]ContentItem, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, fmt.Errorf("user id is required")
	}
	query := `SELECT ` + contentColumns + `
FROM content c
WHERE c.user_id = ?
  AND c.deleted_at IS NULL
ORDER BY c.created_at ASC, c.id ASC`
	items, err := queryContent(ctx, p, query, trimmed)
	if err != nil {
		return nil, fmt.Errorf("list content by owner: %w", err)
	}
	return items, nil
}

// ListContentPage walks live content in id order for bulk jobs such as
// rebuilding the search index. Pass the last id of the previous page.
func (p *Pool) ListContentPage(ctx context.Context, afterID string, limit int) ([]ContentItem, error) {
	if limit <= 0 {
		limit = MaxSearchLimit
	}
	query := `SELECT ` + contentColumns + `
FROM content c
WHERE c.deleted_at IS NULL
  AND c.id > ?
ORDER BY c.id ASC
LIMIT ?`
	items, err := queryContent(ctx, p, query, strings.TrimSpace(afterID), limit)
	if err != nil {
		return nil, fmt.Errorf("list content page: %w", err)
	}
	return items, nil
}

// CreateContent inserts the row and its de-duplicated URL set in one
// transaction and returns the hydrated record.
func (p *Pool) CreateContent(ctx context.Context, in NewContent, now time.Time) (*ContentItem, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	contentType := strings.ToLower(strings.TrimSpace(in.ContentType))
	if contentType == "" {
		return nil, fmt.Errorf("content type is required")
	}
	level := in.Visibility
	if level == "" {
		level = visibility.Private
	}
	if !level.Valid() {
		return nil, fmt.Errorf("invalid visibility %q", level)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now = now.UTC()
	captureDate := in.CaptureDate.UTC()
	if in.CaptureDate.IsZero() {
		captureDate = now
	}
	tags, err := encodeStringList(NormalizeTags(in.Tags))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	var embedding any
	if len(in.Embedding) > 0 {
		embedding = VectorLiteral(in.Embedding)
	}

	err = p.WithTx(ctx, func(tx Tx) error {
		const q = `
INSERT INTO content (
	id, user_id, title, description, content_type, visibility, tags, original_author,
	publish_date, capture_date, is_claimed, embedding, version, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
`
		if _, err := tx.Exec(ctx, q,
			id,
			nullableString(in.UserID),
			title,
			strings.TrimSpace(in.Description),
			contentType,
			string(level),
			tags,
			nullableString(in.OriginalAuthor),
			nullableTime(in.PublishDate),
			captureDate,
			in.IsClaimed,
			embedding,
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert content: %w", err)
		}

		if _, err := InsertContentURLs(ctx, tx, id, NormalizeURLs(in.URLs), 0, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.FindByID(ctx, id)
}

// InsertContentURLs attaches urls starting at position start. Pairs that
// already exist are skipped, so repeating the call is safe.
func InsertContentURLs(ctx context.Context, q Querier, contentID string, urls []string, start int, now time.Time) (int64, error) {
	const query = `
INSERT INTO content_urls (id, content_id, url, position, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (content_id, url) DO NOTHING
`
	var inserted int64
	for i, u := range urls {
		tag, err := q.Exec(ctx, query, uuid.NewString(), contentID, u, start+i, now.UTC())
		if err != nil {
			return inserted, fmt.Errorf("insert content url %q: %w", u, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// DeleteContent soft-deletes (deleted_at = now) or hard-deletes the row and
// its URLs. It reports false when nothing matched.
func (p *Pool) DeleteContent(ctx context.Context, id string, soft bool, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return false, fmt.Errorf("content id is required")
	}

	if soft {
		const q = `
UPDATE content
SET
	deleted_at = ?,
	updated_at = ?,
	version = version + 1
WHERE id = ?
  AND deleted_at IS NULL
`
		tag, err := p.Exec(ctx, q, now.UTC(), now.UTC(), trimmed)
		if err != nil {
			return false, fmt.Errorf("soft delete content: %w", err)
		}
		return tag.RowsAffected() > 0, nil
	}

	var deleted bool
	err := p.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM content_urls WHERE content_id = ?`, trimmed); err != nil {
			return fmt.Errorf("delete content urls: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM content WHERE id = ?`, trimmed)
		if err != nil {
			return fmt.Errorf("hard delete content: %w", err)
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// RestoreContent clears deleted_at. Rows that are missing or were never
// soft-deleted report false.
func (p *Pool) RestoreContent(ctx context.Context, id string, now time.Time) (bool, error) {
	restored, err := RestoreContentRows(ctx, p, []string{id}, now)
	if err != nil {
		return false, err
	}
	return restored > 0, nil
}

func RestoreContentRows(ctx context.Context, q Querier, ids []string, now time.Time) (int64, error) {
	cleaned := dedupeTrimmed(ids)
	if len(cleaned) == 0 {
		return 0, nil
	}
	const query = `
UPDATE content
SET
	deleted_at = NULL,
	updated_at = ?,
	version = version + 1
WHERE id IN ?
  AND deleted_at IS NOT NULL
`
	tag, err := q.Exec(ctx, query, now.UTC(), cleaned)
	if err != nil {
		return 0, fmt.Errorf("restore content: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimContent assigns the item to newOwnerID. Without force it only
// succeeds on unclaimed rows; a failed precondition returns nil, nil.
func (p *Pool) ClaimContent(ctx context.Context, id, newOwnerID string, force bool, now time.Time) (*ContentItem, error) {
	trimmedID := strings.TrimSpace(id)
	owner := strings.TrimSpace(newOwnerID)
	if trimmedID == "" || owner == "" {
		return nil, fmt.Errorf("content id and owner are required")
	}

	query := `
UPDATE content
SET
	is_claimed = ?,
	user_id = ?,
	version = version + 1,
	updated_at = ?
WHERE id = ?
  AND deleted_at IS NULL`
	args := []any{true, owner, now.UTC(), trimmedID}
	if !force {
		query += `
  AND is_claimed = ?`
		args = append(args, false)
	}

	tag, err := p.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return p.FindByID(ctx, trimmedID)
}

// UpdateContent applies patch when the row is still at expectedVersion.
// A missing row yields ErrNoRows; a stale version yields *VersionConflictError.
func (p *Pool) UpdateContent(ctx context.Context, id string, patch ContentPatch, expectedVersion int64, now time.Time) (*ContentItem, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return nil, fmt.Errorf("content id is required")
	}
	if patch.Empty() {
		return nil, fmt.Errorf("update has no fields")
	}

	sets := make([]string, 0, 8)
	args := make([]any, 0, 12)
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("title cannot be empty")
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, strings.TrimSpace(*patch.Description))
	}
	if patch.ContentType != nil {
		sets = append(sets, "content_type = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(*patch.ContentType)))
	}
	if patch.Visibility != nil {
		if !patch.Visibility.Valid() {
			return nil, fmt.Errorf("invalid visibility %q", *patch.Visibility)
		}
		sets = append(sets, "visibility = ?")
		args = append(args, string(*patch.Visibility))
	}
	if patch.Tags != nil {
		tags, err := encodeStringList(NormalizeTags(*patch.Tags))
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if patch.OriginalAuthor != nil {
		sets = append(sets, "original_author = ?")
		args = append(args, nullableString(*patch.OriginalAuthor))
	}
	if patch.PublishDate != nil {
		sets = append(sets, "publish_date = ?")
		args = append(args, patch.PublishDate.UTC())
	}
	sets = append(sets, "version = version + 1", "updated_at = ?")
	args = append(args, now.UTC(), trimmedID, expectedVersion)

	query := `UPDATE content SET ` + strings.Join(sets, ", ") + `
WHERE id = ?
  AND deleted_at IS NULL
  AND version = ?`
	tag, err := p.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := p.FindByID(ctx, trimmedID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrNoRows
		}
		return nil, &VersionConflictError{
			ContentID:       trimmedID,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  current.Version,
		}
	}
	return p.FindByID(ctx, trimmedID)
}

// SetContentEmbedding stores a derived embedding. It is not a content
// mutation and leaves version alone.
func (p *Pool) SetContentEmbedding(ctx context.Context, id string, vec []float64) error {
	var value any
	if len(vec) > 0 {
		value = VectorLiteral(vec)
	}
	if _, err := p.Exec(ctx, `UPDATE content SET embedding = ? WHERE id = ?`, value, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("store content embedding: %w", err)
	}
	return nil
}
