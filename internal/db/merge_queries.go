package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type MergeHistoryRecord struct {
	ID               string         `json:"id"`
	PrimaryContentID string         `json:"primary_content_id"`
	MergedContentIDs []string       `json:"merged_content_ids"`
	MergedBy         string         `json:"merged_by"`
	MergeReason      string         `json:"merge_reason"`
	MergedMetadata   map[string]any `json:"merged_metadata"`
	CanUndo          bool           `json:"can_undo"`
	UndoDeadline     time.Time      `json:"undo_deadline"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// MergedFields is the folded state written onto the surviving row.
type MergedFields struct {
	Title       string
	Description string
	PublishDate *time.Time
	Tags        []string
}

// LockContentRows takes row locks on postgres so concurrent merges over
// overlapping ids serialize. Other dialects already serialize writers.
func LockContentRows(ctx context.Context, q Querier, ids []string) error {
	if q.Dialect() != DialectPostgres {
		return nil
	}
	cleaned := dedupeTrimmed(ids)
	if len(cleaned) == 0 {
		return nil
	}
	const query = `
SELECT id
FROM content
WHERE id IN ?
ORDER BY id
FOR UPDATE
`
	rows, err := q.Query(ctx, query, cleaned)
	if err != nil {
		return fmt.Errorf("lock content rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock content rows: %w", err)
	}
	return nil
}

// LoadLiveContent is the transactional form of FindByIDs.
func LoadLiveContent(ctx context.Context, q Querier, ids []string) ([]ContentItem, error) {
	return findContentByIDs(ctx, q, ids, false)
}

func ApplyMergedFields(ctx context.Context, q Querier, contentID string, fields MergedFields, now time.Time) error {
	tags, err := encodeStringList(fields.Tags)
	if err != nil {
		return fmt.Errorf("encode merged tags: %w", err)
	}
	const query = `
UPDATE content
SET
	title = ?,
	description = ?,
	publish_date = ?,
	tags = ?,
	version = version + 1,
	updated_at = ?
WHERE id = ?
  AND deleted_at IS NULL
`
	tag, err := q.Exec(ctx, query,
		fields.Title,
		fields.Description,
		nullableTime(fields.PublishDate),
		tags,
		now.UTC(),
		contentID,
	)
	if err != nil {
		return fmt.Errorf("update merged content: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update merged content %s: %d rows changed", contentID, tag.RowsAffected())
	}
	return nil
}

// SoftDeleteContentRows marks live rows deleted and reports how many changed.
func SoftDeleteContentRows(ctx context.Context, q Querier, ids []string, now time.Time) (int64, error) {
	cleaned := dedupeTrimmed(ids)
	if len(cleaned) == 0 {
		return 0, nil
	}
	const query = `
UPDATE content
SET
	deleted_at = ?,
	updated_at = ?,
	version = version + 1
WHERE id IN ?
  AND deleted_at IS NULL
`
	tag, err := q.Exec(ctx, query, now.UTC(), now.UTC(), cleaned)
	if err != nil {
		return 0, fmt.Errorf("soft delete content: %w", err)
	}
	return tag.RowsAffected(), nil
}

func InsertMergeHistory(ctx context.Context, q Querier, rec MergeHistoryRecord) error {
	mergedIDs, err := encodeStringList(rec.MergedContentIDs)
	if err != nil {
		return fmt.Errorf("encode merged ids: %w", err)
	}
	metadata := rec.MergedMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode merge metadata: %w", err)
	}

	const query = `
INSERT INTO content_merge_history (
	id, primary_content_id, merged_content_ids, merged_by, merge_reason,
	merged_metadata, can_undo, undo_deadline, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	if _, err := q.Exec(ctx, query,
		rec.ID,
		rec.PrimaryContentID,
		mergedIDs,
		rec.MergedBy,
		rec.MergeReason,
		datatypes.JSON(rawMetadata),
		rec.CanUndo,
		rec.UndoDeadline.UTC(),
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert merge history: %w", err)
	}
	return nil
}

const mergeHistoryColumns = `
	h.id,
	h.primary_content_id,
	h.merged_content_ids,
	h.merged_by,
	h.merge_reason,
	h.merged_metadata,
	h.can_undo,
	h.undo_deadline,
	h.created_at,
	h.updated_at`

func scanMergeHistory(row rowScanner) (MergeHistoryRecord, error) {
	var (
		rec      MergeHistoryRecord
		mergedID datatypes.JSON
		metadata datatypes.JSON
	)
	if err := row.Scan(
		&rec.ID,
		&rec.PrimaryContentID,
		&mergedID,
		&rec.MergedBy,
		&rec.MergeReason,
		&metadata,
		&rec.CanUndo,
		&rec.UndoDeadline,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return MergeHistoryRecord{}, err
	}
	ids, err := decodeStringList(mergedID)
	if err != nil {
		return MergeHistoryRecord{}, fmt.Errorf("decode merged ids for %s: %w", rec.ID, err)
	}
	rec.MergedContentIDs = ids
	rec.MergedMetadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.MergedMetadata); err != nil {
			return MergeHistoryRecord{}, fmt.Errorf("decode merge metadata for %s: %w", rec.ID, err)
		}
	}
	rec.UndoDeadline = rec.UndoDeadline.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// LoadMergeHistory returns ErrNoRows when the record does not exist. With
// forUpdate it locks the row on postgres.
func LoadMergeHistory(ctx context.Context, q Querier, id string, forUpdate bool) (*MergeHistoryRecord, error) {
	query := `SELECT ` + mergeHistoryColumns + `
FROM content_merge_history h
WHERE h.id = ?`
	if forUpdate && q.Dialect() == DialectPostgres {
		query += `
FOR UPDATE`
	}
	rec, err := scanMergeHistory(q.QueryRow(ctx, query, strings.TrimSpace(id)))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("load merge history: %w", err)
	}
	return &rec, nil
}

// CloseMergeUndo flips can_undo off. It reports false when the record was
// already closed.
func CloseMergeUndo(ctx context.Context, q Querier, id string, now time.Time) (bool, error) {
	const query = `
UPDATE content_merge_history
SET
	can_undo = ?,
	updated_at = ?
WHERE id = ?
  AND can_undo = ?
`
	tag, err := q.Exec(ctx, query, false, now.UTC(), strings.TrimSpace(id), true)
	if err != nil {
		return false, fmt.Errorf("close merge undo: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Pool) GetMergeHistory(ctx context.Context, id string) (*MergeHistoryRecord, error) {
	return LoadMergeHistory(ctx, p, id, false)
}

// ListMergeHistoryForContent returns records where contentID survived or
// was absorbed, newest first.
func (p *Pool) ListMergeHistoryForContent(ctx context.Context, contentID string) ([]MergeHistoryRecord, error) {
	trimmed := strings.TrimSpace(contentID)
	if trimmed == "" {
		return nil, fmt.Errorf("content id is required")
	}
	quoted, err := json.Marshal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("encode content id: %w", err)
	}

	query := `SELECT ` + mergeHistoryColumns + `
FROM content_merge_history h
WHERE h.primary_content_id = ?
   OR CAST(h.merged_content_ids AS TEXT) LIKE ?
ORDER BY h.created_at DESC, h.id DESC`
	rows, err := p.Query(ctx, query, trimmed, "%"+string(quoted)+"%")
	if err != nil {
		return nil, fmt.Errorf("list merge history: %w", err)
	}
	defer rows.Close()

	out := make([]MergeHistoryRecord, 0)
	for rows.Next() {
		rec, err := scanMergeHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge history: %w", err)
		}
		// LIKE treats '_' as a wildcard; confirm the match exactly.
		if rec.PrimaryContentID == trimmed || containsString(rec.MergedContentIDs, trimmed) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge history: %w", err)
	}
	return out, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
