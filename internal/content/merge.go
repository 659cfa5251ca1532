package content

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

type MergeRequest struct {
	PrimaryID    string
	SecondaryIDs []string
	Reason       string
}

type MergeResult struct {
	Content db.ContentItem        `json:"content"`
	History db.MergeHistoryRecord `json:"merge_history"`
}

// MergeRequestFromContentIDs accepts the "all ids plus primary" form used
// by clients: primaryID must be one of contentIDs, the rest are absorbed.
func MergeRequestFromContentIDs(primaryID string, contentIDs []string, reason string) (MergeRequest, error) {
	primary := strings.TrimSpace(primaryID)
	if primary == "" {
		return MergeRequest{}, validation("primary id is required", nil)
	}
	if len(contentIDs) == 0 {
		return MergeRequest{}, validation("content ids are required", nil)
	}
	found := false
	secondaries := make([]string, 0, len(contentIDs))
	for _, raw := range contentIDs {
		id := strings.TrimSpace(raw)
		if id == primary {
			found = true
			continue
		}
		secondaries = append(secondaries, id)
	}
	if !found {
		return MergeRequest{}, validation("primary id must be one of the content ids", map[string]any{"primary_id": primary})
	}
	return MergeRequest{PrimaryID: primary, SecondaryIDs: secondaries, Reason: reason}, nil
}

func normalizeMergeRequest(req MergeRequest) (MergeRequest, error) {
	primary := strings.TrimSpace(req.PrimaryID)
	if primary == "" {
		return MergeRequest{}, validation("primary id is required", nil)
	}
	if len(req.SecondaryIDs) == 0 {
		return MergeRequest{}, validation("at least one content id to merge is required", nil)
	}
	seen := map[string]struct{}{primary: {}}
	secondaries := make([]string, 0, len(req.SecondaryIDs))
	for _, raw := range req.SecondaryIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return MergeRequest{}, validation("content ids cannot be blank", nil)
		}
		if id == primary {
			return MergeRequest{}, validation("primary id cannot also be merged into itself", map[string]any{"content_id": id})
		}
		if _, ok := seen[id]; ok {
			return MergeRequest{}, validation("duplicate content id", map[string]any{"content_id": id})
		}
		seen[id] = struct{}{}
		secondaries = append(secondaries, id)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultMergeReason
	}
	return MergeRequest{PrimaryID: primary, SecondaryIDs: secondaries, Reason: reason}, nil
}

// Merge checks that the viewer owns every item (or is an admin) and then
// runs MergeContent. Items the viewer cannot see are reported as missing.
func (s *Service) Merge(ctx context.Context, viewer visibility.Viewer, req MergeRequest) (MergeResult, error) {
	if err := s.ready(); err != nil {
		return MergeResult{}, err
	}
	if err := requireUser(viewer); err != nil {
		return MergeResult{}, err
	}
	normalized, err := normalizeMergeRequest(req)
	if err != nil {
		return MergeResult{}, err
	}

	ids := append([]string{normalized.PrimaryID}, normalized.SecondaryIDs...)
	items, err := s.pool.FindByIDs(ctx, ids)
	if err != nil {
		return MergeResult{}, transactionFailure("load content for merge", err)
	}
	byID := make(map[string]db.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	missing := make([]string, 0)
	denied := false
	for _, id := range ids {
		item, ok := byID[id]
		if !ok || !viewer.CanSee(item.UserID, item.Visibility) {
			missing = append(missing, id)
			continue
		}
		if !canManage(viewer, item) {
			denied = true
		}
	}
	if len(missing) > 0 {
		return MergeResult{}, notFound("content not found", map[string]any{"missing_ids": missing})
	}
	if denied {
		return MergeResult{}, permissionDenied("only the owner or an admin can merge this content")
	}

	return s.MergeContent(ctx, normalized.PrimaryID, normalized.SecondaryIDs, viewer.UserID, normalized.Reason)
}

// MergeContent folds the secondaries into the primary in one transaction:
// union URLs and tags, keep the earliest publish date and the longest
// title and description, soft-delete the secondaries, and write an
// undoable history record. Any failure rolls everything back.
func (s *Service) MergeContent(ctx context.Context, primaryID string, secondaryIDs []string, mergedBy, reason string) (result MergeResult, err error) {
	if err := s.ready(); err != nil {
		return MergeResult{}, err
	}
	req, err := normalizeMergeRequest(MergeRequest{PrimaryID: primaryID, SecondaryIDs: secondaryIDs, Reason: reason})
	if err != nil {
		return MergeResult{}, err
	}
	mergedBy = strings.TrimSpace(mergedBy)
	if mergedBy == "" {
		return MergeResult{}, validation("merged by is required", nil)
	}

	started := time.Now()
	defer func() {
		s.metrics.ObserveMerge(started, err)
	}()

	ids := append([]string{req.PrimaryID}, req.SecondaryIDs...)
	var (
		merged  *db.ContentItem
		history db.MergeHistoryRecord
	)

	txErr := s.pool.WithTx(ctx, func(tx db.Tx) error {
		if err := db.LockContentRows(ctx, tx, ids); err != nil {
			return err
		}

		items, err := db.LoadLiveContent(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]db.ContentItem, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}
		missing := make([]string, 0)
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return notFound("content not found", map[string]any{"missing_ids": missing})
		}

		primary := byID[req.PrimaryID]
		secondaries := make([]db.ContentItem, 0, len(req.SecondaryIDs))
		for _, id := range req.SecondaryIDs {
			secondaries = append(secondaries, byID[id])
		}
		plan := planMerge(primary, secondaries)
		now := s.now()

		if _, err := db.InsertContentURLs(ctx, tx, primary.ID, plan.NewURLs, len(primary.URLs), now); err != nil {
			return err
		}
		if err := s.step("urls"); err != nil {
			return err
		}

		if err := db.ApplyMergedFields(ctx, tx, primary.ID, plan.Fields, now); err != nil {
			return err
		}
		if err := s.step("primary"); err != nil {
			return err
		}

		absorbed, err := db.SoftDeleteContentRows(ctx, tx, req.SecondaryIDs, now)
		if err != nil {
			return err
		}
		if absorbed != int64(len(req.SecondaryIDs)) {
			return conflict("content changed during merge", map[string]any{
				"expected": len(req.SecondaryIDs),
				"absorbed": absorbed,
			})
		}
		if err := s.step("absorb"); err != nil {
			return err
		}

		history = db.MergeHistoryRecord{
			ID:               uuid.NewString(),
			PrimaryContentID: primary.ID,
			MergedContentIDs: append([]string(nil), req.SecondaryIDs...),
			MergedBy:         mergedBy,
			MergeReason:      req.Reason,
			MergedMetadata:   plan.metadata(),
			CanUndo:          true,
			UndoDeadline:     now.Add(s.undoWindow),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := db.InsertMergeHistory(ctx, tx, history); err != nil {
			return err
		}
		if err := s.step("history"); err != nil {
			return err
		}

		reloaded, err := db.LoadLiveContent(ctx, tx, []string{primary.ID})
		if err != nil {
			return err
		}
		if len(reloaded) != 1 {
			return conflict("merged content disappeared", map[string]any{"content_id": primary.ID})
		}
		merged = &reloaded[0]
		return nil
	})
	if txErr != nil {
		if typed, ok := AsError(txErr); ok {
			return MergeResult{}, typed
		}
		return MergeResult{}, transactionFailure("merge content", txErr)
	}

	s.logger.Info().
		Str("merge_id", history.ID).
		Str("primary_id", history.PrimaryContentID).
		Strs("merged_ids", history.MergedContentIDs).
		Str("merged_by", mergedBy).
		Msg("content merged")

	s.record(ctx, mergedBy, audit.ActionMerge, history.PrimaryContentID, map[string]any{
		"merge_id":           history.ID,
		"merged_content_ids": history.MergedContentIDs,
		"reason":             history.MergeReason,
	})
	s.reindex(ctx, *merged)
	s.unindex(ctx, history.MergedContentIDs...)

	return MergeResult{Content: *merged, History: history}, nil
}
