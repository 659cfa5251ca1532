package content

import (
	"context"
	"fmt"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

type UnmergeResult struct {
	MergeID          string   `json:"merge_id"`
	PrimaryContentID string   `json:"primary_content_id"`
	RestoredIDs      []string `json:"restored_ids"`
}

// canAccessHistory allows admins, the actor who merged, and the owner of
// the surviving item.
func (s *Service) canAccessHistory(ctx context.Context, viewer visibility.Viewer, rec db.MergeHistoryRecord) (bool, error) {
	if viewer.IsAdmin || rec.MergedBy == viewer.UserID {
		return true, nil
	}
	primary, err := s.pool.FindByIDIncludingDeleted(ctx, rec.PrimaryContentID)
	if err != nil {
		return false, fmt.Errorf("load merge primary: %w", err)
	}
	return primary != nil && primary.UserID == viewer.UserID, nil
}

func (s *Service) loadHistoryFor(ctx context.Context, viewer visibility.Viewer, mergeID string) (*db.MergeHistoryRecord, error) {
	if err := requireUser(viewer); err != nil {
		return nil, err
	}
	id, err := requireID("merge id", mergeID)
	if err != nil {
		return nil, err
	}
	rec, err := s.pool.GetMergeHistory(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, notFound("merge history not found", map[string]any{"merge_id": id})
		}
		return nil, fmt.Errorf("load merge history: %w", err)
	}
	allowed, err := s.canAccessHistory(ctx, viewer, *rec)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, notFound("merge history not found", map[string]any{"merge_id": id})
	}
	return rec, nil
}

// GetMergeHistory returns one record to a viewer allowed to undo it.
func (s *Service) GetMergeHistory(ctx context.Context, viewer visibility.Viewer, mergeID string) (*db.MergeHistoryRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.loadHistoryFor(ctx, viewer, mergeID)
}

// ListMergeHistory returns records touching a content item the viewer can
// manage. Absorbed items are soft-deleted, so deleted rows are included.
func (s *Service) ListMergeHistory(ctx context.Context, viewer visibility.Viewer, contentID string) ([]db.MergeHistoryRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireUser(viewer); err != nil {
		return nil, err
	}
	id, err := requireID("content id", contentID)
	if err != nil {
		return nil, err
	}
	item, err := s.pool.FindByIDIncludingDeleted(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", id, err)
	}
	if item == nil || !viewer.CanSee(item.UserID, item.Visibility) {
		return nil, notFound("content not found", map[string]any{"content_id": id})
	}
	if !canManage(viewer, *item) {
		return nil, permissionDenied("only the owner or an admin can view merge history")
	}
	records, err := s.pool.ListMergeHistoryForContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list merge history: %w", err)
	}
	return records, nil
}

// Unmerge checks access to the history record and then runs UnmergeContent.
func (s *Service) Unmerge(ctx context.Context, viewer visibility.Viewer, mergeID string) (UnmergeResult, error) {
	if err := s.ready(); err != nil {
		return UnmergeResult{}, err
	}
	rec, err := s.loadHistoryFor(ctx, viewer, mergeID)
	if err != nil {
		return UnmergeResult{}, err
	}
	return s.unmerge(ctx, rec.ID, viewer.UserID)
}

// UnmergeContent restores the absorbed items of a merge still inside its
// undo window and closes the record. The primary keeps its merged fields.
func (s *Service) UnmergeContent(ctx context.Context, mergeID string) (UnmergeResult, error) {
	if err := s.ready(); err != nil {
		return UnmergeResult{}, err
	}
	return s.unmerge(ctx, mergeID, "")
}

func (s *Service) unmerge(ctx context.Context, mergeID, actorID string) (result UnmergeResult, err error) {
	id, err := requireID("merge id", mergeID)
	if err != nil {
		return UnmergeResult{}, err
	}
	defer func() {
		s.metrics.ObserveUnmerge(err)
	}()

	var rec *db.MergeHistoryRecord
	var restored int64
	txErr := s.pool.WithTx(ctx, func(tx db.Tx) error {
		loaded, err := db.LoadMergeHistory(ctx, tx, id, true)
		if err != nil {
			if db.IsNoRows(err) {
				return notFound("merge history not found", map[string]any{"merge_id": id})
			}
			return err
		}
		rec = loaded

		if !rec.CanUndo {
			return conflict("merge can no longer be undone", map[string]any{
				"merge_id":      rec.ID,
				"undo_deadline": rec.UndoDeadline,
			})
		}
		now := s.now()
		if now.After(rec.UndoDeadline) {
			return expired("undo window has passed", map[string]any{
				"merge_id":      rec.ID,
				"undo_deadline": rec.UndoDeadline,
			})
		}

		restored, err = db.RestoreContentRows(ctx, tx, rec.MergedContentIDs, now)
		if err != nil {
			return err
		}
		if err := s.step("restore"); err != nil {
			return err
		}

		closed, err := db.CloseMergeUndo(ctx, tx, rec.ID, now)
		if err != nil {
			return err
		}
		if !closed {
			return conflict("merge can no longer be undone", map[string]any{"merge_id": rec.ID})
		}
		return s.step("close")
	})
	if txErr != nil {
		if typed, ok := AsError(txErr); ok {
			return UnmergeResult{}, typed
		}
		return UnmergeResult{}, transactionFailure("unmerge content", txErr)
	}

	if restored != int64(len(rec.MergedContentIDs)) {
		s.logger.Warn().
			Str("merge_id", rec.ID).
			Int64("restored", restored).
			Int("expected", len(rec.MergedContentIDs)).
			Msg("unmerge restored fewer items than were merged")
	}
	s.logger.Info().
		Str("merge_id", rec.ID).
		Str("primary_id", rec.PrimaryContentID).
		Strs("restored_ids", rec.MergedContentIDs).
		Msg("content unmerged")

	if actorID == "" {
		actorID = rec.MergedBy
	}
	s.record(ctx, actorID, audit.ActionUnmerge, rec.PrimaryContentID, map[string]any{
		"merge_id":     rec.ID,
		"restored_ids": rec.MergedContentIDs,
	})
	if s.index != nil {
		items, err := s.pool.FindByIDs(ctx, rec.MergedContentIDs)
		if err != nil {
			s.logger.Warn().Err(err).Str("merge_id", rec.ID).Msg("reload restored content for indexing failed")
		} else {
			s.reindex(ctx, items...)
		}
	}

	return UnmergeResult{
		MergeID:          rec.ID,
		PrimaryContentID: rec.PrimaryContentID,
		RestoredIDs:      append([]string(nil), rec.MergedContentIDs...),
	}, nil
}
