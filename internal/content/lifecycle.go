package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

// Get returns a live item the viewer may see.
func (s *Service) Get(ctx context.Context, viewer visibility.Viewer, id string) (*db.ContentItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	trimmed, err := requireID("content id", id)
	if err != nil {
		return nil, err
	}
	return s.loadVisible(ctx, viewer, trimmed)
}

// Create stores a new item, attaching an embedding when the provider
// answers, and pushes it to the keyword index.
func (s *Service) Create(ctx context.Context, actorID string, in db.NewContent) (*db.ContentItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, validation("title is required", nil)
	}
	if strings.TrimSpace(in.ContentType) == "" {
		return nil, validation("content type is required", nil)
	}
	if in.Visibility != "" && !in.Visibility.Valid() {
		return nil, validation("invalid visibility", map[string]any{"visibility": string(in.Visibility)})
	}
	if len(in.Embedding) == 0 {
		in.Embedding = s.embed(ctx, in.ID, in.Title, in.Description)
	}

	item, err := s.pool.CreateContent(ctx, in, s.now())
	if err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("create content: row not found after insert")
	}

	s.record(ctx, actorID, audit.ActionCreate, item.ID, map[string]any{
		"content_type": item.ContentType,
		"url_count":    len(item.URLs),
	})
	s.reindex(ctx, *item)
	return item, nil
}

// Update applies a versioned patch. Only the owner or an admin may update.
// The embedding is regenerated when title or description changed; a failing
// provider leaves the stored embedding as it was.
func (s *Service) Update(ctx context.Context, viewer visibility.Viewer, id string, patch db.ContentPatch, expectedVersion int64) (*db.ContentItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireUser(viewer); err != nil {
		return nil, err
	}
	trimmed, err := requireID("content id", id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, validation("update has no fields", nil)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, validation("title cannot be empty", nil)
	}
	if patch.Visibility != nil && !patch.Visibility.Valid() {
		return nil, validation("invalid visibility", map[string]any{"visibility": string(*patch.Visibility)})
	}

	current, err := s.loadVisible(ctx, viewer, trimmed)
	if err != nil {
		return nil, err
	}
	if !canManage(viewer, *current) {
		return nil, permissionDenied("only the owner or an admin can update this content")
	}

	updated, err := s.pool.UpdateContent(ctx, trimmed, patch, expectedVersion, s.now())
	if err != nil {
		if db.IsNoRows(err) {
			return nil, notFound("content not found", map[string]any{"content_id": trimmed})
		}
		if db.IsVersionConflict(err) {
			details := map[string]any{"content_id": trimmed, "expected_version": expectedVersion}
			if conflictErr, ok := asVersionConflict(err); ok {
				details["current_version"] = conflictErr.CurrentVersion
			}
			return nil, conflict("content was modified by someone else", details)
		}
		return nil, fmt.Errorf("update content: %w", err)
	}

	if patch.Title != nil || patch.Description != nil {
		if vec := s.embed(ctx, updated.ID, updated.Title, updated.Description); len(vec) > 0 {
			if err := s.pool.SetContentEmbedding(ctx, updated.ID, vec); err != nil {
				s.logger.Warn().Err(err).Str("content_id", updated.ID).Msg("store refreshed embedding failed")
			}
		}
	}

	s.record(ctx, viewer.UserID, audit.ActionUpdate, updated.ID, map[string]any{"version": updated.Version})
	s.reindex(ctx, *updated)
	return updated, nil
}

// Claim assigns an item to the viewer. Without force only unclaimed items
// can be claimed; force is honored for admins only.
func (s *Service) Claim(ctx context.Context, viewer visibility.Viewer, id string, force bool) (*db.ContentItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireUser(viewer); err != nil {
		return nil, err
	}
	trimmed, err := requireID("content id", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadVisible(ctx, viewer, trimmed); err != nil {
		return nil, err
	}
	force = force && viewer.IsAdmin

	claimed, err := s.pool.ClaimContent(ctx, trimmed, viewer.UserID, force, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim content: %w", err)
	}
	if claimed == nil {
		return nil, conflict("content is already claimed", map[string]any{"content_id": trimmed})
	}

	s.logger.Info().Str("content_id", trimmed).Str("user_id", viewer.UserID).Bool("force", force).Msg("content claimed")
	s.record(ctx, viewer.UserID, audit.ActionClaim, trimmed, map[string]any{"force": force})
	s.reindex(ctx, *claimed)
	return claimed, nil
}

// Delete soft-deletes by default. Hard deletes are reserved for admins.
func (s *Service) Delete(ctx context.Context, viewer visibility.Viewer, id string, hard bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := requireUser(viewer); err != nil {
		return err
	}
	trimmed, err := requireID("content id", id)
	if err != nil {
		return err
	}
	if hard && !viewer.IsAdmin {
		return permissionDenied("only admins can permanently delete content")
	}

	item, err := s.pool.FindByIDIncludingDeleted(ctx, trimmed)
	if err != nil {
		return fmt.Errorf("load content %s: %w", trimmed, err)
	}
	if item == nil || !viewer.CanSee(item.UserID, item.Visibility) {
		return notFound("content not found", map[string]any{"content_id": trimmed})
	}
	if item.DeletedAt != nil && !hard {
		return notFound("content not found", map[string]any{"content_id": trimmed})
	}
	if !canManage(viewer, *item) {
		return permissionDenied("only the owner or an admin can delete this content")
	}

	deleted, err := s.pool.DeleteContent(ctx, trimmed, !hard, s.now())
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if !deleted {
		return notFound("content not found", map[string]any{"content_id": trimmed})
	}

	s.logger.Info().Str("content_id", trimmed).Bool("hard", hard).Msg("content deleted")
	s.record(ctx, viewer.UserID, audit.ActionDelete, trimmed, map[string]any{"hard": hard})
	s.unindex(ctx, trimmed)
	return nil
}

// Restore clears a soft delete for the owner or an admin.
func (s *Service) Restore(ctx context.Context, viewer visibility.Viewer, id string) (*db.ContentItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireUser(viewer); err != nil {
		return nil, err
	}
	trimmed, err := requireID("content id", id)
	if err != nil {
		return nil, err
	}

	item, err := s.pool.FindByIDIncludingDeleted(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", trimmed, err)
	}
	if item == nil || !viewer.CanSee(item.UserID, item.Visibility) {
		return nil, notFound("content not found", map[string]any{"content_id": trimmed})
	}
	if !canManage(viewer, *item) {
		return nil, permissionDenied("only the owner or an admin can restore this content")
	}
	if item.DeletedAt == nil {
		return nil, conflict("content is not deleted", map[string]any{"content_id": trimmed})
	}

	restored, err := s.pool.RestoreContent(ctx, trimmed, s.now())
	if err != nil {
		return nil, fmt.Errorf("restore content: %w", err)
	}
	if !restored {
		return nil, conflict("content is not deleted", map[string]any{"content_id": trimmed})
	}
	reloaded, err := s.pool.FindByID(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("reload restored content: %w", err)
	}
	if reloaded == nil {
		return nil, notFound("content not found", map[string]any{"content_id": trimmed})
	}

	s.record(ctx, viewer.UserID, audit.ActionRestore, trimmed, nil)
	s.reindex(ctx, *reloaded)
	return reloaded, nil
}

// FindDuplicates scans the viewer's own live library.
func (s *Service) FindDuplicates(ctx context.Context, viewer visibility.Viewer, opts DuplicateOptions) ([]DuplicateMatch, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireUser(viewer); err != nil {
		return nil, err
	}
	if _, err := normalizeDuplicateOptions(opts); err != nil {
		return nil, err
	}
	items, err := s.pool.ListByOwner(ctx, viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("list owned content: %w", err)
	}
	s.metrics.ObserveDuplicateScan()
	return FindDuplicates(items, opts)
}

func asVersionConflict(err error) (*db.VersionConflictError, bool) {
	var conflictErr *db.VersionConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr, true
	}
	return nil, false
}
