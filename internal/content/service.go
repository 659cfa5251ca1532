// Package content implements the content engine: duplicate detection,
// merge and unmerge, and the claim, delete and restore lifecycle, each
// behind a viewer-aware permission gate.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/embedding"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/globaltime"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/observability"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

const (
	DefaultUndoWindow  = 30 * 24 * time.Hour
	DefaultMergeReason = "Merged duplicate content"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Indexer keeps an external keyword index in step with the store. Calls
// are fire-and-forget.
type Indexer interface {
	IndexContent(ctx context.Context, items ...db.ContentItem)
	RemoveContent(ctx context.Context, ids ...string)
}

type Options struct {
	UndoWindow time.Duration
	Audit      audit.Sink
	Embedder   Embedder
	Index      Indexer
	Metrics    *observability.Metrics
}

type Service struct {
	pool       *db.Pool
	logger     zerolog.Logger
	audit      audit.Sink
	embedder   Embedder
	index      Indexer
	metrics    *observability.Metrics
	undoWindow time.Duration
	now        func() time.Time

	// afterStep lets tests fail a merge or unmerge between writes.
	afterStep func(step string) error
}

func NewService(pool *db.Pool, logger zerolog.Logger, opts Options) *Service {
	window := opts.UndoWindow
	if window <= 0 {
		window = DefaultUndoWindow
	}
	return &Service{
		pool:       pool,
		logger:     logger,
		audit:      opts.Audit,
		embedder:   opts.Embedder,
		index:      opts.Index,
		metrics:    opts.Metrics,
		undoWindow: window,
		now:        globaltime.UTC,
	}
}

func (s *Service) UndoWindow() time.Duration {
	return s.undoWindow
}

func (s *Service) ready() error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("content service is not initialized")
	}
	return nil
}

func (s *Service) step(name string) error {
	if s.afterStep == nil {
		return nil
	}
	return s.afterStep(name)
}

// record sends an audit event without letting a sink failure escape.
func (s *Service) record(ctx context.Context, actorID, action, resourceID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		ActorID:    actorID,
		Action:     action,
		ResourceID: resourceID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("audit record failed")
	}
}

func (s *Service) reindex(ctx context.Context, items ...db.ContentItem) {
	if s.index == nil || len(items) == 0 {
		return
	}
	s.index.IndexContent(context.WithoutCancel(ctx), items...)
}

func (s *Service) unindex(ctx context.Context, ids ...string) {
	if s.index == nil || len(ids) == 0 {
		return
	}
	s.index.RemoveContent(context.WithoutCancel(ctx), ids...)
}

// embed returns nil when no provider is configured or the provider fails;
// the caller's write goes ahead without an embedding.
func (s *Service) embed(ctx context.Context, contentID, title, description string) []float64 {
	if s.embedder == nil {
		return nil
	}
	input := embedding.Input(title, description)
	if input == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, input)
	if err != nil {
		s.logger.Warn().Err(err).Str("content_id", contentID).Msg("embedding generation failed")
		return nil
	}
	return vec
}

func requireUser(viewer visibility.Viewer) error {
	if viewer.Anonymous() {
		return permissionDenied("authentication required")
	}
	return nil
}

func requireID(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", validation(name+" is required", nil)
	}
	return trimmed, nil
}

// loadVisible answers NotFound both for missing rows and for rows the
// viewer may not see, so existence is never leaked.
func (s *Service) loadVisible(ctx context.Context, viewer visibility.Viewer, id string) (*db.ContentItem, error) {
	item, err := s.pool.FindVisibleByID(ctx, id, visibility.ScopeFor(viewer))
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", id, err)
	}
	if item == nil {
		return nil, notFound("content not found", map[string]any{"content_id": id})
	}
	return item, nil
}

func canManage(viewer visibility.Viewer, item db.ContentItem) bool {
	return viewer.IsAdmin || (!viewer.Anonymous() && item.UserID == viewer.UserID)
}
