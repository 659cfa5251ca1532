// Package search is the content search facade. Keyword queries go to
// Meilisearch when it is healthy and fall back to the database full-text
// filter otherwise; vector queries embed the text and rank by cosine
// similarity. The database always applies visibility and pagination.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/observability"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

type Mode string

const (
	ModeKeyword Mode = "keyword"
	ModeVector  Mode = "vector"
	ModeList    Mode = "list"
)

const (
	BackendIndex    = "meilisearch"
	BackendDatabase = "database"

	indexCandidateLimit = 1000
	reindexBatchSize    = 100
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return "", nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeVector:
		return ModeVector, nil
	case ModeList:
		return ModeList, nil
	default:
		return "", invalid("unknown search mode", map[string]any{"mode": raw})
	}
}

// KeywordIndex is the external ranking backend.
type KeywordIndex interface {
	Healthy() bool
	SearchIDs(query string, limit int) ([]string, error)
	Upsert(docs ...Document) error
	Delete(ids ...string) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Options struct {
	Index    KeywordIndex
	Embedder Embedder
	Metrics  *observability.Metrics
}

type Request struct {
	Viewer       visibility.Viewer
	Mode         Mode
	Query        string
	ContentTypes []string
	Tags         []string
	Visibilities []visibility.Level
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type Response struct {
	Mode    Mode               `json:"mode"`
	Backend string             `json:"backend"`
	Query   string             `json:"query,omitempty"`
	Items   []db.ScoredContent `json:"items"`
	Total   int64              `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

type Service struct {
	pool     *db.Pool
	logger   zerolog.Logger
	index    KeywordIndex
	embedder Embedder
	metrics  *observability.Metrics
	pending  sync.WaitGroup
}

func NewService(pool *db.Pool, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		pool:     pool,
		logger:   logger,
		index:    opts.Index,
		embedder: opts.Embedder,
		metrics:  opts.Metrics,
	}
}

func invalid(message string, details map[string]any) *content.Error {
	return &content.Error{Kind: content.KindValidation, Message: message, Details: details}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search runs req for its viewer. An empty mode means keyword when a query
// is present and list otherwise.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	if s == nil || s.pool == nil {
		return Response{}, fmt.Errorf("search service is not initialized")
	}
	query := strings.TrimSpace(req.Query)
	mode := req.Mode
	if mode == "" {
		mode = ModeList
		if query != "" {
			mode = ModeKeyword
		}
	}
	if req.Limit < 0 || req.Offset < 0 {
		return Response{}, invalid("limit and offset must not be negative", nil)
	}
	for _, level := range req.Visibilities {
		if !level.Valid() {
			return Response{}, invalid("invalid visibility", map[string]any{"visibility": string(level)})
		}
	}

	params := db.SearchParams{
		Scope:        visibility.ScopeFor(req.Viewer),
		ContentTypes: req.ContentTypes,
		Tags:         req.Tags,
		Visibilities: req.Visibilities,
		From:         req.From,
		To:           req.To,
		Limit:        req.Limit,
		Offset:       req.Offset,
	}

	var (
		page    db.SearchPage
		backend = BackendDatabase
		err     error
	)
	switch mode {
	case ModeList:
		params.Order = db.OrderCreatedDesc
		page, err = s.pool.SearchContent(ctx, params)
	case ModeKeyword:
		if query == "" {
			return Response{}, invalid("keyword search needs a query", nil)
		}
		page, backend, err = s.keyword(ctx, query, params)
	case ModeVector:
		if query == "" {
			return Response{}, invalid("vector search needs a query", nil)
		}
		if s.embedder == nil {
			return Response{}, invalid("vector search is not configured", nil)
		}
		vec, embedErr := s.embedder.Embed(ctx, query)
		if embedErr != nil {
			return Response{}, fmt.Errorf("embed search query: %w", embedErr)
		}
		page, err = s.pool.SearchContentByVector(ctx, params, vec)
	default:
		return Response{}, invalid("unknown search mode", map[string]any{"mode": string(mode)})
	}
	if err != nil {
		return Response{}, fmt.Errorf("%s search: %w", mode, err)
	}
	s.metrics.ObserveSearch(string(mode))

	return Response{
		Mode:    mode,
		Backend: backend,
		Query:   query,
		Items:   page.Items,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}, nil
}

func (s *Service) keyword(ctx context.Context, query string, params db.SearchParams) (db.SearchPage, string, error) {
	if s.indexReady() {
		ids, err := s.index.SearchIDs(query, indexCandidateLimit)
		if err == nil {
			params.IDs = ids
			params.Order = db.OrderGivenIDs
			page, err := s.pool.SearchContent(ctx, params)
			return page, BackendIndex, err
		}
		s.logger.Warn().Err(err).Msg("keyword index search failed, falling back to database")
	}
	params.Keyword = query
	params.Order = db.OrderRank
	page, err := s.pool.SearchContent(ctx, params)
	return page, BackendDatabase, err
}

// IndexContent pushes items to the keyword index without blocking the caller.
func (s *Service) IndexContent(_ context.Context, items ...db.ContentItem) {
	if !s.indexReady() || len(items) == 0 {
		return
	}
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, DocumentFromContent(item))
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.Upsert(docs...); err != nil {
			s.logger.Warn().Err(err).Int("count", len(docs)).Msg("index content failed")
		}
	}()
}

// RemoveContent drops ids from the keyword index without blocking the caller.
func (s *Service) RemoveContent(_ context.Context, ids ...string) {
	if !s.indexReady() || len(ids) == 0 {
		return
	}
	ids = append([]string(nil), ids...)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.Delete(ids...); err != nil {
			s.logger.Warn().Err(err).Strs("ids", ids).Msg("remove content from index failed")
		}
	}()
}

// Wait blocks until queued index updates finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Reindex pushes every live item to the keyword index in batches and
// returns how many were sent.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if !s.indexReady() {
		return 0, fmt.Errorf("keyword index is not available")
	}
	total := 0
	after := ""
	for {
		items, err := s.pool.ListContentPage(ctx, after, reindexBatchSize)
		if err != nil {
			return total, err
		}
		if len(items) == 0 {
			return total, nil
		}
		docs := make([]Document, 0, len(items))
		for _, item := range items {
			docs = append(docs, DocumentFromContent(item))
		}
		if err := s.index.Upsert(docs...); err != nil {
			return total, fmt.Errorf("reindex batch after %q: %w", after, err)
		}
		total += len(docs)
		after = items[len(items)-1].ID
		if len(items) < reindexBatchSize {
			return total, nil
		}
	}
}
