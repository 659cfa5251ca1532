package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
)

const DefaultIndexUID = "contenthub_content"

// Document is the shape pushed to the keyword index. Visibility decisions
// are never made from index data; the database re-applies them.
type Document struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ContentType string   `json:"content_type"`
	Visibility  string   `json:"visibility"`
	Tags        []string `json:"tags"`
	URLs        []string `json:"urls"`
}

func DocumentFromContent(item db.ContentItem) Document {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return Document{
		ID:          item.ID,
		UserID:      item.UserID,
		Title:       item.Title,
		Description: item.Description,
		ContentType: item.ContentType,
		Visibility:  string(item.Visibility),
		Tags:        tags,
		URLs:        item.URLStrings(),
	}
}

// Meili implements KeywordIndex via Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	uid       string
	logger    zerolog.Logger
	healthy   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewMeili creates the client and configures the index. An unreachable
// server is not an error: the index reports unhealthy and a background
// check reconfigures it once the server answers.
func NewMeili(url, apiKey, uid string, logger zerolog.Logger) *Meili {
	if strings.TrimSpace(uid) == "" {
		uid = DefaultIndexUID
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		uid:    uid,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configure()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.uid,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug().Err(err).Str("index", m.uid).Msg("create index (may already exist)")
	}

	index := m.client.Index(m.uid)
	filterable := []interface{}{"content_type", "visibility", "tags", "user_id"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn().Err(err).Str("index", m.uid).Msg("update filterable attributes")
	}
	searchable := []string{"title", "description", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn().Err(err).Str("index", m.uid).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info().Str("index", m.uid).Msg("meilisearch recovered, reconfiguring index")
				m.configure()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchIDs returns matching ids in relevance order.
func (m *Meili) SearchIDs(query string, limit int) ([]string, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:             m.uid,
			Query:                query,
			Limit:                int64(limit),
			AttributesToRetrieve: []string{"id"},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]string, 0)
	for _, result := range resp.Results {
		for _, hit := range result.Hits {
			raw, ok := hit["id"]
			if !ok {
				continue
			}
			var id string
			if err := json.Unmarshal(raw, &id); err == nil && id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (m *Meili) Upsert(docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(m.uid).AddDocuments(docs, nil)
	return err
}

func (m *Meili) Delete(ids ...string) error {
	for _, id := range ids {
		if _, err := m.client.Index(m.uid).DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}
