// Package dbtest opens throwaway databases for store and engine tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

// Pool returns a migrated pool over a private in-memory SQLite database.
// The single connection keeps every statement on the same database.
func Pool(tb testing.TB) *db.Pool {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pool, err := db.NewPoolFromGORM(context.Background(), gdb)
	if err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	tb.Cleanup(func() {
		_ = pool.Close()
	})
	return pool
}

// Item is a compact fixture description.
type Item struct {
	ID          string
	Owner       string
	Title       string
	Description string
	Type        string
	Visibility  visibility.Level
	Tags        []string
	URLs        []string
	PublishDate *time.Time
	Claimed     bool
	Author      string
	Embedding   []float64
}

// Seed inserts items in order, spacing creation times one second apart so
// created_at ordering is deterministic.
func Seed(tb testing.TB, pool *db.Pool, base time.Time, items ...Item) []db.ContentItem {
	tb.Helper()

	out := make([]db.ContentItem, 0, len(items))
	for i, item := range items {
		contentType := item.Type
		if contentType == "" {
			contentType = "blog"
		}
		level := item.Visibility
		if level == "" {
			level = visibility.Public
		}
		created, err := pool.CreateContent(context.Background(), db.NewContent{
			ID:             item.ID,
			UserID:         item.Owner,
			Title:          item.Title,
			Description:    item.Description,
			ContentType:    contentType,
			Visibility:     level,
			Tags:           item.Tags,
			OriginalAuthor: item.Author,
			PublishDate:    item.PublishDate,
			IsClaimed:      item.Claimed,
			URLs:           item.URLs,
			Embedding:      item.Embedding,
		}, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			tb.Fatalf("seed item %d (%s): %v", i, item.Title, err)
		}
		if created == nil {
			tb.Fatalf("seed item %d (%s): not found after insert", i, item.Title)
		}
		out = append(out, *created)
	}
	return out
}

func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
