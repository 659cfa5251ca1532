package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

// Postgres-only indexes: full-text search over title and description, and
// the optional pgvector extension used for nearest-neighbour ordering.
//
//go:embed sql/postgres_post_automigrate.sql
var postgresPostAutoMigrateSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	if p.Dialect() != DialectPostgres {
		return nil
	}

	if err := executeMigrationSQL(ctx, p, "post-auto-migrate", postgresPostAutoMigrateSQL); err != nil {
		return err
	}

	const vectorQuery = `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`
	var hasVector bool
	if err := p.QueryRow(ctx, vectorQuery).Scan(&hasVector); err != nil {
		return fmt.Errorf("detect pgvector extension: %w", err)
	}
	p.hasVector = hasVector

	return nil
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}
