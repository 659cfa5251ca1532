package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	JWTSecret string `envconfig:"JWT_SECRET" default:""`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:""`

	RedisURL      string        `envconfig:"REDIS_URL" default:""`
	BadgeCacheTTL time.Duration `envconfig:"BADGE_CACHE_TTL" default:"10m"`
	NotifyChannel string        `envconfig:"NOTIFY_CHANNEL" default:"contenthub.events"`

	MeiliURL    string `envconfig:"MEILI_URL" default:""`
	MeiliAPIKey string `envconfig:"MEILI_API_KEY" default:""`
	MeiliIndex  string `envconfig:"MEILI_INDEX" default:"contenthub_content"`

	EmbeddingEndpoint string        `envconfig:"EMBEDDING_ENDPOINT" default:""`
	EmbeddingTimeout  time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"20s"`

	MergeUndoWindow time.Duration `envconfig:"MERGE_UNDO_WINDOW" default:"720h"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MergeUndoWindow <= 0 {
		return fmt.Errorf("MERGE_UNDO_WINDOW must be > 0")
	}
	if c.BadgeCacheTTL < 0 {
		return fmt.Errorf("BADGE_CACHE_TTL must be >= 0")
	}
	if c.EmbeddingTimeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.MeiliURL) != "" && strings.TrimSpace(c.MeiliIndex) == "" {
		return fmt.Errorf("MEILI_INDEX is required when MEILI_URL is set")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
