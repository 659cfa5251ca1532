package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:      "postgres://localhost/contenthub",
		DBMinConns:       1,
		DBMaxConns:       4,
		BadgeCacheTTL:    time.Minute,
		EmbeddingTimeout: time.Second,
		MergeUndoWindow:  30 * 24 * time.Hour,
		MeiliIndex:       "contenthub_content",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsNonPositiveUndoWindow(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.MergeUndoWindow = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero undo window")
	}
}

func TestValidateRejectsInvertedPoolBounds(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DBMinConns = 9
	cfg.DBMaxConns = 2
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when min conns exceed max conns")
	}
}

func TestCORSAllowedOriginsListDedupes(t *testing.T) {
	t.Parallel()

	cfg := &Config{CORSAllowedOrigins: " https://a.example ,https://b.example,https://a.example,, "}
	got := cfg.CORSAllowedOriginsList()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", got)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/contenthub")
	t.Setenv("MERGE_UNDO_WINDOW", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MergeUndoWindow != 48*time.Hour {
		t.Fatalf("unexpected undo window: %s", cfg.MergeUndoWindow)
	}
	if cfg.DBMaxConns != 8 {
		t.Fatalf("unexpected default max conns: %d", cfg.DBMaxConns)
	}
}
