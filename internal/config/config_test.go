package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ACCESS_TTL", "")
	cfg := Load()
	if cfg.StoreBackend != "postgres" {
		t.Fatalf("store backend = %q, want postgres", cfg.StoreBackend)
	}
	if cfg.AccessTTL != 12*time.Hour {
		t.Fatalf("access ttl = %s", cfg.AccessTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("ISSUE_TOKENS", "false")
	t.Setenv("STORE_TIMEOUT", "250ms")
	cfg := Load()
	if cfg.StoreBackend != "memory" || cfg.RateLimitPerMin != 10 || cfg.IssueTokens {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.StoreTimeout != 250*time.Millisecond {
		t.Fatalf("store timeout = %s", cfg.StoreTimeout)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("ACCESS_TTL", "forever")
	t.Setenv("ISSUE_TOKENS", "maybe")
	cfg := Load()
	if cfg.RateLimitPerMin != 240 || cfg.AccessTTL != 12*time.Hour || !cfg.IssueTokens {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
}

func TestLocation(t *testing.T) {
	loc, err := App{Timezone: "UTC"}.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("UTC location: %v %v", loc, err)
	}
	if loc, _ := (App{}).Location(); loc != time.Local {
		t.Fatalf("empty timezone should be Local, got %v", loc)
	}
	if _, err := (App{Timezone: "Nowhere/Atlantis"}).Location(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
