package config

import (
	"os"
	"testing"
)

func TestFirstNonEmpty(t *testing.T) {
	if v := firstNonEmpty("", "foo", "bar"); v != "foo" {
		t.Fatalf("expected 'foo', got %q", v)
	}
	if v := firstNonEmpty(); v != "" {
		t.Fatalf("expected empty, got %q", v)
	}
}

func TestParseInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		n, err := parseInt("42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 42 {
			t.Fatalf("expected 42, got %d", n)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := parseInt("notanint"); err == nil {
			t.Fatalf("expected error for invalid int")
		}
	})
}

func TestIntFromEnv(t *testing.T) {
	key := "MEMORYD_TEST_INT_FROM_ENV"
	old := os.Getenv(key)
	defer func() { _ = os.Setenv(key, old) }()

	_ = os.Unsetenv(key)
	if got := intFromEnv(key, 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	_ = os.Setenv(key, "123")
	if got := intFromEnv(key, 7); got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}
}

func TestBoolFromEnv(t *testing.T) {
	key := "MEMORYD_TEST_BOOL_FROM_ENV"
	old := os.Getenv(key)
	defer func() { _ = os.Setenv(key, old) }()

	_ = os.Unsetenv(key)
	if got := boolFromEnv(key, false); got != false {
		t.Fatalf("expected default false, got %v", got)
	}
	_ = os.Setenv(key, "yes")
	if got := boolFromEnv(key, false); got != true {
		t.Fatalf("expected true for 'yes', got %v", got)
	}
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	oldKey := os.Getenv("LLM_API_KEY")
	oldOpenAI := os.Getenv("OPENAI_API_KEY")
	defer func() {
		_ = os.Setenv("LLM_API_KEY", oldKey)
		_ = os.Setenv("OPENAI_API_KEY", oldOpenAI)
	}()
	_ = os.Unsetenv("LLM_API_KEY")
	_ = os.Unsetenv("OPENAI_API_KEY")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}

func TestLoad_Defaults(t *testing.T) {
	old := os.Getenv("LLM_API_KEY")
	defer func() { _ = os.Setenv("LLM_API_KEY", old) }()
	_ = os.Setenv("LLM_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected default provider openai, got %q", cfg.LLM.Provider)
	}
	if cfg.Window.MaxWindowSize != 500 {
		t.Errorf("expected default max window size 500, got %d", cfg.Window.MaxWindowSize)
	}
	if cfg.Profile.MaxItems != 25 {
		t.Errorf("expected default profile max items 25, got %d", cfg.Profile.MaxItems)
	}
	if cfg.Concurrency.AtomicFactEmbedConcurrency != 20 {
		t.Errorf("expected default atomic fact embed concurrency 20, got %d", cfg.Concurrency.AtomicFactEmbedConcurrency)
	}
	if cfg.DB.Document.Backend != "memory" {
		t.Errorf("expected default document backend memory, got %q", cfg.DB.Document.Backend)
	}
	if cfg.Retrieve.RRFK != 60 {
		t.Errorf("expected default RRF k 60, got %d", cfg.Retrieve.RRFK)
	}
}
