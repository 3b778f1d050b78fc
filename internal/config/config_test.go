package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Models) < 2 {
		t.Errorf("expected at least 2 model keys, got %d", len(cfg.Models))
	}
	if cfg.Routing.Planning != "reasoning" {
		t.Errorf("expected planning route 'reasoning', got %q", cfg.Routing.Planning)
	}
	if cfg.Routing.Summarization != "extraction" {
		t.Errorf("expected summarization route 'extraction', got %q", cfg.Routing.Summarization)
	}
	if cfg.Engine.Workers != 5 {
		t.Errorf("expected 5 workers, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.Deadline != 3*time.Minute {
		t.Errorf("expected 3m deadline, got %s", cfg.Engine.Deadline)
	}
	if cfg.Retry.Transient != 3 || cfg.Retry.RateLimit != 2 || cfg.Retry.Repair != 2 {
		t.Errorf("unexpected retry budgets: %+v", cfg.Retry)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
engine:
  workers: 2
  min_sources: 3
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Engine.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Engine.Workers)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Engine.MaxDepth != 5 {
		t.Errorf("expected default max_depth 5, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Models["reasoning"].Model != "gpt-4o" {
		t.Errorf("expected default reasoning model, got %q", cfg.Models["reasoning"].Model)
	}
	if cfg.Fetch.MaxChars != 8000 {
		t.Errorf("expected default max_chars 8000, got %d", cfg.Fetch.MaxChars)
	}
}

func TestParseRejectsZeroMinSources(t *testing.T) {
	_, err := parse([]byte("engine:\n  min_sources: 0\n"))
	if err == nil {
		t.Fatal("expected error for min_sources 0")
	}
}

func TestParseRejectsSynthesisReserveOutOfRange(t *testing.T) {
	for _, v := range []string{"0", "1", "1.5"} {
		if _, err := parse([]byte("engine:\n  synthesis_reserve: " + v + "\n")); err == nil {
			t.Errorf("expected error for synthesis_reserve %s", v)
		}
	}
}

func TestParseRejectsUnknownRoute(t *testing.T) {
	_, err := parse([]byte("routing:\n  synthesis: missing\n"))
	if err == nil {
		t.Fatal("expected error for unknown model key")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Search.Backends) == 0 {
		t.Error("expected search backends to be populated from file")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Storage.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.DatabasePath() != filepath.Join("/custom/path", "briefs.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}
