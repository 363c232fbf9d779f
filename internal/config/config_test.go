package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docstill.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultsFromEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, ""))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	d := Default()
	if cfg.Analysis.Workers != d.Analysis.Workers {
		t.Errorf("expected default workers %d, got %d", d.Analysis.Workers, cfg.Analysis.Workers)
	}
	if cfg.Provider.Model != d.Provider.Model {
		t.Errorf("expected default model %q, got %q", d.Provider.Model, cfg.Provider.Model)
	}
	if cfg.Cache.Backend != "fs" {
		t.Errorf("expected default fs backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Chunking.TokenBudget != d.Chunking.TokenBudget {
		t.Errorf("expected default token budget %d, got %d", d.Chunking.TokenBudget, cfg.Chunking.TokenBudget)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
provider:
  model: gpt-4o
  timeout: 90s
analysis:
  workers: 2
cache:
  backend: redis
  redis_addr: localhost:6379
ocr:
  languages: [deu, eng]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Provider.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", cfg.Provider.Model)
	}
	if cfg.Provider.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.Provider.Timeout)
	}
	if cfg.Analysis.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Analysis.Workers)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if len(cfg.OCR.Languages) != 2 || cfg.OCR.Languages[0] != "deu" {
		t.Errorf("expected languages [deu eng], got %v", cfg.OCR.Languages)
	}
	if cfg.Analysis.Attempts != Default().Analysis.Attempts {
		t.Errorf("untouched keys must keep defaults, got attempts %d", cfg.Analysis.Attempts)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DOCSTILL_ANALYSIS_WORKERS", "9")
	t.Setenv("DOCSTILL_PROVIDER_MODEL", "gpt-4.1")

	path := writeConfigFile(t, `
analysis:
  workers: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Analysis.Workers != 9 {
		t.Errorf("expected env to beat file, got workers %d", cfg.Analysis.Workers)
	}
	if cfg.Provider.Model != "gpt-4.1" {
		t.Errorf("expected env model gpt-4.1, got %q", cfg.Provider.Model)
	}
}

func TestLoad_ClampsNonPositiveValues(t *testing.T) {
	path := writeConfigFile(t, `
analysis:
  workers: -3
chunking:
  token_budget: 0
provider:
  max_tokens: -1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	d := Default()
	if cfg.Analysis.Workers != d.Analysis.Workers {
		t.Errorf("expected clamped workers %d, got %d", d.Analysis.Workers, cfg.Analysis.Workers)
	}
	if cfg.Chunking.TokenBudget != d.Chunking.TokenBudget {
		t.Errorf("expected clamped token budget %d, got %d", d.Chunking.TokenBudget, cfg.Chunking.TokenBudget)
	}
	if cfg.Provider.MaxTokens != d.Provider.MaxTokens {
		t.Errorf("expected clamped max tokens %d, got %d", d.Provider.MaxTokens, cfg.Provider.MaxTokens)
	}
}

func TestLoad_ResolvesAPIKeyReference(t *testing.T) {
	t.Setenv("DOCSTILL_TEST_PROVIDER_KEY", "sk-resolved")

	path := writeConfigFile(t, `
provider:
  api_key: ${DOCSTILL_TEST_PROVIDER_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Provider.APIKey != "sk-resolved" {
		t.Errorf("expected resolved key, got %q", cfg.Provider.APIKey)
	}
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	path := writeConfigFile(t, "provider: [not: a: mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestLoad_MissingExplicitFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate_RequiresProviderKeyOrBaseURL(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when api key and base url are both empty")
	}

	cfg.Provider.BaseURL = "http://localhost:11434/v1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("local endpoint without key should validate, got %v", err)
	}

	cfg.Provider.BaseURL = ""
	cfg.Provider.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidate_CacheBackend(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "sk-test"

	cfg.Cache.Backend = "s3"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown cache backend")
	}

	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for redis backend without address")
	}

	cfg.Cache.RedisAddr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid redis config, got %v", err)
	}
}

func TestValidate_LogSettings(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "sk-test"

	cfg.Log.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}

	cfg.Log.Level = "debug"
	cfg.Log.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range cases {
		lvl, err := LogConfig{Level: tc.in}.SlogLevel()
		if err != nil {
			t.Errorf("SlogLevel(%q) failed: %v", tc.in, err)
			continue
		}
		if lvl != tc.want {
			t.Errorf("SlogLevel(%q) = %v, expected %v", tc.in, lvl, tc.want)
		}
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("DOCSTILL_TEST_SECRET", "secret123")
		if got := ResolveEnvVars("${DOCSTILL_TEST_SECRET}"); got != "secret123" {
			t.Errorf("expected secret123, got %q", got)
		}
	})

	t.Run("missing variable resolves empty", func(t *testing.T) {
		if got := ResolveEnvVars("${DOCSTILL_DEFINITELY_NOT_SET}"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("literal values unchanged", func(t *testing.T) {
		if got := ResolveEnvVars("sk-literal"); got != "sk-literal" {
			t.Errorf("expected sk-literal, got %q", got)
		}
	})
}
