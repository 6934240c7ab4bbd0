package config

import (
	"os"
	"path/filepath"
	"testing"

	"overseer/internal/ratelimit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "k1")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Backend != "gemini" {
		t.Errorf("backend = %q, want gemini", cfg.Gateway.Backend)
	}
	if cfg.RateLimit.MaxTokens != 100000 {
		t.Errorf("max_tokens = %d, want default 100000", cfg.RateLimit.MaxTokens)
	}
	if cfg.Store.Path == "" {
		t.Error("store path default missing")
	}
}

func TestLoadFileAndEnvMerge(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "envkey-a, envkey-b")
	path := writeConfig(t, `
gateway:
  backend: gemini
  model: gemini-2.0-flash
  api_keys:
    - name: primary
      api_key: filekey
  role_keys:
    researcher: primary
rate_limit:
  max_tokens: 5000
  period_value: 30
  period_unit: seconds
  auto_resume_minutes: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Gateway.APIKeys) != 3 {
		t.Fatalf("expected 3 credentials (1 file + 2 env), got %d", len(cfg.Gateway.APIKeys))
	}
	if cfg.Gateway.APIKeys[0].Name != "primary" {
		t.Errorf("file credentials must keep declaration order, got %q first", cfg.Gateway.APIKeys[0].Name)
	}
	if cfg.RateLimit.PeriodUnit != ratelimit.UnitSeconds || cfg.RateLimit.PeriodValue != 30 {
		t.Errorf("rate limit not loaded: %+v", cfg.RateLimit)
	}

	prefs, err := cfg.RolePrefs()
	if err != nil {
		t.Fatalf("role prefs: %v", err)
	}
	if prefs["researcher"] != "primary" {
		t.Errorf("researcher preference = %q, want primary", prefs["researcher"])
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		yaml      string
		expectErr bool
	}{
		{
			name: "gemini without keys",
			yaml: "gateway:\n  backend: gemini\n",
			expectErr: true,
		},
		{
			name: "ollama without keys is fine",
			yaml: "gateway:\n  backend: ollama\n",
		},
		{
			name: "unknown backend",
			yaml: "gateway:\n  backend: hal9000\n",
			expectErr: true,
		},
		{
			name: "duplicate credential names",
			yaml: "gateway:\n  backend: gemini\n  api_keys:\n    - {name: a, api_key: x}\n    - {name: a, api_key: y}\n",
			expectErr: true,
		},
		{
			name: "unknown role in role_keys",
			yaml: "gateway:\n  backend: ollama\n  role_keys:\n    manager: a\n",
			expectErr: true,
		},
		{
			name: "bad rate limit",
			yaml: "gateway:\n  backend: ollama\nrate_limit:\n  max_tokens: 0\n  period_value: 1\n  period_unit: minutes\n  auto_resume_minutes: 5\n",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEYS", "")
			_, err := Load(writeConfig(t, tc.yaml))
			if tc.expectErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
