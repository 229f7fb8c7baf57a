package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  channels: [devnews, gophers]
  poll_interval: 30s
gemini:
  model: gemini-2.0-flash
  max_concurrent: 3
pipeline:
  recent_buffer: 50
storage:
  driver: file
  path: ./data/comments
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Telegram.Channels) != 2 || cfg.Telegram.Channels[0] != "devnews" {
		t.Fatalf("unexpected channels: %v", cfg.Telegram.Channels)
	}
	if cfg.Gemini.MaxConcurrent != 3 {
		t.Fatalf("MaxConcurrent = %d, want 3", cfg.Gemini.MaxConcurrent)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  channels: [devnews]
  typo_field: true
gemini:
  model: gemini-2.0-flash
`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no channels", mutate: func(c *Config) { c.Telegram.Channels = nil }, wantErr: true},
		{name: "at prefix", mutate: func(c *Config) { c.Telegram.Channels = []string{"@devnews"} }, wantErr: true},
		{name: "no model", mutate: func(c *Config) { c.Gemini.Model = "" }, wantErr: true},
		{name: "bad duration", mutate: func(c *Config) { c.Telegram.PollInterval = "sixty" }, wantErr: true},
		{name: "negative duration", mutate: func(c *Config) { c.Gemini.RetryBase = "-5s" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Telegram: Telegram{Channels: []string{"devnews"}},
				Gemini:   Gemini{Model: "gemini-2.0-flash"},
			}
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
