package sdk

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scspa/storage"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, `
domain: https://tenant.example.com
client_id: cli
storage:
  driver: memory
`)
	t.Setenv("SCSPA_CLIENT_ID", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Domain != "https://tenant.example.com" || cfg.ClientID != "from-env" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.UIBaseURL != DefaultUIBaseURL || cfg.RedirectURI == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Timeout() != DefaultHTTPTimeout {
		t.Fatalf("Timeout = %v", cfg.Timeout())
	}

	opts := cfg.Options()
	if opts.Domain != cfg.Domain || opts.ClientID != "from-env" || opts.HTTPClient.Timeout != DefaultHTTPTimeout {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "domain: https://tenant.example.com\nclient_id: cli\nclientid: typo\n")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.Domain = "https://tenant.example.com"
		cfg.ClientID = "cli"
		return cfg
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing domain", func(c *Config) { c.Domain = "" }, "domain is required"},
		{"bad domain", func(c *Config) { c.Domain = "tenant.example.com" }, "domain must start"},
		{"missing client", func(c *Config) { c.ClientID = "" }, "client_id is required"},
		{"bad redirect", func(c *Config) { c.RedirectURI = "/callback" }, "redirect_uri must start"},
		{"bad timeout", func(c *Config) { c.HTTPTimeout = "soon" }, "http_timeout"},
		{"file without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = DriverRedis }, "storage.redis_addr"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Domain = "https://tenant.example.com"
	cfg.ClientID = "cli"
	cfg.HTTPTimeout = (5 * time.Second).String()

	if err := WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Timeout() != 5*time.Second || loaded.Storage != cfg.Storage {
		t.Fatalf("unexpected round trip %+v", loaded)
	}
}

func TestStorageConfigOpen(t *testing.T) {
	ctx := context.Background()

	mem, release, err := StorageConfig{Driver: DriverMemory}.Open(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer release()
	if _, ok := mem.(*storage.Memory); !ok {
		t.Fatalf("expected memory storage, got %T", mem)
	}

	path := filepath.Join(t.TempDir(), "session.yaml")
	file, _, err := StorageConfig{Driver: DriverFile, Path: path}.Open(ctx)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if err := file.Set(ctx, "_sc_rt", "rt"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected storage file: %v", err)
	}

	if _, _, err := (StorageConfig{Driver: "nope"}).Open(ctx); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if addr := os.Getenv("SCSPA_TEST_REDIS_ADDR"); addr != "" {
		r, release, err := StorageConfig{Driver: DriverRedis, RedisAddr: addr}.Open(ctx)
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		defer release()
		if _, ok := r.(*storage.Redis); !ok {
			t.Fatalf("expected redis storage, got %T", r)
		}
	}
}
