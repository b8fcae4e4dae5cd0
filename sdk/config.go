package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"scspa/platform"
	"scspa/storage"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

const DefaultHTTPTimeout = 30 * time.Second

// Config is the YAML form of Options for non-browser hosts.
type Config struct {
	Domain      string        `yaml:"domain"`
	ClientID    string        `yaml:"client_id"`
	RedirectURI string        `yaml:"redirect_uri"`
	UIBaseURL   string        `yaml:"ui_base_url"`
	HTTPTimeout string        `yaml:"http_timeout"`
	Storage     StorageConfig `yaml:"storage"`
}

// StorageConfig selects where the code verifier and refresh token are kept.
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path,omitempty"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
				slog.Error("Configuration contains unknown keys", "error", err, "file", path)
				return Config{}, fmt.Errorf("invalid config: %w (check for typos)", err)
			}
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration template.
func DefaultConfig() Config {
	return Config{
		RedirectURI: "http://127.0.0.1:8765/callback",
		UIBaseURL:   DefaultUIBaseURL,
		HTTPTimeout: DefaultHTTPTimeout.String(),
		Storage: StorageConfig{
			Driver: DriverFile,
			Path:   ".scspa/session.yaml",
			Prefix: storage.DefaultRedisPrefix,
		},
	}
}

// WriteConfig saves cfg as YAML, creating parent directories.
func WriteConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"SCSPA_DOMAIN":             func(v string) { cfg.Domain = v },
		"SCSPA_CLIENT_ID":          func(v string) { cfg.ClientID = v },
		"SCSPA_REDIRECT_URI":       func(v string) { cfg.RedirectURI = v },
		"SCSPA_UI_BASE_URL":        func(v string) { cfg.UIBaseURL = v },
		"SCSPA_HTTP_TIMEOUT":       func(v string) { cfg.HTTPTimeout = v },
		"SCSPA_STORAGE_DRIVER":     func(v string) { cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(v)) },
		"SCSPA_STORAGE_PATH":       func(v string) { cfg.Storage.Path = v },
		"SCSPA_STORAGE_REDIS_ADDR": func(v string) { cfg.Storage.RedisAddr = v },
		"SCSPA_STORAGE_PREFIX":     func(v string) { cfg.Storage.Prefix = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func isHTTPURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

// Validate performs sanity checks on the config.
func (c Config) Validate() error {
	if c.Domain == "" {
		slog.Error("Missing required configuration", "field", "domain")
		return errors.New("domain is required")
	}
	for field, value := range map[string]string{"domain": c.Domain, "redirect_uri": c.RedirectURI, "ui_base_url": c.UIBaseURL} {
		if !isHTTPURL(value) {
			slog.Error("Invalid configuration value", "field", field, "value", value, "reason", "must start with http:// or https://")
			return fmt.Errorf("%s must start with http:// or https://, got: %s", field, value)
		}
	}
	if c.ClientID == "" {
		slog.Error("Missing required configuration", "field", "client_id")
		return errors.New("client_id is required")
	}

	if c.HTTPTimeout != "" {
		if _, err := time.ParseDuration(c.HTTPTimeout); err != nil {
			slog.Error("Invalid http timeout", "field", "http_timeout", "value", c.HTTPTimeout, "error", err)
			return fmt.Errorf("invalid http_timeout duration '%s': %w", c.HTTPTimeout, err)
		}
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.Path == "" {
			slog.Error("Missing required configuration", "field", "storage.path", "driver", c.Storage.Driver)
			return errors.New("storage.path is required for the file driver")
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			slog.Error("Missing required configuration", "field", "storage.redis_addr", "driver", c.Storage.Driver)
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	default:
		slog.Error("Invalid storage driver", "field", "storage.driver", "value", c.Storage.Driver, "valid_values", []string{DriverMemory, DriverFile, DriverRedis})
		return fmt.Errorf("storage.driver must be one of memory, file, redis, got: %s", c.Storage.Driver)
	}
	return nil
}

// Timeout is the parsed http_timeout, falling back to DefaultHTTPTimeout.
func (c Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return DefaultHTTPTimeout
	}
	return d
}

// Options maps the config onto SDK options. Host capabilities are left unset.
func (c Config) Options() Options {
	return Options{
		Domain:      c.Domain,
		ClientID:    c.ClientID,
		RedirectURI: c.RedirectURI,
		UIBaseURL:   c.UIBaseURL,
		HTTPClient:  &http.Client{Timeout: c.Timeout()},
	}
}

// Open returns the configured storage backend and a function releasing it.
func (s StorageConfig) Open(ctx context.Context) (platform.Storage, func() error, error) {
	noop := func() error { return nil }
	switch s.Driver {
	case DriverMemory:
		return storage.NewMemory(), noop, nil
	case DriverFile:
		f, err := storage.OpenFile(s.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, noop, nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", s.RedisAddr, err)
		}
		return storage.NewRedis(client, s.Prefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
}
