package srv

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "RELNOTES_"

// Config holds all configurable server settings.
type Config struct {
	// Server
	ListenAddr string `koanf:"listen_addr"`
	Hostname   string `koanf:"hostname"`

	// Changelog source; empty uses the embedded changelog
	ChangelogPath      string `koanf:"changelog_path"`
	FeatureURLTemplate string `koanf:"feature_url_template"`
	DocumentOrder      bool   `koanf:"document_order"` // list versions in file order, not resolution order

	// RefreshInterval rebuilds the widgets, rereading the changelog file;
	// zero disables it
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// Media resolution
	MediaBaseURL     string        `koanf:"media_base_url"`
	MediaTimeout     time.Duration `koanf:"media_timeout"`
	MediaCacheTTL    time.Duration `koanf:"media_cache_ttl"`
	MediaMaxParallel int           `koanf:"media_max_parallel"`

	// API Rate Limiting
	APIRateLimit    int           `koanf:"api_rate_limit"`    // requests per interval
	APIRateInterval time.Duration `koanf:"api_rate_interval"` // interval for rate limit
	APIRateBurst    int           `koanf:"api_rate_burst"`    // max burst capacity
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8000",
		Hostname:   "localhost",

		FeatureURLTemplate: "https://relnotes.example.com/features/",
		DocumentOrder:      true,
		RefreshInterval:    15 * time.Minute,

		MediaTimeout:     5 * time.Second,
		MediaCacheTTL:    time.Hour,
		MediaMaxParallel: 4,

		// API: 30 requests per minute, burst of 10
		APIRateLimit:    30,
		APIRateInterval: time.Minute,
		APIRateBurst:    10,
	}
}

// defaultValues flattens DefaultConfig into koanf keys.
func defaultValues() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"listen_addr":          d.ListenAddr,
		"hostname":             d.Hostname,
		"changelog_path":       d.ChangelogPath,
		"feature_url_template": d.FeatureURLTemplate,
		"document_order":       d.DocumentOrder,
		"refresh_interval":     d.RefreshInterval,
		"media_base_url":       d.MediaBaseURL,
		"media_timeout":        d.MediaTimeout,
		"media_cache_ttl":      d.MediaCacheTTL,
		"media_max_parallel":   d.MediaMaxParallel,
		"api_rate_limit":       d.APIRateLimit,
		"api_rate_interval":    d.APIRateInterval,
		"api_rate_burst":       d.APIRateBurst,
	}
}

// LoadConfig layers defaults, the JSON file at path (skipped when path is
// empty) and RELNOTES_* environment variables, then validates the result.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	for key, value := range defaultValues() {
		if err := k.Set(key, value); err != nil {
			return Config{}, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps RELNOTES_MEDIA_TIMEOUT to media_timeout.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return ValidationError{Field: "listen_addr", Message: "is required"}
	}
	if c.FeatureURLTemplate == "" {
		return ValidationError{Field: "feature_url_template", Message: "is required"}
	}
	if u, err := url.Parse(c.FeatureURLTemplate); err != nil || !u.IsAbs() {
		return ValidationError{Field: "feature_url_template", Message: "must be an absolute url"}
	}
	if c.MediaBaseURL != "" {
		if u, err := url.Parse(c.MediaBaseURL); err != nil || !u.IsAbs() {
			return ValidationError{Field: "media_base_url", Message: "must be an absolute url"}
		}
	}
	if c.MediaTimeout <= 0 {
		return ValidationError{Field: "media_timeout", Message: "must be positive"}
	}
	if c.RefreshInterval < 0 {
		return ValidationError{Field: "refresh_interval", Message: "must not be negative"}
	}
	if c.MediaMaxParallel < 0 {
		return ValidationError{Field: "media_max_parallel", Message: "must not be negative"}
	}
	if c.APIRateLimit <= 0 || c.APIRateBurst <= 0 || c.APIRateInterval <= 0 {
		return ValidationError{Field: "api_rate_limit", Message: "rate, burst and interval must be positive"}
	}
	return nil
}

// ValidationError represents an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
