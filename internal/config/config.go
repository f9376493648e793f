// Package config loads service configuration from defaults, an optional YAML
// file and MOODTUNES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "MOODTUNES_"
	fileEnvVar = "MOODTUNES_CONFIG"
)

// Validation errors.
var (
	ErrMissingAddr        = errors.New("addr must not be empty")
	ErrMissingDatabaseURL = errors.New("database_url must be set")
	ErrMissingSpotify     = errors.New("spotify_id and spotify_secret must both be set")
	ErrInvalidCount       = errors.New("max_count must be at least default_count")
)

// Config contains process configuration.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// Addr is the HTTP listen address, e.g. "127.0.0.1:8080".
	Addr string `koanf:"addr"`
	// RedirectURL must match the Spotify app configuration.
	RedirectURL string `koanf:"redirect_url"`

	DatabaseURL string `koanf:"database_url"`

	SpotifyID     string `koanf:"spotify_id"`
	SpotifySecret string `koanf:"spotify_secret"`
	LastFMAPIKey  string `koanf:"lastfm_api_key"`

	// RedisAddr enables the Redis cache; empty means in-process caching.
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	CachePrefix   string        `koanf:"cache_prefix"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`

	// AdminToken guards the import and enrich endpoints. Empty disables them.
	AdminToken string `koanf:"admin_token"`
	// SeedFile is imported on startup when set.
	SeedFile string `koanf:"seed_file"`

	EnrichConcurrency int `koanf:"enrich_concurrency"`
	DefaultCount      int `koanf:"default_count"`
	MaxCount          int `koanf:"max_count"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "json",
		Addr:              "127.0.0.1:8080",
		RedirectURL:       "http://127.0.0.1:8080/callback",
		CachePrefix:       "moodtunes",
		CacheTTL:          7 * 24 * time.Hour,
		EnrichConcurrency: 5,
		DefaultCount:      10,
		MaxCount:          50,
	}
}

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. YAML file named by MOODTUNES_CONFIG, if set
//  3. MOODTUNES_* environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(fileEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// MOODTUNES_DATABASE_URL -> database_url
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrMissingAddr
	}
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if (c.SpotifyID == "") != (c.SpotifySecret == "") {
		return ErrMissingSpotify
	}
	if c.DefaultCount <= 0 || c.MaxCount < c.DefaultCount {
		return ErrInvalidCount
	}
	return nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyID != "" && c.SpotifySecret != ""
}
