// Package lastfm provides Last.fm API integration for fetching track tags.
package lastfm

import (
	"errors"
	"time"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("missing Last.fm API key")

const (
	defaultBaseURL = "http://ws.audioscrobbler.com/2.0/"
	defaultTimeout = 10 * time.Second
)

// Config holds Last.fm API configuration.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public endpoint
	Timeout time.Duration
}

// Validate reports ErrMissingAPIKey when the key is empty.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
