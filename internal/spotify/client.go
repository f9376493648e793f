// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justestif/go-mood-tunes/internal/cache"
	"github.com/justestif/go-mood-tunes/internal/logging"
)

// ErrNoMatch is returned when a search finds no track.
var ErrNoMatch = errors.New("no matching track")

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api      *spotify.Client
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache caches search results, including misses, for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithLogger reports cache failures through logger.
func WithLogger(logger *logging.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger.Named("spotify")
		}
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{api: api, logger: logging.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppConfig configures an application (non-user) client.
type AppConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL and BaseURL override the Spotify endpoints. Empty means the defaults.
	TokenURL string
	BaseURL  string
}

// NewAppClient creates a client authenticated with the client-credentials
// flow. It can search and read audio features but has no user context.
func NewAppClient(ctx context.Context, cfg AppConfig, opts ...Option) *Client {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}

	apiOpts := []spotify.ClientOption{spotify.WithRetry(true)}
	if cfg.BaseURL != "" {
		apiOpts = append(apiOpts, spotify.WithBaseURL(cfg.BaseURL))
	}
	return New(spotify.New(cc.Client(ctx), apiOpts...), opts...)
}

// User is the signed-in Spotify user.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// CurrentUser returns the profile of the user the client is authenticated as.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	name := user.DisplayName
	if name == "" {
		name = string(user.ID)
	}
	return &User{
		ID:          string(user.ID),
		DisplayName: name,
		Email:       user.Email,
	}, nil
}
