// Package auth handles the Spotify OAuth2 login flow for web users.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	spotifyapi "github.com/justestif/go-mood-tunes/internal/spotify"
)

var (
	// ErrMissingCredentials is returned when the client ID or secret is empty.
	ErrMissingCredentials = errors.New("missing Spotify client ID or secret")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrDenied is returned when the user declines the authorization request.
	ErrDenied = errors.New("spotify authorization denied")
)

// Config holds the Spotify application settings.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL must match the Spotify app configuration.
	RedirectURL string
}

// Authenticator handles Spotify OAuth2 authentication.
type Authenticator struct {
	auth *spotifyauth.Authenticator
}

// New creates an Authenticator requesting read access to the user's profile.
// Returns ErrMissingCredentials if either credential is empty.
func New(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserReadEmail,
		),
	)

	return &Authenticator{auth: auth}, nil
}

// AuthURL returns the Spotify consent page URL for state.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange validates the callback request against expectedState and trades
// the authorization code for a token.
func (a *Authenticator) Exchange(ctx context.Context, expectedState string, r *http.Request) (*oauth2.Token, error) {
	if expectedState == "" || r.URL.Query().Get("state") != expectedState {
		return nil, ErrStateMismatch
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		return nil, fmt.Errorf("%w: %s", ErrDenied, errMsg)
	}

	token, err := a.auth.Token(ctx, expectedState, r)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}
	return token, nil
}

// Client returns an API client acting as the token's user.
// oauth2 refreshes the token as needed.
func (a *Authenticator) Client(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true))
}

// CurrentUser looks up the profile of the token's user.
func (a *Authenticator) CurrentUser(ctx context.Context, token *oauth2.Token) (*spotifyapi.User, error) {
	return spotifyapi.New(a.Client(ctx, token)).CurrentUser(ctx)
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
