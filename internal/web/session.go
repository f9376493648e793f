// Package web provides the HTTP server, JSON API and HTMX UI for mood tunes.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/logging"
	"github.com/justestif/go-mood-tunes/internal/spotify"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session is a signed-in visitor.
type Session struct {
	ID        string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// SessionManager creates and resolves sessions. Get returns nil for unknown
// or expired sessions.
type SessionManager interface {
	Create(ctx context.Context, user *spotify.User) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
}

// sessionFromRequest resolves the session named by the request cookie.
func sessionFromRequest(m SessionManager, r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return m.Get(r.Context(), cookie.Value)
}

// SessionStore keeps sessions in memory. It suits tests and single-process
// deployments without mood history.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionStore creates an empty in-memory store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Create starts a session for user.
func (s *SessionStore) Create(_ context.Context, user *spotify.User) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := Session{
		ID:        id,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		ExpiresAt: s.now().Add(sessionTTL),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return &session, nil
}

// Get returns the session with id, or nil.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(session.ExpiresAt) {
		return nil
	}
	return &session
}

// Delete ends a session.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep drops expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// SessionRepository is the persistence used by DBSessionStore.
type SessionRepository interface {
	Create(ctx context.Context, session *db.Session) error
	GetActive(ctx context.Context, id string) (*db.ActiveSession, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository records signed-in users.
type UserRepository interface {
	Upsert(ctx context.Context, user *db.User) error
}

// DBSessionStore keeps sessions in PostgreSQL next to the user rows that
// mood logs reference.
type DBSessionStore struct {
	users    UserRepository
	sessions SessionRepository
	logger   *logging.Logger
	now      func() time.Time
}

// NewDBSessionStore creates a database-backed store.
func NewDBSessionStore(users UserRepository, sessions SessionRepository, logger *logging.Logger) *DBSessionStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DBSessionStore{
		users:    users,
		sessions: sessions,
		logger:   logger.Named("sessions"),
		now:      time.Now,
	}
}

// Create saves the user profile, then a session for it.
func (s *DBSessionStore) Create(ctx context.Context, user *spotify.User) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	u := &db.User{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, err
	}

	row := &db.Session{ID: id, UserID: user.ID, ExpiresAt: s.now().Add(sessionTTL)}
	if err := s.sessions.Create(ctx, row); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		UserID:    user.ID,
		UserName:  u.DisplayName,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// Get returns the session with id, or nil. Lookup failures other than a
// missing session are logged.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	as, err := s.sessions.GetActive(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warn("session lookup failed", logging.Err(err))
		}
		return nil
	}
	return &Session{
		ID:        as.ID,
		UserID:    as.UserID,
		UserName:  as.DisplayName,
		ExpiresAt: as.ExpiresAt,
	}
}

// Delete ends a session.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.Warn("session delete failed", logging.Err(err))
	}
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func setSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
