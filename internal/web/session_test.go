package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/spotify"
)

var ada = &spotify.User{ID: "user-1", DisplayName: "Ada", Email: "ada@example.com"}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	session, err := store.Create(context.Background(), ada)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if !session.ExpiresAt.Equal(now.Add(sessionTTL)) {
		t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, now.Add(sessionTTL))
	}

	if got := store.Get(context.Background(), session.ID); got == nil || got.UserName != "Ada" {
		t.Fatalf("Get() = %+v, want Ada's session", got)
	}

	now = now.Add(sessionTTL)
	if got := store.Get(context.Background(), session.ID); got != nil {
		t.Errorf("Get() after expiry = %+v, want nil", got)
	}
	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(context.Background(), ada)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	store.Delete(context.Background(), session.ID)

	if got := store.Get(context.Background(), session.ID); got != nil {
		t.Errorf("Get() after Delete = %+v, want nil", got)
	}
}

func TestSessionCookies(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(context.Background(), ada)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := httptest.NewRecorder()
	setSessionCookie(rec, session)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName || !cookies[0].HttpOnly {
		t.Fatalf("setSessionCookie() cookies = %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	if got := sessionFromRequest(store, req); got == nil || got.ID != session.ID {
		t.Errorf("sessionFromRequest() = %+v, want %s", got, session.ID)
	}

	if got := sessionFromRequest(store, httptest.NewRequest(http.MethodGet, "/", nil)); got != nil {
		t.Errorf("sessionFromRequest() without cookie = %+v, want nil", got)
	}

	rec = httptest.NewRecorder()
	clearSessionCookie(rec)
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("clearSessionCookie() cookies = %+v, want expired cookie", c)
	}
}

type fakeUserRepo struct {
	users map[string]db.User
	err   error
}

func (f *fakeUserRepo) Upsert(_ context.Context, u *db.User) error {
	if f.err != nil {
		return f.err
	}
	f.users[u.ID] = *u
	return nil
}

type fakeSessionRepo struct {
	users    *fakeUserRepo
	sessions map[string]db.Session
	getErr   error
}

func (f *fakeSessionRepo) Create(_ context.Context, s *db.Session) error {
	s.CreatedAt = time.Now()
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessionRepo) GetActive(_ context.Context, id string) (*db.ActiveSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &db.ActiveSession{Session: s, DisplayName: f.users.users[s.UserID].DisplayName}, nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func newDBStore() (*DBSessionStore, *fakeUserRepo, *fakeSessionRepo) {
	users := &fakeUserRepo{users: map[string]db.User{}}
	sessions := &fakeSessionRepo{users: users, sessions: map[string]db.Session{}}
	return NewDBSessionStore(users, sessions, nil), users, sessions
}

func TestDBSessionStore(t *testing.T) {
	store, users, sessions := newDBStore()

	session, err := store.Create(context.Background(), ada)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := users.users["user-1"]; got.Email != "ada@example.com" {
		t.Errorf("stored user = %+v, want email saved", got)
	}
	if _, ok := sessions.sessions[session.ID]; !ok {
		t.Fatalf("session %s not stored", session.ID)
	}

	got := store.Get(context.Background(), session.ID)
	if got == nil || got.UserID != "user-1" || got.UserName != "Ada" {
		t.Fatalf("Get() = %+v, want Ada's session", got)
	}

	store.Delete(context.Background(), session.ID)
	if got := store.Get(context.Background(), session.ID); got != nil {
		t.Errorf("Get() after Delete = %+v, want nil", got)
	}
}

func TestDBSessionStoreErrors(t *testing.T) {
	store, users, sessions := newDBStore()

	users.err = errors.New("boom")
	if _, err := store.Create(context.Background(), ada); err == nil {
		t.Error("Create() with failing user repo: want error")
	}
	if len(sessions.sessions) != 0 {
		t.Errorf("session stored despite user failure")
	}

	sessions.getErr = errors.New("connection reset")
	if got := store.Get(context.Background(), "any"); got != nil {
		t.Errorf("Get() with failing repo = %+v, want nil", got)
	}
}
