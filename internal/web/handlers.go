package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/justestif/go-mood-tunes/internal/auth"
	"github.com/justestif/go-mood-tunes/internal/catalog"
	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/logging"
	"github.com/justestif/go-mood-tunes/internal/recommend"
	"github.com/justestif/go-mood-tunes/internal/spotify"
	"github.com/justestif/go-mood-tunes/internal/validate"
)

const (
	stateCookieName = "oauth_state"
	maxBodyBytes    = 8 << 20
	historyRows     = 10
)

// Recommender produces recommendations and previews.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	Preview(ctx context.Context, heartRate, activity, mood float64) (*recommend.Preview, error)
	History(ctx context.Context, userID string, limit int) ([]db.MoodLog, error)
}

// Catalog imports and enriches songs.
type Catalog interface {
	Import(ctx context.Context, records []catalog.Record) (*catalog.ImportResult, error)
	Enrich(ctx context.Context, limit int) (*catalog.EnrichResult, error)
}

// Authenticator runs the Spotify login flow.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, expectedState string, r *http.Request) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, token *oauth2.Token) (*spotify.User, error)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	recommender Recommender
	catalog     Catalog
	auth        Authenticator
	sessions    SessionManager
	templates   *Templates
	logger      *logging.Logger
	defaults    SliderData
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(h.sessions, r)

	data := HomePageData{
		PageData: PageData{
			Title:       "Mood Tunes",
			CurrentPath: r.URL.Path,
		},
		Authenticated: session != nil,
		LoginEnabled:  h.auth != nil,
		Sliders:       h.defaults,
	}

	if session != nil {
		data.User = &UserData{
			ID:   session.UserID,
			Name: session.UserName,
		}
		logs, err := h.recommender.History(r.Context(), session.UserID, historyRows)
		if err != nil {
			h.logger.Warn("failed to load mood history", logging.String("user_id", session.UserID), logging.Err(err))
		}
		for _, l := range logs {
			data.History = append(data.History, MoodLogData{
				Category:  l.Category,
				HeartRate: l.HeartRate,
				Activity:  l.Activity,
				Mood:      l.Mood,
				CreatedAt: l.CreatedAt,
			})
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "home", data); err != nil {
		h.logger.Error("failed to render home", logging.Err(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
}

// Recommend classifies a mood reading and returns songs (POST /recommend).
// JSON bodies and form posts are both accepted; the response is JSON when the
// client asks for it and an HTML fragment otherwise.
func (h *Handlers) Recommend(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRecommendRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if session := sessionFromRequest(h.sessions, r); session != nil {
		req.UserID = session.UserID
	}

	resp, err := h.recommender.Recommend(r.Context(), req)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	h.renderPartial(w, "recommendations", RecommendationsData{
		Category:    resp.Category.String(),
		TimeOfDay:   resp.TimeOfDay,
		Memberships: membershipData(resp.Memberships),
		Songs:       resp.Songs,
	})
}

// Preview scores the sliders with the adjusted strategy (GET /preview).
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var vals [3]float64
	for i, key := range []string{"heart_rate", "activity", "mood"} {
		v, err := parseFloat(q.Get(key), key)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		vals[i] = v
	}

	p, err := h.recommender.Preview(r.Context(), vals[0], vals[1], vals[2])
	if err != nil {
		h.serviceError(w, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, p)
		return
	}
	h.renderPartial(w, "preview", PreviewData{
		Top:         p.Top.String(),
		Classified:  p.Classified.String(),
		Disagrees:   p.Disagrees,
		Memberships: membershipData(p.Memberships),
	})
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	token, err := h.auth.Exchange(r.Context(), stateCookie.Value, r)
	switch {
	case errors.Is(err, auth.ErrStateMismatch):
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	case errors.Is(err, auth.ErrDenied):
		http.Error(w, fmt.Sprintf("Spotify auth error: %v", err), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("token exchange failed", logging.Err(err))
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), token)
	if err != nil {
		h.logger.Error("failed to get user info", logging.Err(err))
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	session, err := h.sessions.Create(r.Context(), user)
	if err != nil {
		h.logger.Error("failed to create session", logging.String("user_id", user.ID), logging.Err(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, session)
	h.logger.Info("user signed in", logging.String("user_id", user.ID))
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(h.sessions, r)
	if session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}

	clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Import adds songs to the catalogue (POST /admin/import).
// The body is a JSON or YAML list of songs, or an object with a "songs" list.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("reading body: %w", err))
		return
	}

	records, err := catalog.ParseRecords(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.catalog.Import(r.Context(), records)
	if err != nil {
		h.logger.Error("catalogue import failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, errors.New("import failed"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Enrich runs one enrichment pass (POST /admin/enrich?limit=N).
func (h *Handlers) Enrich(w http.ResponseWriter, r *http.Request) {
	limit := catalog.DefaultEnrichLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	result, err := h.catalog.Enrich(r.Context(), limit)
	var cooldown *catalog.CooldownError
	switch {
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", cooldown.NextAllowed.UTC().Format(http.TimeFormat))
		writeError(w, http.StatusTooManyRequests, err)
		return
	case errors.Is(err, catalog.ErrEnrichRunning):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		h.logger.Error("enrichment failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, errors.New("enrichment failed"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// serviceError maps recommendation errors to responses.
func (h *Handlers) serviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, recommend.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.logger.Error("recommendation failed", logging.Err(err))
	writeError(w, http.StatusInternalServerError, errors.New("recommendation failed"))
}

func (h *Handlers) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderPartial(w, name, data); err != nil {
		h.logger.Error("failed to render partial", logging.String("partial", name), logging.Err(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// decodeRecommendRequest reads a JSON body or form values.
func decodeRecommendRequest(w http.ResponseWriter, r *http.Request) (recommend.Request, error) {
	var req recommend.Request

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("decoding request: %w", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("parsing form: %w", err)
	}

	var err error
	if req.HeartRate, err = parseFloat(r.PostForm.Get("heart_rate"), "heart_rate"); err != nil {
		return req, err
	}
	if req.Activity, err = parseFloat(r.PostForm.Get("activity"), "activity"); err != nil {
		return req, err
	}
	if req.Mood, err = parseFloat(r.PostForm.Get("mood"), "mood"); err != nil {
		return req, err
	}
	if raw := r.PostForm.Get("time_of_day"); raw != "" {
		hour, err := parseFloat(raw, "time_of_day")
		if err != nil {
			return req, err
		}
		req.TimeOfDay = &hour
	}
	if raw := r.PostForm.Get("count"); raw != "" {
		if req.Count, err = strconv.Atoi(raw); err != nil {
			return req, errors.New("count must be an integer")
		}
	}
	for _, v := range r.PostForm["languages"] {
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				req.Languages = append(req.Languages, l)
			}
		}
	}
	return req, nil
}

func parseFloat(raw, field string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", field)
	}
	return v, nil
}

// wantsJSON reports whether the client prefers JSON over an HTML fragment.
// HTMX requests always get HTML.
func wantsJSON(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

type errorResponse struct {
	Error  string                `json:"error"`
	Fields []validate.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var fields validate.Errors
	if errors.As(err, &fields) {
		resp.Fields = fields
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
