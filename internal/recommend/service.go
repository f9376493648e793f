// Package recommend turns a mood reading into a list of songs from the
// catalogue, falling back to neighbouring categories and then to random songs
// when a category runs short.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/fuzzy"
	"github.com/justestif/go-mood-tunes/internal/logging"
	"github.com/justestif/go-mood-tunes/internal/metrics"
	"github.com/justestif/go-mood-tunes/internal/validate"
)

// ErrInvalidRequest is returned when a request fails validation.
var ErrInvalidRequest = errors.New("invalid recommendation request")

// Defaults.
const (
	DefaultCount   = 10
	MaxCount       = 50
	historyLimit   = 20
	maxHistoryRows = 100
)

// Stages of the recommendation cascade.
const (
	StagePrimary   = metrics.StagePrimary
	StageSecondary = metrics.StageSecondary
	StageRandom    = metrics.StageRandom
)

// SongStore is the subset of the song repository used for recommendations.
type SongStore interface {
	ByCategory(ctx context.Context, category string, languages []string, exclude []uuid.UUID, limit int) ([]db.Song, error)
	Random(ctx context.Context, exclude []uuid.UUID, limit int) ([]db.Song, error)
}

// HistoryStore persists mood logs for signed-in users.
type HistoryStore interface {
	Create(ctx context.Context, log *db.MoodLog) error
	ListForUser(ctx context.Context, userID string, limit int) ([]db.MoodLog, error)
}

// Service produces recommendations.
type Service struct {
	songs    SongStore
	history  HistoryStore
	metrics  *metrics.Manager
	logger   *logging.Logger
	now      func() time.Time
	defCount int
	maxCount int
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records a mood log for every request that carries a user ID.
func WithHistory(h HistoryStore) Option {
	return func(s *Service) { s.history = h }
}

// WithMetrics records classification and cascade metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l.Named("recommend") }
}

// WithClock sets the clock used when a request has no time of day.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCounts sets the default and maximum number of songs per request.
// Values outside 1..MaxCount are ignored.
func WithCounts(def, max int) Option {
	return func(s *Service) {
		if max > 0 && max <= MaxCount {
			s.maxCount = max
		}
		if def > 0 && def <= s.maxCount {
			s.defCount = def
		}
	}
}

// New creates a recommendation service.
func New(songs SongStore, opts ...Option) *Service {
	s := &Service{
		songs:    songs,
		logger:   logging.Nop(),
		now:      time.Now,
		defCount: DefaultCount,
		maxCount: MaxCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is a mood reading plus delivery options. Slider ranges are advisory;
// out-of-range values are scored as-is.
type Request struct {
	HeartRate float64  `json:"heart_rate" validate:"finite"`
	TimeOfDay *float64 `json:"time_of_day,omitempty" validate:"omitempty,finite"` // nil uses the service clock
	Activity  float64  `json:"activity" validate:"finite"`
	Mood      float64  `json:"mood" validate:"finite"`
	Count     int      `json:"count" default:"10" validate:"min=1,max=50"`
	Languages []string `json:"languages,omitempty" validate:"max=10,dive,required,max=32"`
	UserID    string   `json:"-"`
}

// Song is a recommended song and the cascade stage that produced it.
type Song struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album,omitempty"`
	Language    string    `json:"language"`
	Genres      []string  `json:"genres,omitempty"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	PreviewURL  string    `json:"preview_url,omitempty"`
	ExternalURL string    `json:"external_url,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Stage       string    `json:"stage"`
}

// Response is the outcome of Recommend.
type Response struct {
	Category    fuzzy.Category    `json:"category"`
	Memberships fuzzy.Memberships `json:"memberships"`
	TimeOfDay   float64           `json:"time_of_day"`
	Songs       []Song            `json:"songs"`
}

// Recommend classifies the reading and fills up to Count songs: first from the
// dominant category, then from the remaining categories by descending
// membership, then from the whole catalogue. A song never appears twice.
// Language filters apply to the first two stages only.
func (s *Service) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := s.now()

	if req.Count == 0 {
		req.Count = s.defCount
	}
	if err := validate.Struct(ctx, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Count = min(req.Count, s.maxCount)
	languages := normalizeLanguages(req.Languages)

	hour := fuzzy.HourOf(start)
	if req.TimeOfDay != nil {
		hour = *req.TimeOfDay
	}
	in := fuzzy.Input{
		HeartRate: req.HeartRate,
		TimeOfDay: hour,
		Activity:  req.Activity,
		Mood:      req.Mood,
	}
	result := fuzzy.Classify(in)
	s.metrics.RecordClassification(result.Dominant.String())

	songs, err := s.collect(ctx, result, req.Count, languages)
	if err != nil {
		return nil, err
	}

	if req.UserID != "" {
		s.logMood(ctx, req.UserID, in, result)
	}

	s.metrics.ObserveRecommend(s.now().Sub(start))
	s.logger.Debug("recommended songs",
		logging.String("category", result.Dominant.String()),
		logging.Int("requested", req.Count),
		logging.Int("returned", len(songs)),
	)

	return &Response{
		Category:    result.Dominant,
		Memberships: result.Memberships,
		TimeOfDay:   hour,
		Songs:       songs,
	}, nil
}

// collect runs the store cascade.
func (s *Service) collect(ctx context.Context, result fuzzy.Result, count int, languages []string) ([]Song, error) {
	out := make([]Song, 0, count)
	seen := make(map[uuid.UUID]bool, count)
	var exclude []uuid.UUID

	add := func(songs []db.Song, stage string) {
		added := 0
		for _, song := range songs {
			if len(out) >= count || seen[song.ID] {
				continue
			}
			seen[song.ID] = true
			exclude = append(exclude, song.ID)
			out = append(out, toSong(song, stage))
			added++
		}
		s.metrics.RecordRecommended(stage, added)
	}

	primary, err := s.songs.ByCategory(ctx, result.Dominant.String(), languages, exclude, count)
	if err != nil {
		return nil, fmt.Errorf("loading %s songs: %w", result.Dominant, err)
	}
	add(primary, StagePrimary)

	for _, c := range result.Memberships.Ranked() {
		if len(out) >= count {
			break
		}
		if c == result.Dominant {
			continue
		}
		songs, err := s.songs.ByCategory(ctx, c.String(), languages, exclude, count-len(out))
		if err != nil {
			return nil, fmt.Errorf("loading %s songs: %w", c, err)
		}
		add(songs, StageSecondary)
	}

	if len(out) < count {
		songs, err := s.songs.Random(ctx, exclude, count-len(out))
		if err != nil {
			return nil, fmt.Errorf("loading random songs: %w", err)
		}
		add(songs, StageRandom)
	}

	return out, nil
}

// logMood stores the reading. Failures are logged, never returned.
func (s *Service) logMood(ctx context.Context, userID string, in fuzzy.Input, result fuzzy.Result) {
	if s.history == nil {
		return
	}
	entry := &db.MoodLog{
		UserID:      userID,
		HeartRate:   in.HeartRate,
		TimeOfDay:   in.TimeOfDay,
		Activity:    in.Activity,
		Mood:        in.Mood,
		Category:    result.Dominant.String(),
		Memberships: result.Memberships.Map(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to save mood log", logging.String("user_id", userID), logging.Err(err))
	}
}

// History returns a user's most recent mood logs, newest first.
// It returns nil when no history store is configured.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]db.MoodLog, error) {
	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = historyLimit
	}
	limit = min(limit, maxHistoryRows)
	logs, err := s.history.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading mood history: %w", err)
	}
	return logs, nil
}

// Preview is the adjusted-membership view of a reading alongside the
// category Classify would pick for the same reading.
type Preview struct {
	Memberships fuzzy.Memberships `json:"memberships"`
	Top         fuzzy.Category    `json:"top"`
	Classified  fuzzy.Category    `json:"classified"`
	Disagrees   bool              `json:"disagrees"`
	TimeOfDay   float64           `json:"time_of_day"`
}

// Preview scores the sliders with ComputeAdjustedMemberships at the current
// time. The two scoring paths can pick different top categories; each
// disagreement is counted.
func (s *Service) Preview(ctx context.Context, heartRate, activity, mood float64) (*Preview, error) {
	reading := struct {
		HeartRate float64 `json:"heart_rate" validate:"finite"`
		Activity  float64 `json:"activity" validate:"finite"`
		Mood      float64 `json:"mood" validate:"finite"`
	}{heartRate, activity, mood}
	if err := validate.Struct(ctx, &reading); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	now := s.now()
	adjusted := fuzzy.ComputeAdjustedMemberships(heartRate, activity, mood, now)
	classified := fuzzy.Classify(fuzzy.Input{
		HeartRate: heartRate,
		TimeOfDay: fuzzy.HourOf(now),
		Activity:  activity,
		Mood:      mood,
	})

	p := &Preview{
		Memberships: adjusted,
		Top:         adjusted.Top(),
		Classified:  classified.Dominant,
		TimeOfDay:   fuzzy.HourOf(now),
	}
	if p.Top != p.Classified {
		p.Disagrees = true
		s.metrics.RecordDisagreement()
		s.logger.Debug("scoring strategies disagree",
			logging.String("adjusted", p.Top.String()),
			logging.String("classified", p.Classified.String()),
		)
	}
	return p, nil
}

func normalizeLanguages(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, l := range in {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func toSong(s db.Song, stage string) Song {
	return Song{
		ID:          s.ID,
		Title:       s.Title,
		Artist:      s.Artist,
		Album:       deref(s.Album),
		Language:    s.Language,
		Genres:      s.Genres,
		Description: deref(s.Description),
		Category:    deref(s.Category),
		PreviewURL:  deref(s.PreviewURL),
		ExternalURL: deref(s.ExternalURL),
		ImageURL:    deref(s.ImageURL),
		Stage:       stage,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
