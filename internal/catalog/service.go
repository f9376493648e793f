// Package catalog imports songs into the catalogue and enriches them with
// Spotify and Last.fm metadata before assigning mood categories.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-mood-tunes/internal/clustering"
	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/lastfm"
	"github.com/justestif/go-mood-tunes/internal/logging"
	"github.com/justestif/go-mood-tunes/internal/metrics"
	"github.com/justestif/go-mood-tunes/internal/spotify"
)

// Common errors.
var (
	// ErrEnrichRunning is returned when an enrichment pass is already in progress.
	ErrEnrichRunning = errors.New("enrichment already running")

	// ErrEnrichTooRecent is returned when enrichment is attempted within the cooldown period.
	ErrEnrichTooRecent = errors.New("enrichment attempted too recently")
)

// Defaults.
const (
	DefaultConcurrency    = 5
	DefaultEnrichLimit    = 200
	DefaultEnrichCooldown = time.Minute
	importBatchSize       = 500
)

// Store is the subset of the song repository the catalogue needs.
type Store interface {
	UpsertBatch(ctx context.Context, songs []db.Song) (int64, error)
	ListUnenriched(ctx context.Context, limit int) ([]db.Song, error)
	ListUncategorized(ctx context.Context, limit int) ([]db.Song, error)
	UpdateEnrichment(ctx context.Context, id uuid.UUID, e db.Enrichment) error
	UpdateCategory(ctx context.Context, id uuid.UUID, category string) error
}

// TrackSearcher abstracts the Spotify client for testing.
type TrackSearcher interface {
	SearchTrack(ctx context.Context, title, artist string) (*spotify.TrackMatch, error)
	FetchAudioFeatures(ctx context.Context, ids []string) (map[string]clustering.Features, error)
}

// TagFetcher abstracts the Last.fm client for testing.
type TagFetcher interface {
	GetTags(ctx context.Context, artist, track string) ([]lastfm.Tag, error)
}

// Service imports and enriches catalogue songs.
type Service struct {
	store    Store
	spotify  TrackSearcher
	tags     TagFetcher
	metrics  *metrics.Manager
	logger   *logging.Logger
	clusters clustering.Config

	concurrency int
	cooldown    time.Duration
	now         func() time.Time

	mu         sync.Mutex
	running    bool
	lastEnrich time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSpotify enables Spotify search and audio features during enrichment.
func WithSpotify(s TrackSearcher) Option {
	return func(svc *Service) { svc.spotify = s }
}

// WithTagFetcher enables Last.fm descriptions and genres during enrichment.
func WithTagFetcher(f TagFetcher) Option {
	return func(svc *Service) { svc.tags = f }
}

// WithMetrics records import and enrichment outcomes.
func WithMetrics(m *metrics.Manager) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(svc *Service) { svc.logger = l.Named("catalog") }
}

// WithConcurrency sets the number of concurrent lookups.
func WithConcurrency(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.concurrency = n
		}
	}
}

// WithEnrichCooldown sets the minimum time between enrichment passes.
func WithEnrichCooldown(d time.Duration) Option {
	return func(svc *Service) { svc.cooldown = d }
}

// WithClusterConfig overrides the grouping used for categorization.
func WithClusterConfig(cfg clustering.Config) Option {
	return func(svc *Service) { svc.clusters = cfg }
}

// New creates a catalogue service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      logging.Nop(),
		clusters:    clustering.DefaultConfig(),
		concurrency: DefaultConcurrency,
		cooldown:    DefaultEnrichCooldown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RowError reports a record that could not be imported.
type RowError struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Received   int        `json:"received"`
	Imported   int        `json:"imported"`
	Duplicates int        `json:"duplicates"`
	Invalid    []RowError `json:"invalid,omitempty"`
}

// Import validates records, drops duplicates by case-insensitive title and
// artist, and upserts the rest. Invalid rows are reported, not fatal.
func (s *Service) Import(ctx context.Context, records []Record) (*ImportResult, error) {
	result := &ImportResult{Received: len(records)}

	seen := make(map[string]bool, len(records))
	songs := make([]db.Song, 0, len(records))
	for i, r := range records {
		r.normalize()
		if err := validateRecord(ctx, &r); err != nil {
			result.Invalid = append(result.Invalid, RowError{Index: i, Title: r.Title, Error: err.Error()})
			continue
		}
		key := db.SongKey(r.Title, r.Artist)
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true
		songs = append(songs, r.toSong())
	}

	for start := 0; start < len(songs); start += importBatchSize {
		batch := songs[start:min(start+importBatchSize, len(songs))]
		n, err := s.store.UpsertBatch(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("importing songs: %w", err)
		}
		result.Imported += int(n)
	}

	s.metrics.RecordImported(result.Imported)
	s.logger.Info("catalogue import finished",
		logging.Int("received", result.Received),
		logging.Int("imported", result.Imported),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}
