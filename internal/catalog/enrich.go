package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justestif/go-mood-tunes/internal/clustering"
	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/lastfm"
	"github.com/justestif/go-mood-tunes/internal/logging"
	"github.com/justestif/go-mood-tunes/internal/metrics"
	"github.com/justestif/go-mood-tunes/internal/spotify"
)

// maxGenres is how many Last.fm tags are kept as genres.
const maxGenres = 5

// SongError reports a song whose enrichment failed.
type SongError struct {
	SongID string `json:"song_id"`
	Title  string `json:"title"`
	Error  string `json:"error"`
}

// EnrichResult summarizes an enrichment pass.
type EnrichResult struct {
	Processed   int         `json:"processed"`
	Matched     int         `json:"matched"`
	NoMatch     int         `json:"no_match"`
	Skipped     int         `json:"skipped"`
	Failed      int         `json:"failed"`
	Categorized int         `json:"categorized"`
	Errors      []SongError `json:"errors,omitempty"`
}

// CooldownError is returned when a pass is requested before NextAllowed.
type CooldownError struct {
	NextAllowed time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: next pass allowed at %s", ErrEnrichTooRecent, e.NextAllowed.Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error { return ErrEnrichTooRecent }

// songLookup is the outcome of looking up one song.
type songLookup struct {
	song       db.Song
	enrichment db.Enrichment
	outcome    string
	err        error
}

// Enrich looks up to limit unenriched songs on Spotify and Last.fm, stores the
// results, and then categorizes songs that have audio features. Only one pass
// runs at a time. Per-song failures are reported in the result. Failed songs,
// and songs skipped because no Spotify client is configured, stay unenriched
// so a later pass retries them.
func (s *Service) Enrich(ctx context.Context, limit int) (*EnrichResult, error) {
	if limit <= 0 {
		limit = DefaultEnrichLimit
	}
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.finish()

	songs, err := s.store.ListUnenriched(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unenriched songs: %w", err)
	}

	lookups := s.lookupAll(ctx, songs)
	s.attachFeatures(ctx, lookups)

	result := &EnrichResult{Processed: len(lookups)}
	for i := range lookups {
		l := &lookups[i]
		if l.err == nil && l.hasUpdates() {
			if err := s.store.UpdateEnrichment(ctx, l.song.ID, l.enrichment); err != nil {
				l.outcome, l.err = metrics.EnrichFailed, fmt.Errorf("saving enrichment: %w", err)
			}
		}

		s.metrics.RecordEnrich(l.outcome)
		switch l.outcome {
		case metrics.EnrichOK:
			result.Matched++
		case metrics.EnrichNoMatch:
			result.NoMatch++
		case metrics.EnrichSkipped:
			result.Skipped++
		case metrics.EnrichFailed:
			result.Failed++
			result.Errors = append(result.Errors, SongError{
				SongID: l.song.ID.String(),
				Title:  l.song.Title,
				Error:  l.err.Error(),
			})
		}
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	categorized, err := s.Categorize(ctx, limit)
	result.Categorized = categorized
	if err != nil {
		return result, err
	}

	s.logger.Info("catalogue enrichment finished",
		logging.Int("processed", result.Processed),
		logging.Int("matched", result.Matched),
		logging.Int("no_match", result.NoMatch),
		logging.Int("failed", result.Failed),
		logging.Int("categorized", result.Categorized),
	)
	return result, nil
}

func (s *Service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrEnrichRunning
	}
	if !s.lastEnrich.IsZero() {
		next := s.lastEnrich.Add(s.cooldown)
		if s.now().Before(next) {
			return &CooldownError{NextAllowed: next}
		}
	}
	s.running = true
	s.lastEnrich = s.now()
	return nil
}

func (s *Service) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// lookupAll runs lookupSong over songs with a worker pool.
// Results are returned in the same order as input songs.
func (s *Service) lookupAll(ctx context.Context, songs []db.Song) []songLookup {
	results := make([]songLookup, len(songs))

	type workItem struct {
		index int
		song  db.Song
	}
	workCh := make(chan workItem, len(songs))
	for i, song := range songs {
		workCh <- workItem{index: i, song: song}
	}
	close(workCh)

	var wg sync.WaitGroup
	for range min(s.concurrency, len(songs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if err := ctx.Err(); err != nil {
					results[work.index] = songLookup{song: work.song, outcome: metrics.EnrichFailed, err: err}
					continue
				}
				results[work.index] = s.lookupSong(ctx, work.song)
			}
		}()
	}
	wg.Wait()

	return results
}

func (s *Service) lookupSong(ctx context.Context, song db.Song) songLookup {
	l := songLookup{song: song, outcome: metrics.EnrichSkipped}

	if s.spotify != nil {
		match, err := s.spotify.SearchTrack(ctx, song.Title, song.Artist)
		switch {
		case errors.Is(err, spotify.ErrNoMatch):
			l.outcome = metrics.EnrichNoMatch
			l.enrichment.Searched = true
		case err != nil:
			l.outcome, l.err = metrics.EnrichFailed, err
			return l
		default:
			l.outcome = metrics.EnrichOK
			l.enrichment.Searched = true
			applyMatch(&l.enrichment, match)
		}
	}

	if s.tags != nil {
		tags, err := s.tags.GetTags(ctx, song.Artist, song.Title)
		if err != nil {
			// Tags are decoration; the Spotify result still counts.
			s.logger.Warn("fetching tags failed",
				logging.String("song_id", song.ID.String()),
				logging.Err(err),
			)
		} else {
			applyTags(&l.enrichment, song, tags)
		}
	}

	return l
}

// attachFeatures fetches audio features for every matched song in one batched call.
func (s *Service) attachFeatures(ctx context.Context, lookups []songLookup) {
	if s.spotify == nil {
		return
	}

	var ids []string
	for _, l := range lookups {
		if l.err == nil && l.enrichment.SpotifyID != nil {
			ids = append(ids, *l.enrichment.SpotifyID)
		}
	}
	if len(ids) == 0 {
		return
	}

	features, err := s.spotify.FetchAudioFeatures(ctx, ids)
	if err != nil {
		// Songs keep their match; categorization waits for a later pass.
		s.logger.Warn("fetching audio features failed", logging.Int("tracks", len(ids)), logging.Err(err))
		return
	}

	for i := range lookups {
		e := &lookups[i].enrichment
		if e.SpotifyID == nil {
			continue
		}
		if f, ok := features[*e.SpotifyID]; ok {
			e.Features = &db.AudioFeatures{
				Energy:       f.Energy,
				Valence:      f.Valence,
				Danceability: f.Danceability,
				Acousticness: f.Acousticness,
				Tempo:        f.Tempo,
			}
		}
	}
}

// hasUpdates reports whether writing l changes the stored song.
func (l *songLookup) hasUpdates() bool {
	e := l.enrichment
	return e.Searched || e.Description != nil || len(e.Genres) > 0
}

func applyMatch(e *db.Enrichment, m *spotify.TrackMatch) {
	e.SpotifyID = optional(m.ID)
	e.Album = optional(m.Album)
	e.PreviewURL = optional(m.PreviewURL)
	e.ExternalURL = optional(m.ExternalURL)
	e.ImageURL = optional(m.ImageURL)
}

// applyTags fills description and genres, leaving curated values alone.
func applyTags(e *db.Enrichment, song db.Song, tags []lastfm.Tag) {
	if song.Description == nil {
		e.Description = optional(lastfm.Describe(tags))
	}
	if len(song.Genres) == 0 {
		e.Genres = lastfm.Genres(tags, maxGenres)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Categorize assigns mood categories to up to limit songs that have audio
// features but no category. It returns the number of songs updated.
func (s *Service) Categorize(ctx context.Context, limit int) (int, error) {
	songs, err := s.store.ListUncategorized(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing uncategorized songs: %w", err)
	}
	if len(songs) == 0 {
		return 0, nil
	}

	tracks := make([]clustering.Track, 0, len(songs))
	byID := make(map[string]db.Song, len(songs))
	for _, song := range songs {
		t := clustering.Track{ID: song.ID.String(), Title: song.Title, Artist: song.Artist}
		if f := song.Features; f != nil {
			t.Features = &clustering.Features{
				Energy:       f.Energy,
				Valence:      f.Valence,
				Danceability: f.Danceability,
				Acousticness: f.Acousticness,
				Tempo:        f.Tempo,
			}
		}
		tracks = append(tracks, t)
		byID[t.ID] = song
	}

	assignments := clustering.DetectMoodGroups(tracks, s.clusters).Assignments()

	updated := 0
	for id, category := range assignments {
		if err := s.store.UpdateCategory(ctx, byID[id].ID, category.String()); err != nil {
			return updated, fmt.Errorf("categorizing %s: %w", id, err)
		}
		updated++
	}
	return updated, nil
}
