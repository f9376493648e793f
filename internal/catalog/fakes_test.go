package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/justestif/go-mood-tunes/internal/clustering"
	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/lastfm"
	"github.com/justestif/go-mood-tunes/internal/spotify"
)

// memStore implements Store in memory.
type memStore struct {
	mu          sync.Mutex
	songs       map[uuid.UUID]*db.Song
	order       []uuid.UUID
	enrichments map[uuid.UUID]db.Enrichment
	upsertCalls int
	upsertErr   error
	updateErr   error
}

func newMemStore(songs ...db.Song) *memStore {
	s := &memStore{
		songs:       make(map[uuid.UUID]*db.Song),
		enrichments: make(map[uuid.UUID]db.Enrichment),
	}
	for _, song := range songs {
		s.add(song)
	}
	return s
}

func (s *memStore) add(song db.Song) {
	if song.ID == uuid.Nil {
		song.ID = uuid.New()
	}
	s.songs[song.ID] = &song
	s.order = append(s.order, song.ID)
}

func (s *memStore) UpsertBatch(_ context.Context, songs []db.Song) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	for _, song := range songs {
		s.add(song)
	}
	return int64(len(songs)), nil
}

func (s *memStore) ListUnenriched(_ context.Context, limit int) ([]db.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Song
	for _, id := range s.order {
		if song := s.songs[id]; song.EnrichedAt == nil && len(out) < limit {
			out = append(out, *song)
		}
	}
	return out, nil
}

func (s *memStore) ListUncategorized(_ context.Context, limit int) ([]db.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Song
	for _, id := range s.order {
		if song := s.songs[id]; song.Category == nil && song.Features != nil && len(out) < limit {
			out = append(out, *song)
		}
	}
	return out, nil
}

func (s *memStore) UpdateEnrichment(_ context.Context, id uuid.UUID, e db.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	song, ok := s.songs[id]
	if !ok {
		return db.ErrNotFound
	}
	s.enrichments[id] = e
	if e.Searched {
		now := song.CreatedAt
		song.EnrichedAt = &now
	}
	if e.Description != nil {
		song.Description = e.Description
	}
	if len(e.Genres) > 0 {
		song.Genres = e.Genres
	}
	if e.SpotifyID != nil {
		song.SpotifyID = e.SpotifyID
	}
	if e.Features != nil {
		song.Features = e.Features
	}
	return nil
}

func (s *memStore) UpdateCategory(_ context.Context, id uuid.UUID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	if !ok {
		return db.ErrNotFound
	}
	song.Category = &category
	return nil
}

func (s *memStore) byTitle(title string) *db.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, song := range s.songs {
		if song.Title == title {
			return song
		}
	}
	return nil
}

// fakeSpotify implements TrackSearcher.
type fakeSpotify struct {
	matches      map[string]*spotify.TrackMatch // by title
	errs         map[string]error               // by title
	features     map[string]clustering.Features // by spotify ID
	featuresErr  error
	featureCalls atomic.Int32
}

func (f *fakeSpotify) SearchTrack(_ context.Context, title, _ string) (*spotify.TrackMatch, error) {
	if err, ok := f.errs[title]; ok {
		return nil, err
	}
	if m, ok := f.matches[title]; ok {
		return m, nil
	}
	return nil, spotify.ErrNoMatch
}

func (f *fakeSpotify) FetchAudioFeatures(_ context.Context, ids []string) (map[string]clustering.Features, error) {
	f.featureCalls.Add(1)
	if f.featuresErr != nil {
		return nil, f.featuresErr
	}
	out := make(map[string]clustering.Features)
	for _, id := range ids {
		if feat, ok := f.features[id]; ok {
			out[id] = feat
		}
	}
	return out, nil
}

// fakeTags implements TagFetcher.
type fakeTags struct {
	tags map[string][]lastfm.Tag // by title
	err  error
}

func (f *fakeTags) GetTags(_ context.Context, _, track string) ([]lastfm.Tag, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[track], nil
}

var errBoom = errors.New("boom")
