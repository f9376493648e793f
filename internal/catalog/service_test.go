package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-mood-tunes/internal/clustering"
	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/lastfm"
	"github.com/justestif/go-mood-tunes/internal/spotify"
)

func TestImport(t *testing.T) {
	store := newMemStore()
	svc := New(store)

	result, err := svc.Import(context.Background(), []Record{
		{Title: "Weightless", Artist: "Marconi Union"},
		{Title: "weightless ", Artist: "MARCONI UNION"},
		{Title: "", Artist: "Nobody"},
		{Title: "Happy", Artist: "Pharrell Williams", Category: "ecstatic"},
		{Title: "Levels", Artist: "Avicii", Language: "SV", Category: "Energetic"},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Received)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Duplicates)
	require.Len(t, result.Invalid, 2)
	assert.Equal(t, 2, result.Invalid[0].Index)
	assert.Contains(t, result.Invalid[0].Error, "title is required")
	assert.Equal(t, 3, result.Invalid[1].Index)
	assert.Contains(t, result.Invalid[1].Error, "category must be one of")

	weightless := store.byTitle("Weightless")
	require.NotNil(t, weightless)
	assert.Equal(t, "en", weightless.Language, "language defaults to en")

	levels := store.byTitle("Levels")
	require.NotNil(t, levels)
	assert.Equal(t, "sv", levels.Language)
	require.NotNil(t, levels.Category)
	assert.Equal(t, "energetic", *levels.Category)
}

func TestImportBatches(t *testing.T) {
	store := newMemStore()
	svc := New(store)

	records := make([]Record, importBatchSize+1)
	for i := range records {
		records[i] = Record{Title: fmt.Sprintf("Song %d", i), Artist: "Artist"}
	}

	result, err := svc.Import(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, importBatchSize+1, result.Imported)
	assert.Equal(t, 2, store.upsertCalls)
}

func TestImportStoreError(t *testing.T) {
	store := newMemStore()
	store.upsertErr = errBoom
	svc := New(store)

	_, err := svc.Import(context.Background(), []Record{{Title: "A", Artist: "B"}})
	assert.ErrorIs(t, err, errBoom)
}

func upbeatFeatures() clustering.Features {
	return clustering.Features{Energy: 0.95, Valence: 0.9, Danceability: 0.9, Acousticness: 0.05, Tempo: 150}
}

func TestEnrich(t *testing.T) {
	store := newMemStore(
		db.Song{Title: "Levels", Artist: "Avicii"},
		db.Song{Title: "Obscure", Artist: "Unknown"},
		db.Song{Title: "Broken", Artist: "Flaky"},
	)
	sp := &fakeSpotify{
		matches: map[string]*spotify.TrackMatch{
			"Levels": {ID: "sp-levels", Album: "Levels", PreviewURL: "https://p/levels"},
		},
		errs:     map[string]error{"Broken": errBoom},
		features: map[string]clustering.Features{"sp-levels": upbeatFeatures()},
	}
	tags := &fakeTags{tags: map[string][]lastfm.Tag{
		"Levels":  {{Name: "EDM"}, {Name: "house"}, {Name: "seen live"}},
		"Obscure": {{Name: "lo-fi"}},
	}}
	svc := New(store, WithSpotify(sp), WithTagFetcher(tags), WithConcurrency(2))

	result, err := svc.Enrich(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.NoMatch)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Categorized)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Broken", result.Errors[0].Title)
	assert.Equal(t, int32(1), sp.featureCalls.Load())

	levels := store.byTitle("Levels")
	e := store.enrichments[levels.ID]
	require.NotNil(t, e.SpotifyID)
	assert.Equal(t, "sp-levels", *e.SpotifyID)
	assert.Equal(t, []string{"edm", "house"}, e.Genres)
	require.NotNil(t, e.Description)
	assert.Equal(t, "A mix of edm and house.", *e.Description)
	require.NotNil(t, levels.Category)
	assert.Equal(t, clustering.CategoryForFeatures(upbeatFeatures()).String(), *levels.Category)

	obscure := store.byTitle("Obscure")
	assert.NotNil(t, obscure.EnrichedAt, "no-match songs are marked so they are not retried")
	assert.Equal(t, []string{"lo-fi"}, store.enrichments[obscure.ID].Genres)

	assert.Nil(t, store.byTitle("Broken").EnrichedAt, "failed songs stay unenriched")
}

func TestEnrichKeepsCuratedMetadata(t *testing.T) {
	desc := "Hand written."
	store := newMemStore(db.Song{Title: "Curated", Artist: "A", Description: &desc, Genres: []string{"jazz"}})
	tags := &fakeTags{tags: map[string][]lastfm.Tag{"Curated": {{Name: "pop"}}}}
	svc := New(store, WithTagFetcher(tags))

	result, err := svc.Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	e := store.enrichments[store.byTitle("Curated").ID]
	assert.Nil(t, e.Description)
	assert.Empty(t, e.Genres)
}

func TestEnrichWithoutSpotifyLeavesSongsPending(t *testing.T) {
	store := newMemStore(db.Song{Title: "Levels", Artist: "Avicii"})
	tags := &fakeTags{tags: map[string][]lastfm.Tag{"Levels": {{Name: "edm"}}}}

	result, err := New(store, WithTagFetcher(tags)).Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	levels := store.byTitle("Levels")
	assert.Nil(t, levels.EnrichedAt)
	require.NotNil(t, levels.Description)
	assert.Equal(t, "A edm track.", *levels.Description)
	assert.Equal(t, []string{"edm"}, levels.Genres)

	pending, err := store.ListUnenriched(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	sp := &fakeSpotify{
		matches:  map[string]*spotify.TrackMatch{"Levels": {ID: "sp-levels"}},
		features: map[string]clustering.Features{"sp-levels": upbeatFeatures()},
	}
	result, err = New(store, WithSpotify(sp), WithTagFetcher(tags)).Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Categorized)
	assert.NotNil(t, levels.EnrichedAt)
	assert.NotNil(t, levels.Category)
}

func TestEnrichWithoutSpotifyOrTagsWritesNothing(t *testing.T) {
	store := newMemStore(db.Song{Title: "Levels", Artist: "Avicii"})

	result, err := New(store).Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, store.enrichments)
	assert.Nil(t, store.byTitle("Levels").EnrichedAt)
}

func TestEnrichTagErrorsAreNotFatal(t *testing.T) {
	store := newMemStore(db.Song{Title: "Levels", Artist: "Avicii"})
	sp := &fakeSpotify{matches: map[string]*spotify.TrackMatch{"Levels": {ID: "sp-levels"}}}
	svc := New(store, WithSpotify(sp), WithTagFetcher(&fakeTags{err: errBoom}))

	result, err := svc.Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Zero(t, result.Failed)
}

func TestEnrichFeatureErrorKeepsMatches(t *testing.T) {
	store := newMemStore(db.Song{Title: "Levels", Artist: "Avicii"})
	sp := &fakeSpotify{
		matches:     map[string]*spotify.TrackMatch{"Levels": {ID: "sp-levels"}},
		featuresErr: errBoom,
	}
	svc := New(store, WithSpotify(sp))

	result, err := svc.Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Zero(t, result.Categorized)
	assert.Nil(t, store.enrichments[store.byTitle("Levels").ID].Features)
}

func TestEnrichSaveErrorCountsAsFailure(t *testing.T) {
	store := newMemStore(db.Song{Title: "Levels", Artist: "Avicii"})
	store.updateErr = errBoom
	sp := &fakeSpotify{matches: map[string]*spotify.TrackMatch{"Levels": {ID: "sp-levels"}}}
	svc := New(store, WithSpotify(sp))

	result, err := svc.Enrich(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Matched)
	assert.Contains(t, result.Errors[0].Error, "saving enrichment")
}

func TestEnrichCooldown(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := New(store, WithEnrichCooldown(time.Minute))
	svc.now = func() time.Time { return now }

	_, err := svc.Enrich(context.Background(), 10)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = svc.Enrich(context.Background(), 10)
	assert.ErrorIs(t, err, ErrEnrichTooRecent)

	var cooldown *CooldownError
	require.True(t, errors.As(err, &cooldown))
	assert.Equal(t, now.Add(30*time.Second), cooldown.NextAllowed)

	now = now.Add(30 * time.Second)
	_, err = svc.Enrich(context.Background(), 10)
	assert.NoError(t, err)
}

func TestEnrichRejectsConcurrentPass(t *testing.T) {
	svc := New(newMemStore())
	require.NoError(t, svc.begin())
	defer svc.finish()

	_, err := svc.Enrich(context.Background(), 10)
	assert.ErrorIs(t, err, ErrEnrichRunning)
}

func TestEnrichCanceled(t *testing.T) {
	store := newMemStore(db.Song{Title: "Levels", Artist: "Avicii"})
	svc := New(store, WithSpotify(&fakeSpotify{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Enrich(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Failed)
}

func TestCategorizeGroupsSongs(t *testing.T) {
	var songs []db.Song
	calm := db.AudioFeatures{Energy: 0.05, Valence: 0.1, Danceability: 0.1, Acousticness: 0.95, Tempo: 60}
	party := db.AudioFeatures{Energy: 0.95, Valence: 0.95, Danceability: 0.95, Acousticness: 0.02, Tempo: 170}
	for i := range 6 {
		f := calm
		if i%2 == 0 {
			f = party
		}
		songs = append(songs, db.Song{Title: string(rune('A' + i)), Artist: "X", Features: &f})
	}
	songs = append(songs, db.Song{Title: "NoFeatures", Artist: "X"})
	store := newMemStore(songs...)
	svc := New(store, WithClusterConfig(clustering.Config{NumGroups: 2, MinGroupSize: 1}))

	n, err := svc.Categorize(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	for _, song := range store.songs {
		if song.Features == nil {
			assert.Nil(t, song.Category)
			continue
		}
		require.NotNil(t, song.Category, song.Title)
	}
}
