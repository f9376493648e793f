package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SongRepository handles catalogue database operations.
type SongRepository struct {
	pool *pgxpool.Pool
}

const songColumns = `
	id, title, artist, album, language, genres, description, category,
	spotify_id, preview_url, external_url, image_url,
	energy, valence, danceability, acousticness, tempo,
	enriched_at, created_at
`

func scanSong(row pgx.Row) (Song, error) {
	var (
		s                                 Song
		energy, valence, dance, acou, bpm *float32
	)
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Artist,
		&s.Album,
		&s.Language,
		&s.Genres,
		&s.Description,
		&s.Category,
		&s.SpotifyID,
		&s.PreviewURL,
		&s.ExternalURL,
		&s.ImageURL,
		&energy,
		&valence,
		&dance,
		&acou,
		&bpm,
		&s.EnrichedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return Song{}, err
	}
	// Features are written all-or-nothing; energy stands in for the set.
	if energy != nil {
		s.Features = &AudioFeatures{Energy: *energy}
		if valence != nil {
			s.Features.Valence = *valence
		}
		if dance != nil {
			s.Features.Danceability = *dance
		}
		if acou != nil {
			s.Features.Acousticness = *acou
		}
		if bpm != nil {
			s.Features.Tempo = *bpm
		}
	}
	return s, nil
}

func collectSongs(rows pgx.Rows) ([]Song, error) {
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// UpsertBatch inserts songs, updating the metadata of songs that already exist
// under the same case-insensitive title and artist. It returns
// the number of rows written. Songs without an ID are assigned one.
func (r *SongRepository) UpsertBatch(ctx context.Context, songs []Song) (int64, error) {
	if len(songs) == 0 {
		return 0, nil
	}

	// unnest cannot produce a nested array, so genres travel as a
	// unit-separator joined string per row.
	query := `
		INSERT INTO songs (id, dedupe_key, title, artist, album, language, genres, description, category)
		SELECT u.id, u.dedupe_key, u.title, u.artist, u.album, u.language,
			string_to_array(u.genres, chr(31)), u.description, u.category
		FROM unnest($1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[], $8::text[], $9::text[])
			AS u(id, dedupe_key, title, artist, album, language, genres, description, category)
		ON CONFLICT (dedupe_key) DO UPDATE SET
			album = COALESCE(EXCLUDED.album, songs.album),
			language = EXCLUDED.language,
			genres = CASE WHEN cardinality(EXCLUDED.genres) > 0 THEN EXCLUDED.genres ELSE songs.genres END,
			description = COALESCE(EXCLUDED.description, songs.description),
			category = COALESCE(EXCLUDED.category, songs.category)
	`

	ids := make([]uuid.UUID, len(songs))
	keys := make([]string, len(songs))
	titles := make([]string, len(songs))
	artists := make([]string, len(songs))
	albums := make([]*string, len(songs))
	languages := make([]string, len(songs))
	genres := make([]string, len(songs))
	descriptions := make([]*string, len(songs))
	categories := make([]*string, len(songs))

	for i := range songs {
		s := &songs[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		ids[i] = s.ID
		keys[i] = SongKey(s.Title, s.Artist)
		titles[i] = s.Title
		artists[i] = s.Artist
		albums[i] = s.Album
		languages[i] = s.Language
		genres[i] = strings.Join(s.Genres, "\x1f")
		descriptions[i] = s.Description
		categories[i] = s.Category
	}

	result, err := r.pool.Exec(ctx, query, ids, keys, titles, artists, albums, languages, genres, descriptions, categories)
	if err != nil {
		return 0, fmt.Errorf("batch upserting songs: %w", err)
	}
	return result.RowsAffected(), nil
}

// ByCategory returns up to limit random songs in category. An empty languages
// slice matches every language. Songs whose IDs are in exclude are skipped.
func (r *SongRepository) ByCategory(ctx context.Context, category string, languages []string, exclude []uuid.UUID, limit int) ([]Song, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT ` + songColumns + `
		FROM songs
		WHERE category = $1
			AND (cardinality($2::text[]) = 0 OR language = ANY($2::text[]))
			AND NOT (id = ANY($3::uuid[]))
		ORDER BY random()
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query, category, nonNil(languages), nonNilIDs(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("querying songs by category: %w", err)
	}
	return collectSongs(rows)
}

// Random returns up to limit random songs of any category and language,
// skipping IDs in exclude.
func (r *SongRepository) Random(ctx context.Context, exclude []uuid.UUID, limit int) ([]Song, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT ` + songColumns + `
		FROM songs
		WHERE NOT (id = ANY($1::uuid[]))
		ORDER BY random()
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, nonNilIDs(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("querying random songs: %w", err)
	}
	return collectSongs(rows)
}

// ListUnenriched returns songs that have never been looked up on Spotify.
func (r *SongRepository) ListUnenriched(ctx context.Context, limit int) ([]Song, error) {
	query := `
		SELECT ` + songColumns + `
		FROM songs
		WHERE enriched_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unenriched songs: %w", err)
	}
	return collectSongs(rows)
}

// ListUncategorized returns songs with audio features but no category.
func (r *SongRepository) ListUncategorized(ctx context.Context, limit int) ([]Song, error) {
	query := `
		SELECT ` + songColumns + `
		FROM songs
		WHERE category IS NULL AND energy IS NOT NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying uncategorized songs: %w", err)
	}
	return collectSongs(rows)
}

// UpdateEnrichment stores lookup results. The song is marked as enriched only
// when e.Searched is set. Nil fields leave the existing value in place.
func (r *SongRepository) UpdateEnrichment(ctx context.Context, id uuid.UUID, e Enrichment) error {
	query := `
		UPDATE songs SET
			spotify_id = COALESCE($2, spotify_id),
			album = COALESCE($3, album),
			preview_url = COALESCE($4, preview_url),
			external_url = COALESCE($5, external_url),
			image_url = COALESCE($6, image_url),
			description = COALESCE($7, description),
			genres = CASE WHEN cardinality($8::text[]) > 0 THEN $8::text[] ELSE genres END,
			energy = COALESCE($9, energy),
			valence = COALESCE($10, valence),
			danceability = COALESCE($11, danceability),
			acousticness = COALESCE($12, acousticness),
			tempo = COALESCE($13, tempo),
			enriched_at = CASE WHEN $14::boolean THEN NOW() ELSE enriched_at END
		WHERE id = $1
	`
	var energy, valence, dance, acou, bpm *float32
	if f := e.Features; f != nil {
		energy, valence, dance, acou, bpm = &f.Energy, &f.Valence, &f.Danceability, &f.Acousticness, &f.Tempo
	}
	result, err := r.pool.Exec(ctx, query,
		id,
		e.SpotifyID,
		e.Album,
		e.PreviewURL,
		e.ExternalURL,
		e.ImageURL,
		e.Description,
		nonNil(e.Genres),
		energy,
		valence,
		dance,
		acou,
		bpm,
		e.Searched,
	)
	if err != nil {
		return fmt.Errorf("updating song enrichment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCategory sets the mood category label of a song.
func (r *SongRepository) UpdateCategory(ctx context.Context, id uuid.UUID, category string) error {
	result, err := r.pool.Exec(ctx, `UPDATE songs SET category = $2 WHERE id = $1`, id, category)
	if err != nil {
		return fmt.Errorf("updating song category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of songs in the catalogue.
func (r *SongRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM songs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting songs: %w", err)
	}
	return n, nil
}

// CountByCategory returns song counts keyed by category label. Uncategorized
// songs are counted under the empty string.
func (r *SongRepository) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(category, ''), COUNT(*) FROM songs GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("counting songs by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

// nonNil avoids sending NULL where the query expects an (empty) array.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
