package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is a signed-in browser session.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ActiveSession is an unexpired session joined with its user's name.
type ActiveSession struct {
	Session
	DisplayName string
}

// AudioFeatures are the Spotify audio features used for categorization.
// Energy, valence, danceability and acousticness are in [0,1]; tempo is BPM.
type AudioFeatures struct {
	Energy       float32
	Valence      float32
	Danceability float32
	Acousticness float32
	Tempo        float32
}

// Song is a catalogue entry.
type Song struct {
	ID          uuid.UUID
	Title       string
	Artist      string
	Album       *string // nullable
	Language    string
	Genres      []string
	Description *string // nullable
	Category    *string // nullable until categorized
	SpotifyID   *string // nullable until enriched
	PreviewURL  *string // nullable
	ExternalURL *string // nullable
	ImageURL    *string // nullable
	Features    *AudioFeatures
	EnrichedAt  *time.Time // nullable
	CreatedAt   time.Time
}

// Enrichment is the data written back to a song after a Spotify/Last.fm lookup.
// Searched marks a completed Spotify search, match or not, so the song is not
// retried. Without it only the metadata is written.
type Enrichment struct {
	Searched    bool
	SpotifyID   *string
	Album       *string
	PreviewURL  *string
	ExternalURL *string
	ImageURL    *string
	Description *string
	Genres      []string
	Features    *AudioFeatures
}

// MoodLog records one classification made for a signed-in user.
type MoodLog struct {
	ID          uuid.UUID
	UserID      string
	HeartRate   float64
	TimeOfDay   float64
	Activity    float64
	Mood        float64
	Category    string
	Memberships map[string]float64
	CreatedAt   time.Time
}

// SongKey returns the case-insensitive identity of a song used for de-duplication.
func SongKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "\x1f" + strings.ToLower(strings.TrimSpace(artist))
}
