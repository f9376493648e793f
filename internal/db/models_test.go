package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSongKey(t *testing.T) {
	tests := []struct {
		name          string
		title, artist string
		otherTitle    string
		otherArtist   string
		wantSame      bool
	}{
		{"case differs", "Clair de Lune", "Debussy", "clair DE lune", "DEBUSSY", true},
		{"surrounding space", "  Yellow ", "Coldplay", "Yellow", " coldplay", true},
		{"different artist", "Hurt", "Nine Inch Nails", "Hurt", "Johnny Cash", false},
		{"title artist boundary", "ab", "c", "a", "bc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := SongKey(tt.title, tt.artist)
			b := SongKey(tt.otherTitle, tt.otherArtist)
			assert.Equal(t, tt.wantSame, a == b)
		})
	}
}

func TestSchemaDefinesTables(t *testing.T) {
	for _, table := range []string{"users", "sessions", "songs", "mood_logs"} {
		assert.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" ("), table)
	}
}

func TestNonNil(t *testing.T) {
	assert.NotNil(t, nonNil(nil))
	assert.Empty(t, nonNil(nil))
	assert.Equal(t, []string{"en"}, nonNil([]string{"en"}))
	assert.NotNil(t, nonNilIDs(nil))
}
