package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/validate"
)

// ErrEmptySeed is returned when a seed document contains no songs.
var ErrEmptySeed = errors.New("seed contains no songs")

// Record is one song in an import payload or seed file.
type Record struct {
	Title       string   `json:"title" yaml:"title" validate:"required,max=300"`
	Artist      string   `json:"artist" yaml:"artist" validate:"required,max=300"`
	Album       string   `json:"album,omitempty" yaml:"album" validate:"max=300"`
	Language    string   `json:"language" yaml:"language" default:"en" validate:"required,max=32"`
	Genres      []string `json:"genres,omitempty" yaml:"genres" validate:"max=10,dive,required,max=64"`
	Description string   `json:"description,omitempty" yaml:"description" validate:"max=1000"`
	// Category pre-labels the song; empty leaves it for enrichment.
	Category string `json:"category,omitempty" yaml:"category" validate:"omitempty,oneof=calm relaxed moderate upbeat energetic"`
}

// normalize trims whitespace and lowercases the fields used for filtering.
func (r *Record) normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Artist = strings.TrimSpace(r.Artist)
	r.Album = strings.TrimSpace(r.Album)
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	for i, g := range r.Genres {
		r.Genres[i] = strings.ToLower(strings.TrimSpace(g))
	}
}

func (r Record) toSong() db.Song {
	s := db.Song{
		Title:    r.Title,
		Artist:   r.Artist,
		Language: r.Language,
		Genres:   r.Genres,
	}
	if r.Album != "" {
		s.Album = &r.Album
	}
	if r.Description != "" {
		s.Description = &r.Description
	}
	if r.Category != "" {
		s.Category = &r.Category
	}
	return s
}

// ParseRecords decodes a YAML or JSON document holding either a list of
// records or an object with a "songs" list.
func ParseRecords(data []byte) ([]Record, error) {
	var list []Record
	if err := yaml.Unmarshal(data, &list); err == nil {
		if len(list) == 0 {
			return nil, ErrEmptySeed
		}
		return list, nil
	}

	var doc struct {
		Songs []Record `yaml:"songs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding songs: %w", err)
	}
	if len(doc.Songs) == 0 {
		return nil, ErrEmptySeed
	}
	return doc.Songs, nil
}

// LoadSeedFile reads records from a YAML or JSON file.
func LoadSeedFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	records, err := ParseRecords(data)
	if err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return records, nil
}

func validateRecord(ctx context.Context, r *Record) error {
	return validate.Struct(ctx, r)
}
