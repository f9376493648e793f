package spotify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-mood-tunes/internal/cache"
	"github.com/justestif/go-mood-tunes/internal/logging"
)

// TrackMatch is the best search result for a title and artist.
type TrackMatch struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"` // Comma-separated artist names
	Album       string `json:"album"`
	PreviewURL  string `json:"preview_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// cachedSearch is what goes into the cache. A nil Match records a miss.
type cachedSearch struct {
	Match *TrackMatch `json:"match"`
}

// SearchTrack finds the best matching track. It returns ErrNoMatch when
// Spotify has nothing for the query.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (*TrackMatch, error) {
	key := searchCacheKey(title, artist)
	if c.cache != nil {
		var hit cachedSearch
		err := c.cache.Get(ctx, key, &hit)
		if err == nil {
			if hit.Match == nil {
				return nil, ErrNoMatch
			}
			return hit.Match, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn("reading search cache failed", logging.String("key", key), logging.Err(err))
		}
	}

	result, err := c.api.Search(ctx, searchQuery(title, artist), spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("searching %q by %q: %w", title, artist, err)
	}

	var match *TrackMatch
	if result.Tracks != nil && len(result.Tracks.Tracks) > 0 {
		m := convertTrack(result.Tracks.Tracks[0])
		match = &m
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cachedSearch{Match: match}, c.cacheTTL); err != nil {
			c.logger.Warn("writing search cache failed", logging.String("key", key), logging.Err(err))
		}
	}
	if match == nil {
		return nil, ErrNoMatch
	}
	return match, nil
}

// searchQuery builds a field-filtered query. Quotes in the input would end
// the quoted field early, so they are dropped.
func searchQuery(title, artist string) string {
	clean := strings.NewReplacer(`"`, "").Replace
	q := fmt.Sprintf(`track:"%s"`, clean(strings.TrimSpace(title)))
	if a := clean(strings.TrimSpace(artist)); a != "" {
		q += fmt.Sprintf(` artist:"%s"`, a)
	}
	return q
}

func searchCacheKey(title, artist string) string {
	return "spotify:search:" + strings.ToLower(strings.TrimSpace(title)) + ":" + strings.ToLower(strings.TrimSpace(artist))
}

// convertTrack converts a Spotify FullTrack to a TrackMatch.
func convertTrack(t spotify.FullTrack) TrackMatch {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	m := TrackMatch{
		ID:          t.ID.String(),
		Name:        t.Name,
		Artist:      strings.Join(artists, ", "),
		Album:       t.Album.Name,
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs["spotify"],
	}
	// Spotify lists album images largest first.
	if len(t.Album.Images) > 0 {
		m.ImageURL = t.Album.Images[0].URL
	}
	return m
}
