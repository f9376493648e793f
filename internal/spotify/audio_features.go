package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-mood-tunes/internal/clustering"
)

// maxTracksPerRequest is the Spotify limit for audio-features lookups.
const maxTracksPerRequest = 100

// FetchAudioFeatures retrieves audio features for the given track IDs.
// Batches requests to max 100 tracks per request per Spotify API limits.
// Tracks without available audio features are absent from the result.
func (c *Client) FetchAudioFeatures(ctx context.Context, ids []string) (map[string]clustering.Features, error) {
	out := make(map[string]clustering.Features, len(ids))

	for _, batch := range chunk(ids, maxTracksPerRequest) {
		spotifyIDs := make([]spotify.ID, len(batch))
		for i, id := range batch {
			spotifyIDs[i] = spotify.ID(id)
		}

		features, err := c.api.GetAudioFeatures(ctx, spotifyIDs...)
		if err != nil {
			return nil, fmt.Errorf("fetching audio features (batch of %d): %w", len(batch), err)
		}

		for _, f := range features {
			if f == nil {
				continue // Track has no audio features
			}
			out[f.ID.String()] = convertFeatures(f)
		}
	}

	return out, nil
}

// convertFeatures keeps the features used for mood categorization.
func convertFeatures(f *spotify.AudioFeatures) clustering.Features {
	return clustering.Features{
		Energy:       f.Energy,
		Valence:      f.Valence,
		Danceability: f.Danceability,
		Acousticness: f.Acousticness,
		Tempo:        f.Tempo,
	}
}

// chunk splits ids into consecutive slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(ids); i += size {
		batches = append(batches, ids[i:min(i+size, len(ids))])
	}
	return batches
}
