package lastfm

import (
	"strings"
)

// Tag is a Last.fm tag. Count is the tag's relative weight (0-100) and is
// only reported for track tags.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
	URL   string `json:"url,omitempty"`
}

// noiseTags are listener bookkeeping, not descriptions of the music.
var noiseTags = map[string]bool{
	"seen live":            true,
	"favorites":            true,
	"favourites":           true,
	"favorite":             true,
	"favourite":            true,
	"my favorite":          true,
	"favorite songs":       true,
	"spotify":              true,
	"albums i own":         true,
	"under 2000 listeners": true,
}

// Genres returns up to n distinct, lowercased tag names in tag order,
// skipping listener bookkeeping tags.
func Genres(tags []Tag, n int) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		if len(out) == n {
			break
		}
		name := normalize(t.Name)
		if name == "" || noiseTags[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Describe builds a one-line blurb from the top tags, e.g.
// "A mix of indie, folk and acoustic." It returns "" when no usable tags remain.
func Describe(tags []Tag) string {
	genres := Genres(tags, 3)
	switch len(genres) {
	case 0:
		return ""
	case 1:
		return "A " + genres[0] + " track."
	default:
		last := len(genres) - 1
		return "A mix of " + strings.Join(genres[:last], ", ") + " and " + genres[last] + "."
	}
}
