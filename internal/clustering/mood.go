package clustering

import (
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/go-mood-tunes/internal/fuzzy"
)

// Config holds grouping parameters.
type Config struct {
	NumGroups    int // Number of k-means groups (default: 5)
	MinGroupSize int // Smaller groups are labelled song by song
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumGroups:    5,
		MinGroupSize: 3,
	}
}

// MoodGroup is a set of songs sharing a mood category.
type MoodGroup struct {
	Category fuzzy.Category
	Tracks   []Track
	Centroid Features
}

// Result is the outcome of DetectMoodGroups.
type Result struct {
	Groups   []MoodGroup
	Outliers []Track // songs without audio features
}

// Assignments maps track ID to its category.
func (r Result) Assignments() map[string]fuzzy.Category {
	out := make(map[string]fuzzy.Category)
	for _, g := range r.Groups {
		for _, t := range g.Tracks {
			out[t.ID] = g.Category
		}
	}
	return out
}

// trackObservation wraps a Track to implement clusters.Observation.
type trackObservation struct {
	track  *Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// DetectMoodGroups groups tracks by audio feature similarity using k-means and
// labels every group by classifying its centroid. Tracks without features are
// returned as outliers. When there are too few tracks to cluster, or k-means
// fails, each track is labelled on its own.
func DetectMoodGroups(tracks []Track, cfg Config) Result {
	if cfg.NumGroups <= 0 {
		cfg.NumGroups = DefaultConfig().NumGroups
	}

	var valid []*Track
	var res Result
	for i := range tracks {
		t := &tracks[i]
		if t.Features != nil {
			valid = append(valid, t)
		} else {
			res.Outliers = append(res.Outliers, *t)
		}
	}
	if len(valid) == 0 {
		return res
	}

	if len(valid) < cfg.NumGroups {
		res.Groups = singles(valid)
		sortGroups(res.Groups)
		return res
	}

	var obs clusters.Observations
	for _, t := range valid {
		obs = append(obs, trackObservation{track: t, coords: extractFeatures(t.Features)})
	}

	partition, err := kmeans.New().Partition(obs, cfg.NumGroups)
	if err != nil {
		res.Groups = singles(valid)
		sortGroups(res.Groups)
		return res
	}

	for _, cluster := range partition {
		var members []*Track
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				members = append(members, to.track)
			}
		}
		if len(members) == 0 {
			continue
		}
		if len(members) < cfg.MinGroupSize {
			res.Groups = append(res.Groups, singles(members)...)
			continue
		}

		centroid := centroidFeatures(cluster.Center)
		group := MoodGroup{
			Category: CategoryForFeatures(centroid),
			Centroid: centroid,
		}
		for _, t := range members {
			group.Tracks = append(group.Tracks, *t)
		}
		res.Groups = append(res.Groups, group)
	}

	sortGroups(res.Groups)
	return res
}

// sortGroups orders groups by category priority.
func sortGroups(groups []MoodGroup) {
	slices.SortStableFunc(groups, func(a, b MoodGroup) int {
		return int(a.Category) - int(b.Category)
	})
}

// singles labels each track on its own.
func singles(tracks []*Track) []MoodGroup {
	groups := make([]MoodGroup, 0, len(tracks))
	for _, t := range tracks {
		groups = append(groups, MoodGroup{
			Category: CategoryForFeatures(*t.Features),
			Tracks:   []Track{*t},
			Centroid: *t.Features,
		})
	}
	return groups
}

// extractFeatures returns the clustering coordinates. Tempo is scaled to
// roughly [0,1] so it does not dominate the distance.
func extractFeatures(f *Features) clusters.Coordinates {
	return clusters.Coordinates{
		float64(f.Energy),
		float64(f.Valence),
		float64(f.Danceability),
		float64(f.Acousticness),
		float64(f.Tempo) / 200,
	}
}

func centroidFeatures(c clusters.Coordinates) Features {
	return Features{
		Energy:       float32(c[0]),
		Valence:      float32(c[1]),
		Danceability: float32(c[2]),
		Acousticness: float32(c[3]),
		Tempo:        float32(c[4] * 200),
	}
}
