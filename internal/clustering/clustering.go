// Package clustering groups catalogue songs by audio features and labels each
// group with a mood category.
package clustering

import (
	"github.com/justestif/go-mood-tunes/internal/fuzzy"
)

// Features are the Spotify audio features used for grouping, each in [0,1]
// except Tempo (BPM).
type Features struct {
	Energy       float32
	Valence      float32
	Danceability float32
	Acousticness float32
	Tempo        float32
}

// Track is a catalogue song with optional audio features.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Features *Features // nil if not fetched or unavailable
}

// neutralHour keeps the night boost out of catalogue labelling.
const neutralHour = 12

// Tempo span mapped onto the heart rate slider. Tempos outside it are clamped,
// and a missing tempo (0) reads as the slowest.
const (
	minTempo     = 60
	maxTempo     = 180
	minHeartRate = 60
	maxHeartRate = 120
)

// ToInput projects audio features onto the mood sliders:
// tempo drives heart rate, energy/danceability/acousticness drive activity
// and valence drives mood.
func ToInput(f Features) fuzzy.Input {
	energy := float64(f.Energy)
	dance := float64(f.Danceability)
	acoustic := float64(f.Acousticness)

	return fuzzy.Input{
		HeartRate: tempoToHeartRate(float64(f.Tempo)),
		TimeOfDay: neutralHour,
		Activity:  10 * (0.5*energy + 0.3*dance + 0.2*(1-acoustic)),
		Mood:      10 * float64(f.Valence),
	}
}

func tempoToHeartRate(bpm float64) float64 {
	bpm = max(minTempo, min(maxTempo, bpm))
	return minHeartRate + (bpm-minTempo)*(maxHeartRate-minHeartRate)/(maxTempo-minTempo)
}

// CategoryForFeatures labels a single song.
func CategoryForFeatures(f Features) fuzzy.Category {
	return fuzzy.Classify(ToInput(f)).Dominant
}
