// Package fuzzy implements the fuzzy mood classifier that maps heart rate,
// time of day, activity and mood sliders onto one of five music categories.
package fuzzy

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Category is one of the five fixed mood categories.
type Category int

// Categories in priority order. Ties between equal memberships resolve to the
// earlier category in this list.
const (
	Calm Category = iota
	Relaxed
	Moderate
	Upbeat
	Energetic

	numCategories = 5
)

// ErrUnknownCategory is returned when a label does not name a category.
var ErrUnknownCategory = errors.New("unknown category")

var categoryLabels = [numCategories]string{
	Calm:      "calm",
	Relaxed:   "relaxed",
	Moderate:  "moderate",
	Upbeat:    "upbeat",
	Energetic: "energetic",
}

// Categories returns all categories in priority order.
func Categories() []Category {
	return []Category{Calm, Relaxed, Moderate, Upbeat, Energetic}
}

// String returns the lowercase label, e.g. "calm".
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryLabels[c]
}

// Valid reports whether c is one of the five categories.
func (c Category) Valid() bool {
	return c >= Calm && c <= Energetic
}

// ParseCategory converts a label (case-insensitive) into a Category.
func ParseCategory(s string) (Category, error) {
	label := strings.ToLower(strings.TrimSpace(s))
	for i, l := range categoryLabels {
		if l == label {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Memberships holds one score per category, indexed by Category.
// Scores are signed relevance values and are not guaranteed to lie in [0,1].
type Memberships [numCategories]float64

// Get returns the score for c.
func (m Memberships) Get(c Category) float64 {
	return m[c]
}

// Map returns the scores keyed by category label.
func (m Memberships) Map() map[string]float64 {
	out := make(map[string]float64, numCategories)
	for _, c := range Categories() {
		out[c.String()] = m[c]
	}
	return out
}

// Ranked returns the categories ordered by descending score.
// Equal scores keep priority order.
func (m Memberships) Ranked() []Category {
	ranked := Categories()
	slices.SortStableFunc(ranked, func(a, b Category) int {
		switch {
		case m[a] > m[b]:
			return -1
		case m[a] < m[b]:
			return 1
		default:
			return 0
		}
	})
	return ranked
}

// MarshalJSON encodes the scores as an object keyed by label.
func (m Memberships) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// UnmarshalJSON decodes an object keyed by label. Missing labels are zero.
func (m *Memberships) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Memberships
	for label, score := range raw {
		c, err := ParseCategory(label)
		if err != nil {
			return err
		}
		out[c] = score
	}
	*m = out
	return nil
}
