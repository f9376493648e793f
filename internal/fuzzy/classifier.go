package fuzzy

import (
	"math"
	"time"
)

// Input is a single reading of the mood sliders.
type Input struct {
	HeartRate float64 // beats per minute, typically 60-120
	TimeOfDay float64 // hour of day, 0-24, may be fractional
	Activity  float64 // self-reported intensity, 0-10
	Mood      float64 // 0 = calm/sad, 10 = energetic/happy
}

// Result is the outcome of Classify.
type Result struct {
	Dominant    Category    `json:"dominant"`
	Memberships Memberships `json:"memberships"`
}

// Dimension weights. Mood dominates.
const (
	heartRateWeight = 0.3
	activityWeight  = 0.3
	moodWeight      = 0.4
)

// Classify modifiers.
const (
	nightCalmBoost     = 1.15
	offCenterPenalty   = 0.8
	activeUpbeatBoost  = 1.18
	energeticBoost     = 1.22
	nightStartHour     = 20
	morningEndHour     = 7
	moodCenter         = 5
	moodCenterBand     = 2
	upbeatActivityMin  = 5
	energeticHeartRate = 85
	energeticActivity  = 7
)

// Override thresholds.
const (
	sadMoodMax          = 2
	extremeActivityMin  = 8
	extremeHeartRateMin = 95
)

// shape describes a per-dimension membership curve.
type shape struct {
	kind      shapeKind
	lo, hi    float64 // ramp endpoints
	center    float64 // triangle peak
	halfWidth float64 // triangle half-width
}

type shapeKind int

const (
	rampDown shapeKind = iota
	triangle
	rampUp
)

func (s shape) eval(x float64) float64 {
	var v float64
	switch s.kind {
	case rampDown:
		v = (s.hi - x) / (s.hi - s.lo)
	case rampUp:
		v = (x - s.lo) / (s.hi - s.lo)
	default:
		v = 1 - math.Abs(x-s.center)/s.halfWidth
	}
	return clamp01(v)
}

func down(lo, hi float64) shape       { return shape{kind: rampDown, lo: lo, hi: hi} }
func up(lo, hi float64) shape         { return shape{kind: rampUp, lo: lo, hi: hi} }
func peak(center, half float64) shape { return shape{kind: triangle, center: center, halfWidth: half} }

// curves holds the heart rate, activity and mood shapes for each category.
var curves = [numCategories][3]shape{
	Calm:      {down(60, 100), down(0, 4), down(0, 4)},
	Relaxed:   {peak(70, 20), peak(3, 3), peak(3, 3)},
	Moderate:  {peak(80, 20), peak(5, 3), peak(5, 3)},
	Upbeat:    {peak(90, 20), peak(7, 3), peak(7, 3)},
	Energetic: {up(85, 110), up(7, 10), up(7, 10)},
}

// ComputeMembership returns the weighted raw membership of in for category c.
// Each dimension factor is clamped to [0,1] before weighting.
func ComputeMembership(c Category, in Input) float64 {
	cv := curves[c]
	return cv[0].eval(in.HeartRate)*heartRateWeight +
		cv[1].eval(in.Activity)*activityWeight +
		cv[2].eval(in.Mood)*moodWeight
}

func rawMemberships(in Input) Memberships {
	var m Memberships
	for _, c := range Categories() {
		m[c] = ComputeMembership(c, in)
	}
	return m
}

// Classify maps in to a dominant category and the modified memberships.
// Overrides for extreme sadness and extreme energy only change Dominant.
func Classify(in Input) Result {
	m := rawMemberships(in)

	if in.TimeOfDay >= nightStartHour || in.TimeOfDay <= morningEndHour {
		m[Calm] *= nightCalmBoost
	}
	if math.Abs(in.Mood-moodCenter) > moodCenterBand {
		m[Moderate] *= offCenterPenalty
	}
	if in.Activity > upbeatActivityMin {
		m[Upbeat] *= activeUpbeatBoost
	}
	if in.HeartRate > energeticHeartRate || in.Activity > energeticActivity {
		m[Energetic] *= energeticBoost
	}
	for i := range m {
		m[i] = math.Max(m[i], 0)
	}

	dominant := m.Top()

	if in.Mood <= sadMoodMax {
		if m[Calm] >= m[Relaxed] {
			dominant = Calm
		} else {
			dominant = Relaxed
		}
	}
	// Evaluated after the sadness override so extreme energy wins when both hold.
	if in.Activity >= extremeActivityMin || in.HeartRate >= extremeHeartRateMin {
		if m[Energetic] > m[Upbeat] {
			dominant = Energetic
		} else {
			dominant = Upbeat
		}
	}

	return Result{Dominant: dominant, Memberships: m}
}

// ComputeAdjustedMemberships scores the sliders with additive corrections for
// low mood, high energy and off-center mood. It is a separate strategy from
// Classify and the two can disagree on the top category. Results are unclamped
// and may be negative.
func ComputeAdjustedMemberships(heartRate, activity, mood float64, now time.Time) Memberships {
	m := rawMemberships(Input{
		HeartRate: heartRate,
		TimeOfDay: HourOf(now),
		Activity:  activity,
		Mood:      mood,
	})

	if mood <= 3 {
		m[Calm] += 0.5
		m[Relaxed] += 0.25
		m[Moderate] -= 0.7
		m[Upbeat] -= 0.5
		m[Energetic] -= 0.4
	}
	if activity >= 8 || heartRate >= 90 {
		m[Energetic] += 0.5
		m[Upbeat] += 0.4
		m[Calm] -= 0.3
		m[Moderate] -= 0.3
	}
	if math.Abs(mood-moodCenter) > 3 {
		m[Moderate] -= 0.3
	}
	return m
}

// Top returns the highest scoring category, ties resolved by priority order.
func (m Memberships) Top() Category {
	top := Calm
	for _, c := range Categories() {
		if m[c] > m[top] {
			top = c
		}
	}
	return top
}

// HourOf returns the fractional hour of day for t in its own location.
func HourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
