package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/fuzzy"
	"github.com/justestif/go-mood-tunes/internal/metrics"
)

var errBoom = errors.New("boom")

// noon keeps the night calm boost out of the way.
var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type categoryCall struct {
	category  string
	languages []string
	limit     int
}

type fakeStore struct {
	songs         []db.Song
	ignoreExclude bool
	err           error
	randomErr     error

	calls       []categoryCall
	randomLimit int
}

func (f *fakeStore) ByCategory(_ context.Context, category string, languages []string, exclude []uuid.UUID, limit int) ([]db.Song, error) {
	f.calls = append(f.calls, categoryCall{category, languages, limit})
	if f.err != nil {
		return nil, f.err
	}
	var out []db.Song
	for _, s := range f.songs {
		if len(out) == limit {
			break
		}
		if s.Category == nil || *s.Category != category {
			continue
		}
		if len(languages) > 0 && !slices.Contains(languages, s.Language) {
			continue
		}
		if !f.ignoreExclude && slices.Contains(exclude, s.ID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) Random(_ context.Context, exclude []uuid.UUID, limit int) ([]db.Song, error) {
	f.randomLimit = limit
	if f.randomErr != nil {
		return nil, f.randomErr
	}
	var out []db.Song
	for _, s := range f.songs {
		if len(out) == limit {
			break
		}
		if !f.ignoreExclude && slices.Contains(exclude, s.ID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeHistory struct {
	logs []db.MoodLog
	err  error
}

func (f *fakeHistory) Create(_ context.Context, log *db.MoodLog) error {
	if f.err != nil {
		return f.err
	}
	log.ID = uuid.New()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeHistory) ListForUser(_ context.Context, userID string, limit int) ([]db.MoodLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []db.MoodLog
	for _, l := range f.logs {
		if l.UserID == userID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

// songs builds n songs in category (nil for "") and language.
func songs(category, language string, n int) []db.Song {
	out := make([]db.Song, n)
	for i := range out {
		out[i] = db.Song{
			ID:       uuid.New(),
			Title:    fmt.Sprintf("%s %s %d", category, language, i),
			Artist:   "Artist",
			Language: language,
		}
		if category != "" {
			c := category
			out[i].Category = &c
		}
	}
	return out
}

func newService(store SongStore, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return noon })}, opts...)
	return New(store, opts...)
}

func ptr(f float64) *float64 { return &f }

// moderateReading classifies as moderate with ranking
// moderate, relaxed, upbeat, calm, energetic.
func moderateReading(count int) Request {
	return Request{HeartRate: 80, Activity: 5, Mood: 5, Count: count}
}

func stages(songs []Song) []string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.Stage
	}
	return out
}

func TestRecommendPrimaryOnly(t *testing.T) {
	store := &fakeStore{songs: songs("energetic", "en", 12)}
	svc := newService(store)

	resp, err := svc.Recommend(context.Background(), Request{HeartRate: 120, Activity: 9, Mood: 9, Count: 10})
	require.NoError(t, err)

	assert.Equal(t, fuzzy.Energetic, resp.Category)
	require.Len(t, resp.Songs, 10)
	for _, s := range resp.Songs {
		assert.Equal(t, StagePrimary, s.Stage)
		assert.Equal(t, "energetic", s.Category)
	}
	assert.Len(t, store.calls, 1, "secondary stage should not run once full")
	assert.Zero(t, store.randomLimit)
}

func TestRecommendCascadeOrder(t *testing.T) {
	var catalogue []db.Song
	catalogue = append(catalogue, songs("moderate", "en", 2)...)
	catalogue = append(catalogue, songs("upbeat", "en", 1)...)
	catalogue = append(catalogue, songs("relaxed", "en", 1)...)
	catalogue = append(catalogue, songs("", "en", 3)...)
	store := &fakeStore{songs: catalogue}
	svc := newService(store)

	resp, err := svc.Recommend(context.Background(), moderateReading(6))
	require.NoError(t, err)

	assert.Equal(t, fuzzy.Moderate, resp.Category)
	assert.Equal(t, 12.0, resp.TimeOfDay)
	require.Len(t, resp.Songs, 6)
	assert.Equal(t,
		[]string{StagePrimary, StagePrimary, StageSecondary, StageSecondary, StageRandom, StageRandom},
		stages(resp.Songs))
	assert.Equal(t, "relaxed", resp.Songs[2].Category)
	assert.Equal(t, "upbeat", resp.Songs[3].Category)

	var order []string
	var limits []int
	for _, c := range store.calls {
		order = append(order, c.category)
		limits = append(limits, c.limit)
	}
	assert.Equal(t, []string{"moderate", "relaxed", "upbeat", "calm", "energetic"}, order)
	assert.Equal(t, []int{6, 4, 3, 2, 2}, limits)
	assert.Equal(t, 2, store.randomLimit)
}

func TestRecommendNeverDuplicates(t *testing.T) {
	catalogue := songs("moderate", "en", 3)
	store := &fakeStore{songs: catalogue, ignoreExclude: true}
	svc := newService(store)

	resp, err := svc.Recommend(context.Background(), moderateReading(10))
	require.NoError(t, err)

	seen := map[uuid.UUID]bool{}
	for _, s := range resp.Songs {
		assert.False(t, seen[s.ID], "duplicate song %s", s.Title)
		seen[s.ID] = true
	}
	assert.Len(t, resp.Songs, 3)
}

func TestRecommendLanguageFilter(t *testing.T) {
	var catalogue []db.Song
	catalogue = append(catalogue, songs("moderate", "es", 2)...)
	catalogue = append(catalogue, songs("moderate", "en", 1)...)
	store := &fakeStore{songs: catalogue}
	svc := newService(store)

	req := moderateReading(3)
	req.Languages = []string{" EN ", "en"}
	resp, err := svc.Recommend(context.Background(), req)
	require.NoError(t, err)

	for _, c := range store.calls {
		assert.Equal(t, []string{"en"}, c.languages)
	}
	require.Len(t, resp.Songs, 3)
	assert.Equal(t, "en", resp.Songs[0].Language)
	assert.Equal(t, StagePrimary, resp.Songs[0].Stage)
	// Random fill ignores the language filter.
	assert.Equal(t, []string{StageRandom, StageRandom}, stages(resp.Songs[1:]))
	assert.Equal(t, "es", resp.Songs[1].Language)
}

func TestRecommendEmptyCatalogue(t *testing.T) {
	svc := newService(&fakeStore{})

	resp, err := svc.Recommend(context.Background(), moderateReading(5))
	require.NoError(t, err)
	assert.Empty(t, resp.Songs)
	assert.NotNil(t, resp.Songs)
}

func TestRecommendCount(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		count int
		want  int
	}{
		{"default", nil, 0, DefaultCount},
		{"explicit", nil, 7, 7},
		{"configured default", []Option{WithCounts(4, 20)}, 0, 4},
		{"capped by configured max", []Option{WithCounts(4, 8)}, 20, 8},
		{"invalid configured max ignored", []Option{WithCounts(0, 500)}, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc := newService(store, tt.opts...)

			_, err := svc.Recommend(context.Background(), moderateReading(tt.count))
			require.NoError(t, err)
			require.NotEmpty(t, store.calls)
			assert.Equal(t, tt.want, store.calls[0].limit)
		})
	}
}

func TestRecommendInvalid(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantMsg string
	}{
		{"nan heart rate", Request{HeartRate: math.NaN(), Mood: 5}, "heart_rate must be a finite number"},
		{"infinite mood", Request{HeartRate: 70, Mood: math.Inf(-1)}, "mood must be a finite number"},
		{"nan time of day", Request{HeartRate: 70, TimeOfDay: ptr(math.NaN())}, "time_of_day must be a finite number"},
		{"count too large", Request{HeartRate: 70, Count: 51}, "count"},
		{"negative count", Request{HeartRate: 70, Count: -1}, "count"},
		{"empty language", Request{HeartRate: 70, Languages: []string{""}}, "languages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc := newService(store)

			_, err := svc.Recommend(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Empty(t, store.calls)
		})
	}
}

func TestRecommendOutOfRangeSlidersAreScored(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	resp, err := svc.Recommend(context.Background(), Request{HeartRate: 250, Activity: -3, Mood: 14, TimeOfDay: ptr(30)})
	require.NoError(t, err)
	assert.Equal(t, fuzzy.Energetic, resp.Category)
	assert.Equal(t, 30.0, resp.TimeOfDay)
}

func TestRecommendUsesClockForTimeOfDay(t *testing.T) {
	late := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	svc := New(&fakeStore{}, WithClock(func() time.Time { return late }))

	resp, err := svc.Recommend(context.Background(), Request{HeartRate: 70, Activity: 3, Mood: 3})
	require.NoError(t, err)
	assert.Equal(t, 22.5, resp.TimeOfDay)
	want := fuzzy.Classify(fuzzy.Input{HeartRate: 70, TimeOfDay: 22.5, Activity: 3, Mood: 3})
	assert.Equal(t, want.Memberships, resp.Memberships)
}

func TestRecommendStoreErrors(t *testing.T) {
	t.Run("category", func(t *testing.T) {
		svc := newService(&fakeStore{err: errBoom})
		_, err := svc.Recommend(context.Background(), moderateReading(3))
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorContains(t, err, "loading moderate songs")
	})
	t.Run("random", func(t *testing.T) {
		svc := newService(&fakeStore{randomErr: errBoom})
		_, err := svc.Recommend(context.Background(), moderateReading(3))
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorContains(t, err, "loading random songs")
	})
}

func TestRecommendHistory(t *testing.T) {
	t.Run("signed in", func(t *testing.T) {
		history := &fakeHistory{}
		svc := newService(&fakeStore{}, WithHistory(history))

		req := moderateReading(3)
		req.UserID = "user-1"
		_, err := svc.Recommend(context.Background(), req)
		require.NoError(t, err)

		require.Len(t, history.logs, 1)
		log := history.logs[0]
		assert.Equal(t, "user-1", log.UserID)
		assert.Equal(t, "moderate", log.Category)
		assert.Equal(t, 12.0, log.TimeOfDay)
		assert.InDelta(t, 1.0, log.Memberships["moderate"], 1e-9)

		logs, err := svc.History(context.Background(), "user-1", 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
	t.Run("anonymous", func(t *testing.T) {
		history := &fakeHistory{}
		svc := newService(&fakeStore{}, WithHistory(history))

		_, err := svc.Recommend(context.Background(), moderateReading(3))
		require.NoError(t, err)
		assert.Empty(t, history.logs)
	})
	t.Run("save failure is not fatal", func(t *testing.T) {
		svc := newService(&fakeStore{}, WithHistory(&fakeHistory{err: errBoom}))

		req := moderateReading(3)
		req.UserID = "user-1"
		_, err := svc.Recommend(context.Background(), req)
		assert.NoError(t, err)
	})
	t.Run("no store", func(t *testing.T) {
		svc := newService(&fakeStore{})
		logs, err := svc.History(context.Background(), "user-1", 5)
		assert.NoError(t, err)
		assert.Nil(t, logs)
	})
}

func TestRecommendMetrics(t *testing.T) {
	m := metrics.NewManager(metrics.WithRegistry(prometheus.NewRegistry()))
	var catalogue []db.Song
	catalogue = append(catalogue, songs("moderate", "en", 2)...)
	catalogue = append(catalogue, songs("relaxed", "en", 1)...)
	catalogue = append(catalogue, songs("", "en", 1)...)
	svc := newService(&fakeStore{songs: catalogue}, WithMetrics(m))

	_, err := svc.Recommend(context.Background(), moderateReading(4))
	require.NoError(t, err)

	expected := `
# HELP moodtunes_recommended_songs_total Songs returned by recommendation stage
# TYPE moodtunes_recommended_songs_total counter
moodtunes_recommended_songs_total{stage="primary"} 2
moodtunes_recommended_songs_total{stage="random"} 1
moodtunes_recommended_songs_total{stage="secondary"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "moodtunes_recommended_songs_total"))

	expected = `
# HELP moodtunes_classifications_total Mood classifications by dominant category
# TYPE moodtunes_classifications_total counter
moodtunes_classifications_total{category="moderate"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "moodtunes_classifications_total"))
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name                 string
		heartRate, act, mood float64
		wantTop              fuzzy.Category
		wantClassified       fuzzy.Category
		wantDisagree         bool
	}{
		{"agree", 80, 5, 5, fuzzy.Moderate, fuzzy.Moderate, false},
		{"extreme activity at rest", 60, 9, 0, fuzzy.Calm, fuzzy.Energetic, true},
		{"low mood", 65, 1, 1, fuzzy.Calm, fuzzy.Calm, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewManager(metrics.WithRegistry(prometheus.NewRegistry()))
			svc := newService(&fakeStore{}, WithMetrics(m))

			p, err := svc.Preview(context.Background(), tt.heartRate, tt.act, tt.mood)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTop, p.Top)
			assert.Equal(t, tt.wantClassified, p.Classified)
			assert.Equal(t, tt.wantDisagree, p.Disagrees)
			assert.Equal(t, fuzzy.ComputeAdjustedMemberships(tt.heartRate, tt.act, tt.mood, noon), p.Memberships)

			want := 0
			if tt.wantDisagree {
				want = 1
			}
			expected := fmt.Sprintf(`
# HELP moodtunes_strategy_disagreements_total Requests where adjusted memberships and classify picked different top categories
# TYPE moodtunes_strategy_disagreements_total counter
moodtunes_strategy_disagreements_total %d
`, want)
			assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "moodtunes_strategy_disagreements_total"))
		})
	}
}

func TestPreviewInvalid(t *testing.T) {
	svc := newService(&fakeStore{})
	_, err := svc.Preview(context.Background(), 70, math.NaN(), 5)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorContains(t, err, "activity must be a finite number")
}
