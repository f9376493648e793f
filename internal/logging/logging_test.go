package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Output: &buf})
	require.NoError(t, err)

	log.Named("recommend").Info("served songs",
		String("category", "calm"),
		Int("count", 3),
		Float64("score", 0.5),
		Bool("fallback", true),
		Duration("took", 1500*time.Millisecond),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "served songs", entry["message"])
	assert.Equal(t, "recommend", entry["component"])
	assert.Equal(t, "calm", entry["category"])
	assert.EqualValues(t, 3, entry["count"])
	assert.Equal(t, true, entry["fallback"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.With(String("request_id", "abc")).Warn("shown")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
}
