package metrics

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := NewSessionMetrics("vosk", "abc")
	m.AddAudioBytes(16000)
	m.AddTranscriptResult("he", false, false)
	m.AddTranscriptResult("hello", true, true)
	m.AddTranscriptResult("again", true, false)
	m.AddSpeaker()
	m.AddSwitch()
	m.AddFallback()
	m.Finalize()

	s := m.Snapshot()
	assert.Equal(t, 1.0, s.AudioSeconds)
	assert.Equal(t, 1, s.Interims)
	assert.Equal(t, 2, s.Finals)
	assert.Equal(t, 1, s.Labels)
	assert.Equal(t, 10, s.TranscriptLength)
	assert.Equal(t, 1, s.Speakers)
	assert.Equal(t, 1, s.Switches)
	assert.Equal(t, 1, s.Fallbacks)
}

func TestSummaryWithoutAudio(t *testing.T) {
	m := NewSessionMetrics("demo", "abc")
	m.Finalize()

	summary := m.Summary()
	assert.Contains(t, summary, "Provider: demo")
	assert.Contains(t, summary, "Real-time Factor: 0.00x")
}

func TestLogWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	m := NewSessionMetrics("assemblyai", "abc")
	m.AddFallback()
	m.Log(zerolog.New(&buf))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Session metrics", line["message"])
	assert.Equal(t, float64(1), line["fallbacks"])
}
