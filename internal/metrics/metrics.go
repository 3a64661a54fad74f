package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// bytesPerSecond of 8kHz 16-bit mono AudioSocket audio.
const bytesPerSecond = 8000 * 2

type SessionMetrics struct {
	Provider         string
	SessionID        string
	StartTime        time.Time
	EndTime          time.Time
	AudioBytes       int
	TranscriptLength int
	InterimCount     int
	FinalCount       int
	LabelCount       int
	SpeakerCount     int
	SwitchCount      int
	FallbackCount    int
	FirstResultTime  *time.Time
	mu               sync.Mutex
}

func NewSessionMetrics(provider, sessionID string) *SessionMetrics {
	return &SessionMetrics{
		Provider:  provider,
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

func (m *SessionMetrics) AddAudioBytes(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioBytes += bytes
}

func (m *SessionMetrics) AddTranscriptResult(text string, isFinal, labeled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstResultTime == nil {
		now := time.Now()
		m.FirstResultTime = &now
	}

	if !isFinal {
		m.InterimCount++
		return
	}
	m.TranscriptLength += len(text)
	m.FinalCount++
	if labeled {
		m.LabelCount++
	}
}

func (m *SessionMetrics) AddSpeaker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SpeakerCount++
}

func (m *SessionMetrics) AddSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SwitchCount++
}

func (m *SessionMetrics) AddFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackCount++
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		m.EndTime = time.Now()
	}
}

// Snapshot is a copy of the counters safe to hand to other goroutines.
type Snapshot struct {
	Provider         string        `json:"provider"`
	SessionID        string        `json:"session_id"`
	Duration         time.Duration `json:"duration"`
	AudioSeconds     float64       `json:"audio_seconds"`
	AudioBytes       int           `json:"audio_bytes"`
	TranscriptLength int           `json:"transcript_length"`
	FirstResult      time.Duration `json:"first_result_latency"`
	Interims         int           `json:"interims"`
	Finals           int           `json:"finals"`
	Labels           int           `json:"labels"`
	Speakers         int           `json:"speakers"`
	Switches         int           `json:"switches"`
	Fallbacks        int           `json:"fallbacks"`
}

func (m *SessionMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	var latency time.Duration
	if m.FirstResultTime != nil {
		latency = m.FirstResultTime.Sub(m.StartTime)
	}
	return Snapshot{
		Provider:         m.Provider,
		SessionID:        m.SessionID,
		Duration:         end.Sub(m.StartTime),
		AudioSeconds:     float64(m.AudioBytes) / bytesPerSecond,
		AudioBytes:       m.AudioBytes,
		TranscriptLength: m.TranscriptLength,
		FirstResult:      latency,
		Interims:         m.InterimCount,
		Finals:           m.FinalCount,
		Labels:           m.LabelCount,
		Speakers:         m.SpeakerCount,
		Switches:         m.SwitchCount,
		Fallbacks:        m.FallbackCount,
	}
}

func (m *SessionMetrics) Summary() string {
	s := m.Snapshot()

	var rtf float64
	if s.AudioSeconds > 0 {
		rtf = s.Duration.Seconds() / s.AudioSeconds
	}

	return fmt.Sprintf(
		"Provider: %s\n"+
			"Session: %s\n"+
			"Duration: %v\n"+
			"Audio Duration: %.2f seconds\n"+
			"Audio Bytes: %d\n"+
			"Transcript Length: %d chars\n"+
			"First Result Latency: %v\n"+
			"Interim Results: %d\n"+
			"Final Results: %d\n"+
			"Speaker Labels: %d\n"+
			"Speakers: %d\n"+
			"Manual Switches: %d\n"+
			"Fallbacks: %d\n"+
			"Real-time Factor: %.2fx\n",
		s.Provider,
		s.SessionID,
		s.Duration,
		s.AudioSeconds,
		s.AudioBytes,
		s.TranscriptLength,
		s.FirstResult,
		s.Interims,
		s.Finals,
		s.Labels,
		s.Speakers,
		s.Switches,
		s.Fallbacks,
		rtf,
	)
}

// Log writes the counters as one structured log line.
func (m *SessionMetrics) Log(log zerolog.Logger) {
	s := m.Snapshot()
	log.Info().
		Str("provider", s.Provider).
		Dur("duration", s.Duration).
		Float64("audio_seconds", s.AudioSeconds).
		Dur("first_result", s.FirstResult).
		Int("interims", s.Interims).
		Int("finals", s.Finals).
		Int("labels", s.Labels).
		Int("speakers", s.Speakers).
		Int("switches", s.Switches).
		Int("fallbacks", s.Fallbacks).
		Msg("Session metrics")
}
