package session

import (
	"time"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/metrics"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

// Snapshot is a point-in-time copy of a session, handed to the HTTP API
// and to export sinks.
type Snapshot struct {
	ID             string               `json:"id"`
	Provider       string               `json:"provider"`
	Mode           mode.Mode            `json:"mode"`
	State          mode.State           `json:"state"`
	Recording      bool                 `json:"recording"`
	ManualControls bool                 `json:"manual_controls"`
	ActiveSpeaker  string               `json:"active_speaker,omitempty"`
	Speakers       []speaker.Speaker    `json:"speakers"`
	Segments       []transcript.Segment `json:"segments"`
	Pending        *transcript.Segment  `json:"pending,omitempty"`
	Text           string               `json:"text"`
	Elapsed        string               `json:"elapsed"`
	StartedAt      time.Time            `json:"started_at"`
	EndedAt        time.Time            `json:"ended_at,omitzero"`
	Duration       time.Duration        `json:"duration"`
	Metrics        metrics.Snapshot     `json:"metrics"`
	Error          string               `json:"error,omitempty"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	elapsed := s.timer.Elapsed()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		Provider:      s.provider,
		Mode:          mode.ModeUndetermined,
		State:         mode.StateUninitialized,
		Recording:     s.recording,
		ActiveSpeaker: s.switcher.ActiveID(),
		Speakers:      s.registry.All(),
		Segments:      s.assembler.Segments(),
		Text:          s.renderer.String(),
		Elapsed:       FormatElapsed(elapsed),
		StartedAt:     s.started,
		EndedAt:       s.ended,
		Duration:      elapsed,
		Metrics:       s.metrics.Snapshot(),
	}
	if s.controller != nil {
		snap.Mode = s.controller.Mode()
		snap.State = s.controller.State()
		snap.ManualControls = s.controller.ManualControls()
	} else if s.stopped {
		snap.State = mode.StateStopped
	}
	if p, ok := s.assembler.Pending(); ok {
		snap.Pending = &p
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Label resolves a speaker label from the snapshot's speakers.
func (snap Snapshot) Label(externalID string) string {
	for _, sp := range snap.Speakers {
		if sp.ExternalID == externalID {
			return sp.Label()
		}
	}
	return "?"
}
