package session

import (
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

// EventKind identifies a session event.
type EventKind string

const (
	EventTranscript    EventKind = "transcript"
	EventSpeaker       EventKind = "speaker"
	EventMode          EventKind = "mode"
	EventActiveSpeaker EventKind = "active_speaker"
	EventTick          EventKind = "tick"
	EventStopped       EventKind = "stopped"
)

// Event is delivered to session listeners. Exactly one of the pointer
// fields matching Kind is set. Text carries the rendered transcript after
// transcript and role changes.
type Event struct {
	Kind       EventKind         `json:"type"`
	SessionID  string            `json:"session_id"`
	Transcript *transcript.Event `json:"transcript,omitempty"`
	Speaker    *speaker.Event    `json:"speaker,omitempty"`
	Mode       *mode.Event       `json:"mode,omitempty"`
	Active     *speaker.Speaker  `json:"active,omitempty"`
	Elapsed    string            `json:"elapsed,omitempty"`
	Text       string            `json:"text,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Listener receives session events. Listeners run while the session is
// locked and must not call back into it.
type Listener func(Event)
