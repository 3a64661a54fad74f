package session

import (
	"time"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

// The handlers below run with s.mu held.

func (s *Session) onTranscript(ev transcript.Event) {
	s.renderer.Handle(ev)

	switch ev.Kind {
	case transcript.EventPending:
		s.metrics.AddTranscriptResult(ev.Segment.Text, false, false)
	case transcript.EventFinal:
		s.metrics.AddTranscriptResult(ev.Segment.Text, true, ev.Segment.Labeled)
		s.journal.LogFinal(s.id, ev.Segment.SpeakerID, ev.Segment.Text)
		s.log.Debug().
			Str("speaker", ev.Segment.SpeakerID).
			Bool("labeled", ev.Segment.Labeled).
			Str("text", ev.Segment.Text).
			Msg("Final segment")
	case transcript.EventCleared:
		s.journal.LogClear(s.id)
		s.log.Info().Msg("Transcript cleared")
	}

	s.emit(Event{Kind: EventTranscript, Transcript: &ev, Text: s.renderer.String()})
}

func (s *Session) onSpeaker(ev speaker.Event) {
	out := Event{Kind: EventSpeaker, Speaker: &ev}
	switch ev.Kind {
	case speaker.EventRegistered:
		s.metrics.AddSpeaker()
		s.journal.LogSpeaker(s.id, ev.Speaker.ExternalID, ev.Speaker.Label())
		s.log.Info().
			Str("speaker", ev.Speaker.ExternalID).
			Int("number", ev.Speaker.Number).
			Msg("Speaker registered")
	case speaker.EventRoleAssigned:
		s.renderer.Invalidate(ev.Speaker.ExternalID)
		s.journal.LogRole(s.id, ev.Speaker.ExternalID, ev.Speaker.Label())
		s.log.Info().
			Str("speaker", ev.Speaker.ExternalID).
			Str("role", ev.Speaker.Role).
			Msg("Role assigned")
		out.Text = s.renderer.String()
	}
	s.emit(out)
}

func (s *Session) onActive(sp speaker.Speaker) {
	s.metrics.AddSwitch()
	s.journal.LogSwitch(s.id, sp.ExternalID, sp.Label())
	s.log.Debug().Str("speaker", sp.ExternalID).Msg("Active speaker changed")
	s.emit(Event{Kind: EventActiveSpeaker, Active: &sp})
}

func (s *Session) onMode(ev mode.Event) {
	switch ev.Kind {
	case mode.EventStateChanged:
		s.journal.LogMode(s.id, string(ev.From), string(ev.To), ev.Reason)
	case mode.EventEngineError:
		s.journal.LogEngineError(s.id, ev.Reason, ev.Details)
	}
	s.emit(Event{Kind: EventMode, Mode: &ev})
}

func (s *Session) onTick(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return
	}
	s.emit(Event{Kind: EventTick, Elapsed: FormatElapsed(elapsed)})
}

// RegisterSpeaker records an engine speaker tag.
func (s *Session) RegisterSpeaker(externalID string) (speaker.Speaker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Register(externalID)
}

// AssignRole sets a speaker's role. Labels already rendered for the
// speaker are refreshed.
func (s *Session) AssignRole(externalID, role string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.AssignRole(externalID, role)
}

func (s *Session) Label(externalID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Label(externalID)
}

func (s *Session) Color(externalID string) speaker.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Color(externalID)
}

// Speakers returns the registered speakers in registration order.
func (s *Session) Speakers() []speaker.Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.All()
}

func (s *Session) SpeakerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Count()
}

// AddSpeaker registers a manual speaker and makes it active.
func (s *Session) AddSpeaker() speaker.Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switcher.AddSpeaker()
}

// Next moves the active pointer to the following speaker.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switcher.Next()
}

// SwitchTo makes a registered speaker active.
func (s *Session) SwitchTo(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switcher.SwitchTo(externalID)
}

// JumpTo makes the speaker at 1-based position n active.
func (s *Session) JumpTo(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switcher.JumpTo(n)
}

// Shortcut applies a switching shortcut. It only acts in manual mode while
// recording.
func (s *Session) Shortcut(sc mode.Shortcut) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		return false
	}
	return s.controller.ApplyShortcut(sc, s.recording)
}

// ClearTranscript empties the transcript and forgets the last speaker.
// The caller must have obtained confirmation.
func (s *Session) ClearTranscript(confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assembler.Clear()
	return nil
}

// Append feeds a recognition result directly into the transcript, as the
// engine would in automatic mode. Tagged speakers are registered first.
func (s *Session) Append(text string, isFinal bool, speakerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transcript.CleanText(text) == "" {
		return
	}
	s.registry.Register(speakerID)
	s.assembler.Append(text, isFinal, speakerID)
}

// Text returns the rendered transcript, pending segment included.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderer.String()
}

// State returns the mode controller state.
func (s *Session) State() mode.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		if s.stopped {
			return mode.StateStopped
		}
		return mode.StateUninitialized
	}
	return s.controller.State()
}

// Mode returns the attribution mode.
func (s *Session) Mode() mode.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		return mode.ModeUndetermined
	}
	return s.controller.Mode()
}
