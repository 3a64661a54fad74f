package mode

import (
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
)

// TurnResetter forgets the last labeled speaker so the next final segment
// is labeled again.
type TurnResetter interface {
	ResetLastSpeaker()
}

// Switcher moves the active-speaker pointer used to label text while
// automatic diarization is unavailable.
type Switcher struct {
	registry *speaker.Registry
	turns    TurnResetter
	active   string
	onChange []func(speaker.Speaker)
}

// NewSwitcher creates a switcher over registry.
func NewSwitcher(registry *speaker.Registry, turns TurnResetter) *Switcher {
	return &Switcher{registry: registry, turns: turns}
}

// OnChange adds a callback invoked with the new active speaker.
func (s *Switcher) OnChange(fn func(speaker.Speaker)) {
	if fn != nil {
		s.onChange = append(s.onChange, fn)
	}
}

func (s *Switcher) setActive(sp speaker.Speaker) {
	s.active = sp.ExternalID
	for _, fn := range s.onChange {
		fn(sp)
	}
}

// ActiveID returns the external id of the active speaker, or "".
func (s *Switcher) ActiveID() string {
	return s.active
}

// Active returns the active speaker.
func (s *Switcher) Active() (speaker.Speaker, bool) {
	if s.active == "" {
		return speaker.Speaker{}, false
	}
	return s.registry.Lookup(s.active)
}

// AddSpeaker registers a new manual speaker and makes it active.
func (s *Switcher) AddSpeaker() speaker.Speaker {
	sp := s.registry.RegisterManual()
	s.setActive(sp)
	return sp
}

// EnsureSpeaker guarantees a manual speaker exists and something is active.
// It is used when a session enters manual switching.
func (s *Switcher) EnsureSpeaker() speaker.Speaker {
	if !s.registry.HasManual() {
		return s.AddSpeaker()
	}
	if sp, ok := s.Active(); ok {
		return sp
	}
	for _, sp := range s.registry.All() {
		if sp.IsManual() {
			s.setActive(sp)
			return sp
		}
	}
	return s.AddSpeaker()
}

// Next cycles to the speaker registered after the active one, wrapping to
// the first, and resets the last-speaker memory so the next final segment
// is labeled. Returns false when no speakers exist.
func (s *Switcher) Next() bool {
	n := s.registry.Count()
	if n == 0 {
		return false
	}
	idx := (s.registry.IndexOf(s.active) + 1) % n
	sp, _ := s.registry.At(idx)
	s.setActive(sp)
	s.turns.ResetLastSpeaker()
	return true
}

// SwitchTo makes id active when it is registered. Unknown ids are ignored
// and leave the last-speaker memory untouched.
func (s *Switcher) SwitchTo(id string) bool {
	sp, ok := s.registry.Lookup(id)
	if !ok {
		return false
	}
	s.setActive(sp)
	s.turns.ResetLastSpeaker()
	return true
}

// JumpTo switches to the speaker at 1-based position n in registration order.
func (s *Switcher) JumpTo(n int) bool {
	sp, ok := s.registry.At(n - 1)
	if !ok {
		return false
	}
	return s.SwitchTo(sp.ExternalID)
}
