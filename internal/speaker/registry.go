// Package speaker keeps the per-session set of detected speakers and
// assigns their numbers, colors and roles.
package speaker

import (
	"fmt"
	"strings"
)

// Unknown is the sentinel id the recognition engine uses when it cannot
// attribute speech. It is never registered and never labeled.
const Unknown = "Unknown"

// ManualPrefix prefixes locally generated speaker ids.
const ManualPrefix = "Manual-"

// Speaker is one distinguishable participant of a session.
type Speaker struct {
	ExternalID string `json:"external_id"`
	Number     int    `json:"number"`
	Role       string `json:"role,omitempty"`
	Color      Color  `json:"color"`
}

// Label returns the display label, e.g. "Speaker 2" or "Psycholog (S1)".
func (s Speaker) Label() string {
	if s.Role != "" {
		return fmt.Sprintf("%s (S%d)", s.Role, s.Number)
	}
	return fmt.Sprintf("Speaker %d", s.Number)
}

// IsManual reports whether the speaker was created locally rather than
// detected by the engine.
func (s Speaker) IsManual() bool {
	return strings.HasPrefix(s.ExternalID, ManualPrefix)
}

// EventKind identifies a registry change.
type EventKind string

const (
	EventRegistered   EventKind = "speaker_registered"
	EventRoleAssigned EventKind = "speaker_role_assigned"
)

// Event describes a registry change. A role assignment makes every label
// already rendered for Speaker stale.
type Event struct {
	Kind    EventKind `json:"kind"`
	Speaker Speaker   `json:"speaker"`
}

// Listener receives registry events.
type Listener func(Event)

// IsUnknown reports whether id carries no usable speaker identity.
func IsUnknown(id string) bool {
	return id == "" || id == Unknown
}

// Registry owns the speakers of one session. It is not safe for concurrent
// use; the owning session serialises access.
type Registry struct {
	speakers  map[string]*Speaker
	order     []string
	counter   int
	listeners []Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		speakers: make(map[string]*Speaker),
	}
}

// OnChange adds a listener for registry events.
func (r *Registry) OnChange(l Listener) {
	if l != nil {
		r.listeners = append(r.listeners, l)
	}
}

func (r *Registry) emit(kind EventKind, s *Speaker) {
	ev := Event{Kind: kind, Speaker: *s}
	for _, l := range r.listeners {
		l(ev)
	}
}

// Register records externalID on first sighting and returns its speaker.
// Known ids are returned unchanged. The bool is false for the unknown
// sentinel, in which case nothing is recorded.
func (r *Registry) Register(externalID string) (Speaker, bool) {
	if IsUnknown(externalID) {
		return Speaker{}, false
	}
	if s, ok := r.speakers[externalID]; ok {
		return *s, true
	}
	return *r.add(externalID), true
}

// RegisterManual creates a locally generated speaker ("Manual-N") with the
// next sequence number.
func (r *Registry) RegisterManual() Speaker {
	n := r.counter + 1
	id := fmt.Sprintf("%s%d", ManualPrefix, n)
	for suffix := 2; r.has(id); suffix++ {
		id = fmt.Sprintf("%s%d-%d", ManualPrefix, n, suffix)
	}
	return *r.add(id)
}

func (r *Registry) add(externalID string) *Speaker {
	r.counter++
	s := &Speaker{
		ExternalID: externalID,
		Number:     r.counter,
		Color:      ColorFor(r.counter),
	}
	r.speakers[externalID] = s
	r.order = append(r.order, externalID)
	r.emit(EventRegistered, s)
	return s
}

func (r *Registry) has(id string) bool {
	_, ok := r.speakers[id]
	return ok
}

// AssignRole sets the role of a registered speaker. Unregistered ids are
// ignored and false is returned.
func (r *Registry) AssignRole(externalID, role string) bool {
	s, ok := r.speakers[externalID]
	if !ok {
		return false
	}
	s.Role = strings.TrimSpace(role)
	r.emit(EventRoleAssigned, s)
	return true
}

// Lookup returns the speaker registered under externalID.
func (r *Registry) Lookup(externalID string) (Speaker, bool) {
	s, ok := r.speakers[externalID]
	if !ok {
		return Speaker{}, false
	}
	return *s, true
}

// Label returns the display label for externalID, or "?" when the id is
// unknown or unregistered.
func (r *Registry) Label(externalID string) string {
	s, ok := r.speakers[externalID]
	if !ok {
		return "?"
	}
	return s.Label()
}

// Color returns the speaker's palette color, or NeutralColor.
func (r *Registry) Color(externalID string) Color {
	s, ok := r.speakers[externalID]
	if !ok {
		return NeutralColor
	}
	return s.Color
}

// Count returns the number of registered speakers.
func (r *Registry) Count() int {
	return len(r.order)
}

// All returns the speakers in registration order.
func (r *Registry) All() []Speaker {
	out := make([]Speaker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.speakers[id])
	}
	return out
}

// At returns the speaker at a 0-based registration index.
func (r *Registry) At(index int) (Speaker, bool) {
	if index < 0 || index >= len(r.order) {
		return Speaker{}, false
	}
	return *r.speakers[r.order[index]], true
}

// IndexOf returns the registration index of externalID, or -1.
func (r *Registry) IndexOf(externalID string) int {
	for i, id := range r.order {
		if id == externalID {
			return i
		}
	}
	return -1
}

// HasManual reports whether any locally generated speaker exists.
func (r *Registry) HasManual() bool {
	for _, id := range r.order {
		if r.speakers[id].IsManual() {
			return true
		}
	}
	return false
}
