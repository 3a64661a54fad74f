// Package transcript merges interim and final recognition results into an
// append-only, speaker-labeled transcript.
package transcript

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
)

// Segment is one unit of transcript text.
type Segment struct {
	SpeakerID string `json:"speaker_id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	// Labeled is set when a speaker label precedes the text.
	Labeled bool `json:"labeled,omitempty"`
	// TurnBreak is set when a line break precedes the label.
	TurnBreak bool `json:"turn_break,omitempty"`
}

// EventKind identifies a transcript change.
type EventKind string

const (
	EventPending        EventKind = "pending_updated"
	EventPendingDropped EventKind = "pending_dropped"
	EventFinal          EventKind = "segment_final"
	EventCleared        EventKind = "transcript_cleared"
)

// Event describes a transcript change. Index is the position of a final
// segment, or -1 for pending and clear events.
type Event struct {
	Kind    EventKind `json:"kind"`
	Index   int       `json:"index"`
	Segment Segment   `json:"segment"`
}

// Listener receives transcript events.
type Listener func(Event)

// Assembler holds the finalized segments, at most one pending segment and
// the last-speaker memory used to decide label emission. It is not safe for
// concurrent use.
type Assembler struct {
	segments      []Segment
	pending       *Segment
	lastSpeakerID string
	listeners     []Listener
}

// NewAssembler creates an empty transcript.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// OnEvent adds a listener for transcript events.
func (a *Assembler) OnEvent(l Listener) {
	if l != nil {
		a.listeners = append(a.listeners, l)
	}
}

func (a *Assembler) emit(ev Event) {
	for _, l := range a.listeners {
		l(ev)
	}
}

// CleanText trims engine artifacts: surrounding and repeated whitespace,
// and non-NFC unicode forms.
func CleanText(text string) string {
	return norm.NFC.String(strings.Join(strings.Fields(text), " "))
}

// Append applies one recognition result. Empty text is ignored. Interim
// text replaces the pending segment in place; final text drops the pending
// segment and appends an immutable segment, labeled only when the speaker
// differs from the last finalized one.
func (a *Assembler) Append(text string, isFinal bool, speakerID string) {
	text = CleanText(text)
	if text == "" {
		return
	}
	if speakerID == "" {
		speakerID = speaker.Unknown
	}

	if !isFinal {
		if a.pending == nil {
			a.pending = &Segment{}
		}
		a.pending.Text = text
		a.pending.SpeakerID = speakerID
		a.emit(Event{Kind: EventPending, Index: -1, Segment: *a.pending})
		return
	}

	if a.pending != nil {
		dropped := *a.pending
		a.pending = nil
		a.emit(Event{Kind: EventPendingDropped, Index: -1, Segment: dropped})
	}

	seg := Segment{SpeakerID: speakerID, Text: text, Final: true}
	if !speaker.IsUnknown(speakerID) && speakerID != a.lastSpeakerID {
		seg.Labeled = true
		seg.TurnBreak = len(a.segments) > 0
		a.lastSpeakerID = speakerID
	}
	a.segments = append(a.segments, seg)
	a.emit(Event{Kind: EventFinal, Index: len(a.segments) - 1, Segment: seg})
}

// ResetLastSpeaker forces the next final segment to carry a label.
func (a *Assembler) ResetLastSpeaker() {
	a.lastSpeakerID = ""
}

// LastSpeaker returns the speaker id of the last labeled final segment.
func (a *Assembler) LastSpeaker() string {
	return a.lastSpeakerID
}

// Clear empties the transcript and forgets the last speaker.
func (a *Assembler) Clear() {
	a.segments = nil
	a.pending = nil
	a.lastSpeakerID = ""
	a.emit(Event{Kind: EventCleared, Index: -1})
}

// Segments returns a copy of the finalized segments.
func (a *Assembler) Segments() []Segment {
	out := make([]Segment, len(a.segments))
	copy(out, a.segments)
	return out
}

// Pending returns the pending segment, if any.
func (a *Assembler) Pending() (Segment, bool) {
	if a.pending == nil {
		return Segment{}, false
	}
	return *a.pending, true
}

// Len returns the number of segments including the pending one.
func (a *Assembler) Len() int {
	n := len(a.segments)
	if a.pending != nil {
		n++
	}
	return n
}

// FinalCount returns the number of finalized segments.
func (a *Assembler) FinalCount() int {
	return len(a.segments)
}
