package transcript

import (
	"strings"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
)

// Labeler resolves a speaker id to its display label.
type Labeler interface {
	Label(speakerID string) string
}

// LabelerFunc adapts a function to Labeler.
type LabelerFunc func(speakerID string) string

func (f LabelerFunc) Label(speakerID string) string { return f(speakerID) }

// Render composes the plain-text transcript.
func Render(segments []Segment, pending *Segment, labeler Labeler) string {
	var b strings.Builder
	for _, seg := range segments {
		writeFinal(&b, seg, labeler)
	}
	if pending != nil {
		writePending(&b, *pending, labeler)
	}
	return b.String()
}

func writeFinal(b *strings.Builder, seg Segment, labeler Labeler) {
	if seg.Labeled {
		if seg.TurnBreak {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(labeler.Label(seg.SpeakerID))
		b.WriteString("] ")
	}
	b.WriteString(seg.Text)
	b.WriteString(" ")
}

func writePending(b *strings.Builder, seg Segment, labeler Labeler) {
	if speaker.IsUnknown(seg.SpeakerID) {
		b.WriteString(" ")
		b.WriteString(seg.Text)
		return
	}
	b.WriteString(" [")
	b.WriteString(labeler.Label(seg.SpeakerID))
	b.WriteString("] ")
	b.WriteString(seg.Text)
}

// TextRenderer keeps a rendered copy of a transcript up to date from
// assembler events. Final segments are rendered once and cached; a
// role change for a speaker with labels in the cache triggers a rebuild.
type TextRenderer struct {
	labeler  Labeler
	segments []Segment
	pending  *Segment
	final    strings.Builder
}

// NewTextRenderer creates a renderer resolving labels through labeler.
func NewTextRenderer(labeler Labeler) *TextRenderer {
	return &TextRenderer{labeler: labeler}
}

// Handle consumes one transcript event.
func (r *TextRenderer) Handle(ev Event) {
	switch ev.Kind {
	case EventPending:
		seg := ev.Segment
		r.pending = &seg
	case EventPendingDropped:
		r.pending = nil
	case EventFinal:
		r.segments = append(r.segments, ev.Segment)
		writeFinal(&r.final, ev.Segment, r.labeler)
	case EventCleared:
		r.segments = nil
		r.pending = nil
		r.final.Reset()
	}
}

// Invalidate marks labels of speakerID as stale and re-renders the cached
// text when any of them were emitted.
func (r *TextRenderer) Invalidate(speakerID string) {
	for _, seg := range r.segments {
		if seg.Labeled && seg.SpeakerID == speakerID {
			r.rebuild()
			return
		}
	}
}

func (r *TextRenderer) rebuild() {
	r.final.Reset()
	for _, seg := range r.segments {
		writeFinal(&r.final, seg, r.labeler)
	}
}

// String returns the current transcript text, pending segment included.
func (r *TextRenderer) String() string {
	if r.pending == nil {
		return r.final.String()
	}
	var b strings.Builder
	b.WriteString(r.final.String())
	writePending(&b, *r.pending, r.labeler)
	return b.String()
}

// FinalText returns the rendered finalized segments only.
func (r *TextRenderer) FinalText() string {
	return r.final.String()
}
