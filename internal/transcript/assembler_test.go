package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
)

func newRegistry(ids ...string) *speaker.Registry {
	reg := speaker.NewRegistry()
	for _, id := range ids {
		reg.Register(id)
	}
	return reg
}

func TestSameSpeakerLabeledOnce(t *testing.T) {
	reg := newRegistry("A")
	a := NewAssembler()

	a.Append("Hello", true, "A")
	a.Append("Hi", true, "A")

	text := Render(a.Segments(), nil, reg)
	assert.Equal(t, 1, strings.Count(text, "[Speaker 1]"))
	assert.Equal(t, "[Speaker 1] Hello Hi ", text)
}

func TestSpeakerChangeEmitsLabelAndTurnBreak(t *testing.T) {
	reg := newRegistry("A", "B")
	a := NewAssembler()

	a.Append("Hello", true, "A")
	a.Append("Yo", true, "B")

	segs := a.Segments()
	require.Len(t, segs, 2)
	assert.True(t, segs[0].Labeled)
	assert.False(t, segs[0].TurnBreak, "first label has nothing to separate")
	assert.True(t, segs[1].Labeled)
	assert.True(t, segs[1].TurnBreak)

	assert.Equal(t, "[Speaker 1] Hello \n[Speaker 2] Yo ", Render(segs, nil, reg))
}

func TestUnknownSpeakerNeverLabeled(t *testing.T) {
	a := NewAssembler()

	a.Append("one", true, speaker.Unknown)
	a.Append("two", true, "")

	for _, seg := range a.Segments() {
		assert.False(t, seg.Labeled)
		assert.Equal(t, speaker.Unknown, seg.SpeakerID)
	}
	assert.Equal(t, "", a.LastSpeaker())
}

func TestEmptyTextIsIgnored(t *testing.T) {
	a := NewAssembler()
	var events []Event
	a.OnEvent(func(ev Event) { events = append(events, ev) })

	a.Append("", true, "A")
	a.Append("   \t", false, "A")

	assert.Equal(t, 0, a.Len())
	assert.Empty(t, events)
}

func TestInterimReplacesPendingInPlace(t *testing.T) {
	a := NewAssembler()

	a.Append("partial", false, "A")
	lenAfterOne := a.Len()
	for i := 0; i < 10; i++ {
		a.Append("partial", false, "A")
	}
	assert.Equal(t, lenAfterOne, a.Len())
	assert.Equal(t, 1, a.Len())

	a.Append("partial text grows", false, "B")
	p, ok := a.Pending()
	require.True(t, ok)
	assert.Equal(t, "partial text grows", p.Text)
	assert.Equal(t, "B", p.SpeakerID, "pending segment is relabeled live")
	assert.False(t, p.Final)
}

func TestFinalSupersedesPending(t *testing.T) {
	a := NewAssembler()
	var kinds []EventKind
	a.OnEvent(func(ev Event) { kinds = append(kinds, ev.Kind) })

	a.Append("hel", false, "A")
	a.Append("hello wor", false, "A")
	a.Append("Hello world.", true, "A")

	_, ok := a.Pending()
	assert.False(t, ok)
	segs := a.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, "Hello world.", segs[0].Text)
	assert.Equal(t, []EventKind{EventPending, EventPending, EventPendingDropped, EventFinal}, kinds)
}

func TestPendingIsAlwaysLast(t *testing.T) {
	reg := newRegistry("A")
	a := NewAssembler()

	a.Append("First.", true, "A")
	a.Append("sec", false, "A")

	p, ok := a.Pending()
	require.True(t, ok)
	assert.Equal(t, "[Speaker 1] First.  [Speaker 1] sec", Render(a.Segments(), &p, reg))
}

func TestResetLastSpeakerForcesLabel(t *testing.T) {
	a := NewAssembler()

	a.Append("one", true, "A")
	a.ResetLastSpeaker()
	a.Append("two", true, "A")

	segs := a.Segments()
	require.Len(t, segs, 2)
	assert.True(t, segs[1].Labeled)
	assert.True(t, segs[1].TurnBreak)
}

func TestClearResetsTranscriptAndMemory(t *testing.T) {
	a := NewAssembler()
	a.Append("one", true, "A")
	a.Append("two", false, "A")

	a.Clear()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, "", a.LastSpeaker())

	a.Append("three", true, "A")
	segs := a.Segments()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Labeled)
	assert.False(t, segs[0].TurnBreak)
}

func TestCleanText(t *testing.T) {
	testCases := []struct {
		in          string
		want        string
		description string
	}{
		{"  hello   world ", "hello world", "Whitespace collapsed"},
		{"Z\u030ca\u0301k", "\u017d\u00e1k", "Decomposed diacritics composed"},
		{"\n\t", "", "Only whitespace"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanText(tc.in))
		})
	}
}

func TestSegmentsReturnsCopy(t *testing.T) {
	a := NewAssembler()
	a.Append("one", true, "A")

	segs := a.Segments()
	segs[0].Text = "changed"
	assert.Equal(t, "one", a.Segments()[0].Text)
}
