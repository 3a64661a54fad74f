package mode

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

type harness struct {
	engine    *fakeEngine
	registry  *speaker.Registry
	assembler *transcript.Assembler
	switcher  *Switcher
	ctrl      *Controller
	events    []Event
}

func newHarness(engine *fakeEngine) *harness {
	h := &harness{
		engine:    engine,
		registry:  speaker.NewRegistry(),
		assembler: transcript.NewAssembler(),
	}
	h.switcher = NewSwitcher(h.registry, h.assembler)
	h.ctrl = NewController(engine, h.registry, h.assembler, h.switcher, zerolog.Nop())
	h.ctrl.OnEvent(func(ev Event) { h.events = append(h.events, ev) })
	return h
}

func (h *harness) feed(t *testing.T, rec transcriber.Recognizer, res transcriber.Result) transcriber.Recognizer {
	t.Helper()
	next, err := h.ctrl.Handle(context.Background(), rec, res)
	require.NoError(t, err)
	return next
}

func TestStartWithoutDiarizationEntersManual(t *testing.T) {
	h := newHarness(&fakeEngine{})

	rec, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, StateManualActive, h.ctrl.State())
	assert.Equal(t, ModeManualSwitching, h.ctrl.Mode())
	assert.True(t, h.ctrl.ManualControls())
	assert.Equal(t, 0, h.ctrl.Fallbacks())

	require.Equal(t, 1, h.registry.Count())
	assert.Equal(t, "Manual-1", h.switcher.ActiveID())
	require.Len(t, h.engine.opened, 1)
	assert.False(t, h.engine.opened[0].diarize)
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(&fakeEngine{})
	_, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)

	_, err = h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestAutoDiarizationRegistersSpeakers(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true})

	rec, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAttemptingAuto, h.ctrl.State())
	assert.Equal(t, ModeAutoDiarization, h.ctrl.Mode())

	h.feed(t, rec, transcriber.Result{Kind: transcriber.ResultStarted})
	assert.Equal(t, StateAutoActive, h.ctrl.State())
	assert.False(t, h.ctrl.ManualControls())

	h.feed(t, rec, interim("hel", "Guest-1"))
	h.feed(t, rec, final("Hello.", "Guest-1"))
	h.feed(t, rec, final("Hi.", "Guest-2"))
	h.feed(t, rec, final("noise", ""))

	assert.Equal(t, 2, h.registry.Count())
	segs := h.assembler.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, speaker.Unknown, segs[2].SpeakerID)
	assert.False(t, segs[2].Labeled)
}

func TestFirstResultPromotesAttempt(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true})
	rec, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)

	h.feed(t, rec, interim("  ", "Guest-1"))
	assert.Equal(t, StateAttemptingAuto, h.ctrl.State(), "empty text does not count")
	assert.Equal(t, 0, h.registry.Count())

	h.feed(t, rec, interim("ahoj", "Guest-1"))
	assert.Equal(t, StateAutoActive, h.ctrl.State())
	assert.Equal(t, 1, h.registry.Count())
}

func TestAutoOpenFailureFallsBack(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true, failAuto: true})

	rec, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, StateManualActive, h.ctrl.State())
	assert.Equal(t, 1, h.ctrl.Fallbacks())
	assert.Equal(t, "Manual-1", h.switcher.ActiveID())

	var states []State
	for _, ev := range h.events {
		if ev.Kind == EventStateChanged {
			states = append(states, ev.To)
		}
	}
	assert.Equal(t, []State{StateAttemptingAuto, StateManualActive}, states)
}

func TestCancellationFallsBackWithoutLosingTranscript(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true})
	auto, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)

	h.feed(t, auto, final("Dobrý den.", "Guest-1"))
	h.feed(t, auto, interim("a pak", "Guest-1"))

	manual := h.feed(t, auto, canceled("ConnectionLost"))
	require.NotNil(t, manual)
	assert.NotSame(t, auto, manual)
	assert.Equal(t, 1, h.engine.opened[0].closed, "auto recognizer released")

	assert.Equal(t, StateManualActive, h.ctrl.State())
	assert.True(t, h.ctrl.ManualControls())
	assert.Equal(t, 1, h.assembler.FinalCount())

	// One manual speaker next to the detected one.
	assert.Equal(t, 2, h.registry.Count())
	assert.Equal(t, "Manual-2", h.switcher.ActiveID())

	h.feed(t, manual, final("Rozumím.", ""))
	segs := h.assembler.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, "Dobrý den.", segs[0].Text)
	assert.Equal(t, "Manual-2", segs[1].SpeakerID)
	assert.True(t, segs[1].Labeled)
}

func TestStaleRecognizerEventsAreIgnored(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true})
	auto, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)

	manual := h.feed(t, auto, canceled("Error"))
	require.NotNil(t, manual)

	assert.Nil(t, h.feed(t, auto, final("late", "Guest-9")))
	assert.Nil(t, h.feed(t, auto, canceled("Error")))

	assert.Equal(t, 0, h.assembler.FinalCount())
	assert.Equal(t, 1, h.registry.Count())
	assert.Equal(t, 1, h.ctrl.Fallbacks())
}

func TestManualFailureIsFatal(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true, failAuto: true, failManual: true})

	rec, err := h.ctrl.Start(context.Background())
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRecognitionPath))
	assert.Equal(t, StateStopped, h.ctrl.State())
	assert.False(t, h.ctrl.ManualControls())
}

func TestCancellationInManualModeIsReported(t *testing.T) {
	h := newHarness(&fakeEngine{})
	rec, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)

	next := h.feed(t, rec, canceled("Error"))
	assert.Nil(t, next)
	assert.Equal(t, StateManualActive, h.ctrl.State())

	last := h.events[len(h.events)-1]
	assert.Equal(t, EventEngineError, last.Kind)
	assert.Equal(t, "Error", last.Reason)
}

func TestStopReleasesRecognizer(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)
	_, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	engine.opened[0].stopErr = errors.New("flush failed")

	h.ctrl.Stop(context.Background())

	assert.Equal(t, StateStopped, h.ctrl.State())
	assert.False(t, h.ctrl.ManualControls())
	assert.Nil(t, h.ctrl.Recognizer())
	assert.Equal(t, 1, engine.opened[0].stopped)
	assert.Equal(t, 1, engine.opened[0].closed, "closed even when stop fails")

	h.ctrl.Stop(context.Background())
	assert.Equal(t, 1, engine.opened[0].stopped)
}

func TestStopBeforeStart(t *testing.T) {
	h := newHarness(&fakeEngine{})
	h.ctrl.Stop(context.Background())
	assert.Equal(t, StateStopped, h.ctrl.State())
}

func TestShortcutsOnlyInManualWhileRecording(t *testing.T) {
	auto := newHarness(&fakeEngine{diarization: true})
	_, err := auto.ctrl.Start(context.Background())
	require.NoError(t, err)
	auto.registry.Register("Guest-1")
	assert.False(t, auto.ctrl.ApplyShortcut(Shortcut{Kind: ShortcutCycle}, true))

	manual := newHarness(&fakeEngine{})
	_, err = manual.ctrl.Start(context.Background())
	require.NoError(t, err)
	manual.switcher.AddSpeaker()

	assert.False(t, manual.ctrl.ApplyShortcut(Shortcut{Kind: ShortcutJump, Index: 1}, false))
	assert.Equal(t, "Manual-2", manual.switcher.ActiveID())

	assert.True(t, manual.ctrl.ApplyShortcut(Shortcut{Kind: ShortcutJump, Index: 1}, true))
	assert.Equal(t, "Manual-1", manual.switcher.ActiveID())
}

func TestCancellationWhileStoppingDoesNotFallBack(t *testing.T) {
	h := newHarness(&fakeEngine{diarization: true})
	auto, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)

	require.Same(t, auto, h.ctrl.BeginStop())
	h.feed(t, auto, final("flushed", "Guest-1"))
	assert.Nil(t, h.feed(t, auto, canceled("ConnectionLost")))
	h.ctrl.FinishStop()

	assert.Equal(t, StateStopped, h.ctrl.State())
	assert.Equal(t, 0, h.ctrl.Fallbacks())
	assert.Equal(t, 1, h.assembler.FinalCount())
	assert.Len(t, h.engine.opened, 1)
}
