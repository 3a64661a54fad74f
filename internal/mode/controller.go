// Package mode decides whether a session attributes speech automatically
// (engine diarization) or through manual speaker switching, and routes
// recognition results accordingly.
package mode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

// Mode is the speaker attribution mode of a session.
type Mode string

const (
	ModeUndetermined    Mode = ""
	ModeAutoDiarization Mode = "AUTO_DIARIZATION"
	ModeManualSwitching Mode = "MANUAL_SWITCHING"
)

// State is a controller state.
type State string

const (
	StateUninitialized  State = "UNINITIALIZED"
	StateAttemptingAuto State = "ATTEMPTING_AUTO"
	StateAutoActive     State = "AUTO_ACTIVE"
	StateManualActive   State = "MANUAL_ACTIVE"
	StateStopped        State = "STOPPED"
)

// ErrNoRecognitionPath is returned when the manual-switching recognizer
// cannot be started. It is fatal to the session.
var ErrNoRecognitionPath = errors.New("no viable recognition path")

// ErrAlreadyStarted is returned by Start on a controller that left
// StateUninitialized.
var ErrAlreadyStarted = errors.New("mode controller already started")

// EventKind identifies a controller event.
type EventKind string

const (
	EventStateChanged   EventKind = "mode_changed"
	EventManualControls EventKind = "manual_controls"
	EventEngineError    EventKind = "engine_error"
)

// Event describes a controller change.
type Event struct {
	Kind           EventKind `json:"kind"`
	From           State     `json:"from,omitempty"`
	To             State     `json:"to,omitempty"`
	Mode           Mode      `json:"mode,omitempty"`
	ManualControls bool      `json:"manual_controls"`
	Reason         string    `json:"reason,omitempty"`
	Details        string    `json:"details,omitempty"`
}

// Listener receives controller events.
type Listener func(Event)

// Controller is the mode state machine of one session. Transitions are
// one-way: AUTO never follows MANUAL. It is not safe for concurrent use.
type Controller struct {
	state          State
	mode           Mode
	engine         transcriber.Engine
	rec            transcriber.Recognizer
	registry       *speaker.Registry
	assembler      *transcript.Assembler
	switcher       *Switcher
	manualControls bool
	stopping       bool
	fallbacks      int
	listeners      []Listener
	log            zerolog.Logger
}

// NewController wires a controller to the session's registry, transcript
// and switcher.
func NewController(engine transcriber.Engine, registry *speaker.Registry, assembler *transcript.Assembler, switcher *Switcher, log zerolog.Logger) *Controller {
	return &Controller{
		state:     StateUninitialized,
		engine:    engine,
		registry:  registry,
		assembler: assembler,
		switcher:  switcher,
		log:       log.With().Str("component", "mode").Logger(),
	}
}

// OnEvent adds a listener for controller events.
func (c *Controller) OnEvent(l Listener) {
	if l != nil {
		c.listeners = append(c.listeners, l)
	}
}

func (c *Controller) emit(ev Event) {
	for _, l := range c.listeners {
		l(ev)
	}
}

func (c *Controller) transition(to State, reason, details string) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	switch to {
	case StateAttemptingAuto, StateAutoActive:
		c.mode = ModeAutoDiarization
	case StateManualActive:
		c.mode = ModeManualSwitching
	}
	c.log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("Mode transition")
	c.emit(Event{Kind: EventStateChanged, From: from, To: to, Mode: c.mode, ManualControls: c.manualControls, Reason: reason, Details: details})
}

func (c *Controller) setManualControls(visible bool) {
	if c.manualControls == visible {
		return
	}
	c.manualControls = visible
	c.emit(Event{Kind: EventManualControls, Mode: c.mode, ManualControls: visible})
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Mode returns the attribution mode, undetermined before Start.
func (c *Controller) Mode() Mode { return c.mode }

// ManualControls reports whether manual switching affordances are shown.
func (c *Controller) ManualControls() bool { return c.manualControls }

// Fallbacks returns how many times the controller fell back to manual mode.
func (c *Controller) Fallbacks() int { return c.fallbacks }

// Recognizer returns the current recognizer, or nil.
func (c *Controller) Recognizer() transcriber.Recognizer { return c.rec }

// Start queries the engine capability once and opens the first recognizer.
// The returned recognizer's results must be fed back through Handle.
func (c *Controller) Start(ctx context.Context) (transcriber.Recognizer, error) {
	if c.state != StateUninitialized {
		return nil, ErrAlreadyStarted
	}

	if !c.engine.SupportsDiarization() {
		c.log.Info().Str("engine", c.engine.Name()).Msg("Engine has no diarization, using manual switching")
		return c.enterManual(ctx, "NoDiarization", "")
	}

	c.transition(StateAttemptingAuto, "Start", "")
	rec, err := c.engine.Open(ctx, true)
	if err != nil {
		c.log.Warn().Err(err).Msg("Diarizing recognizer failed to start, falling back")
		return c.fallback(ctx, "StartFailed", err.Error())
	}
	c.rec = rec
	return rec, nil
}

// Handle applies one result from rec. Results from a recognizer that is no
// longer current are discarded. A non-nil recognizer is returned when a
// fallback replaced the current one; a non-nil error is fatal.
func (c *Controller) Handle(ctx context.Context, rec transcriber.Recognizer, res transcriber.Result) (transcriber.Recognizer, error) {
	if rec == nil || rec != c.rec || c.state == StateStopped {
		return nil, nil
	}

	switch res.Kind {
	case transcriber.ResultStarted:
		if c.state == StateAttemptingAuto {
			c.transition(StateAutoActive, "Started", "")
		}
	case transcriber.ResultInterim, transcriber.ResultFinal:
		c.route(res.Text, res.Kind == transcriber.ResultFinal, res.SpeakerID)
	case transcriber.ResultCanceled:
		return c.canceled(ctx, res.Reason, res.Details)
	}
	return nil, nil
}

func (c *Controller) route(text string, isFinal bool, speakerID string) {
	if transcript.CleanText(text) == "" {
		return
	}

	switch c.state {
	case StateAttemptingAuto:
		c.transition(StateAutoActive, "FirstResult", "")
		fallthrough
	case StateAutoActive:
		if speaker.IsUnknown(speakerID) {
			speakerID = speaker.Unknown
		}
		c.registry.Register(speakerID)
		c.assembler.Append(text, isFinal, speakerID)
	case StateManualActive:
		c.assembler.Append(text, isFinal, c.switcher.ActiveID())
	}
}

func (c *Controller) canceled(ctx context.Context, reason, details string) (transcriber.Recognizer, error) {
	switch {
	case c.stopping:
		c.log.Debug().Str("reason", reason).Msg("Recognizer canceled while stopping")
		return nil, nil
	case c.state == StateAttemptingAuto || c.state == StateAutoActive:
		c.log.Warn().Str("reason", reason).Str("details", details).Msg("Diarization canceled, falling back to manual switching")
		c.release()
		return c.fallback(ctx, reason, details)
	default:
		c.log.Error().Str("reason", reason).Str("details", details).Msg("Recognition canceled")
		c.emit(Event{Kind: EventEngineError, Mode: c.mode, ManualControls: c.manualControls, Reason: reason, Details: details})
		return nil, nil
	}
}

func (c *Controller) fallback(ctx context.Context, reason, details string) (transcriber.Recognizer, error) {
	c.fallbacks++
	return c.enterManual(ctx, reason, details)
}

func (c *Controller) enterManual(ctx context.Context, reason, details string) (transcriber.Recognizer, error) {
	c.transition(StateManualActive, reason, details)
	active := c.switcher.EnsureSpeaker()
	c.setManualControls(true)
	c.log.Info().Str("speaker", active.ExternalID).Msg("Manual speaker active")

	rec, err := c.engine.Open(ctx, false)
	if err != nil {
		c.transition(StateStopped, "FallbackFailed", err.Error())
		c.setManualControls(false)
		return nil, fmt.Errorf("%w: %v", ErrNoRecognitionPath, err)
	}
	c.rec = rec
	return rec, nil
}

// release stops using the current recognizer without waiting for it to
// flush. Errors are ignored.
func (c *Controller) release() {
	if c.rec == nil {
		return
	}
	if err := c.rec.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Ignoring recognizer close error")
	}
	c.rec = nil
}

// ApplyShortcut runs a switching shortcut. Shortcuts only act in manual
// mode while the session is recording.
func (c *Controller) ApplyShortcut(sc Shortcut, recording bool) bool {
	if c.state != StateManualActive || !recording {
		return false
	}
	return sc.Apply(c.switcher)
}

// BeginStop marks the controller as stopping and returns the recognizer
// the caller must ask to stop. Results keep flowing through Handle while
// the recognizer flushes, but a cancellation no longer falls back.
func (c *Controller) BeginStop() transcriber.Recognizer {
	c.stopping = true
	return c.rec
}

// FinishStop releases the recognizer handle regardless of how its stop
// went, hides manual controls and enters StateStopped.
func (c *Controller) FinishStop() {
	c.stopping = true
	c.release()
	c.setManualControls(false)
	c.transition(StateStopped, "Stop", "")
}

// Stop ends the session from any state. It blocks while the recognizer
// flushes.
func (c *Controller) Stop(ctx context.Context) {
	if c.state == StateStopped && c.rec == nil {
		return
	}
	if rec := c.BeginStop(); rec != nil {
		if err := rec.Stop(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Recognizer stop failed")
		}
	}
	c.FinishStop()
}
