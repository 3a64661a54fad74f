// Package session owns the state of one transcription session: speakers,
// mode, transcript and timer. All handlers run under one lock, in the
// order the recognition engine delivers its results.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/metrics"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

var (
	// ErrNoRecognitionPath is fatal: neither the diarizing nor the plain
	// recognizer could be started.
	ErrNoRecognitionPath = mode.ErrNoRecognitionPath

	ErrNotRecording         = errors.New("session is not recording")
	ErrAlreadyStarted       = errors.New("session already started")
	ErrConfirmationRequired = errors.New("clearing the transcript requires confirmation")
)

// Options configures a session.
type Options struct {
	// Provider names the recognition backend in metrics and exports.
	Provider string
	// Journal receives the session's JSONL records and is closed on Stop.
	Journal      *Journal
	TickInterval time.Duration
	Log          zerolog.Logger
}

// Session is one recording session.
type Session struct {
	id       string
	provider string
	engine   transcriber.Engine
	log      zerolog.Logger
	metrics  *metrics.SessionMetrics
	timer    *Timer

	mu         sync.Mutex
	registry   *speaker.Registry
	assembler  *transcript.Assembler
	switcher   *mode.Switcher
	controller *mode.Controller
	renderer   *transcript.TextRenderer
	journal    *Journal
	listeners  map[int]Listener
	nextListen int
	recording  bool
	stopped    bool
	started    time.Time
	ended      time.Time
	err        error

	ctx      context.Context
	cancel   context.CancelFunc
	pumps    sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a session. An empty id gets a random one. A nil engine
// yields a replay-only session fed through Append.
func New(id string, engine transcriber.Engine, opts Options) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	provider := opts.Provider
	if provider == "" && engine != nil {
		provider = engine.Name()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		provider:  provider,
		engine:    engine,
		log:       opts.Log.With().Str("component", "session").Str("session_id", id).Logger(),
		metrics:   metrics.NewSessionMetrics(provider, id),
		timer:     NewTimer(opts.TickInterval),
		registry:  speaker.NewRegistry(),
		assembler: transcript.NewAssembler(),
		journal:   opts.Journal,
		listeners: make(map[int]Listener),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.switcher = mode.NewSwitcher(s.registry, s.assembler)
	s.renderer = transcript.NewTextRenderer(s.registry)

	s.registry.OnChange(s.onSpeaker)
	s.assembler.OnEvent(s.onTranscript)
	s.switcher.OnChange(s.onActive)
	if engine != nil {
		s.controller = mode.NewController(engine, s.registry, s.assembler, s.switcher, opts.Log.With().Str("session_id", id).Logger())
		s.controller.OnEvent(s.onMode)
	}
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Provider() string { return s.provider }

// Start begins recording. With an engine it runs the capability check and
// opens the first recognizer; a fatal error is also reported through Err.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started.IsZero() {
		return ErrAlreadyStarted
	}

	s.started = time.Now()
	s.recording = true
	s.journal.LogStart(s.id, s.provider, s.started)
	s.timer.Start(s.onTick)
	s.log.Info().Str("provider", s.provider).Msg("Session started")

	if s.controller == nil {
		return nil
	}
	rec, err := s.controller.Start(ctx)
	if err != nil {
		s.failLocked(err)
		return err
	}
	s.startPump(rec)
	return nil
}

func (s *Session) startPump(rec transcriber.Recognizer) {
	s.pumps.Add(1)
	go s.pump(rec)
}

// pump drains rec until its stream ends, including after rec went stale.
func (s *Session) pump(rec transcriber.Recognizer) {
	defer s.pumps.Done()
	for res := range rec.Results() {
		s.handle(rec, res)
	}
}

func (s *Session) handle(rec transcriber.Recognizer, res transcriber.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.controller.Handle(s.ctx, rec, res)
	if err != nil {
		s.failLocked(err)
		return
	}
	if next != nil {
		s.metrics.AddFallback()
		s.startPump(next)
	}
}

func (s *Session) failLocked(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.recording = false
	s.timer.Stop()
	s.log.Error().Err(err).Msg("Session failed")
	s.journal.LogStop(s.id, time.Now(), err.Error())
	s.emit(Event{Kind: EventStopped, Error: err.Error()})
	s.closeDone()
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// ProcessAudio forwards audio to the current recognizer.
func (s *Session) ProcessAudio(audio []byte) error {
	s.mu.Lock()
	var rec transcriber.Recognizer
	if s.recording && s.controller != nil {
		rec = s.controller.Recognizer()
	}
	s.mu.Unlock()

	if rec == nil {
		return ErrNotRecording
	}
	s.metrics.AddAudioBytes(len(audio))
	return rec.ProcessAudio(audio)
}

// Stop ends the session: the recognizer is asked to flush, then released
// regardless of the outcome, manual controls are hidden and the timer
// stops. It returns the fatal error, if the session had one.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return s.Err()
	}
	s.stopped = true
	s.recording = false
	var rec transcriber.Recognizer
	if s.controller != nil {
		rec = s.controller.BeginStop()
	}
	s.mu.Unlock()

	// Results produced while flushing are still handled by the pump.
	if rec != nil {
		if err := rec.Stop(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Recognizer stop failed")
		}
	}

	s.mu.Lock()
	if s.controller != nil {
		s.controller.FinishStop()
	}
	s.timer.Stop()
	s.ended = time.Now()
	s.metrics.Finalize()
	if s.err == nil {
		s.journal.LogStop(s.id, s.ended, "stop")
		s.emit(Event{Kind: EventStopped, Elapsed: FormatElapsed(s.timer.Elapsed())})
	}
	journal := s.journal
	s.journal = nil
	s.mu.Unlock()

	s.cancel()
	s.closeDone()
	if journal != nil {
		if err := journal.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close session journal")
		}
	}

	waited := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		s.log.Warn().Msg("Recognizer streams still open after stop")
	}

	s.metrics.Log(s.log)
	s.log.Info().Str("elapsed", FormatElapsed(s.Elapsed())).Msg("Session stopped")
	return s.Err()
}

// Done is closed when the session stops or fails.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Elapsed returns the recording time.
func (s *Session) Elapsed() time.Duration {
	return s.timer.Elapsed()
}

// Recording reports whether the session accepts audio and shortcuts.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Subscribe adds a listener and returns a function removing it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) emit(ev Event) {
	ev.SessionID = s.id
	for _, l := range s.listeners {
		l(ev)
	}
}

// Metrics returns the session counters.
func (s *Session) Metrics() metrics.Snapshot {
	return s.metrics.Snapshot()
}

// Summary returns the human-readable metrics summary.
func (s *Session) Summary() string {
	return s.metrics.Summary()
}
