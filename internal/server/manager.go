package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/export"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// ManagerConfig controls how sessions are created and finished.
type ManagerConfig struct {
	// JournalDir enables JSONL session journals when set.
	JournalDir   string
	TickInterval time.Duration
	StopTimeout  time.Duration
}

// Manager tracks the live sessions of both the AudioSocket listener and
// the HTTP API.
type Manager struct {
	cfg       ManagerConfig
	exporter  *export.Exporter
	base      zerolog.Logger
	log       zerolog.Logger
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	listeners []session.Listener
}

// NewManager creates a manager. exporter may be nil.
func NewManager(cfg ManagerConfig, exporter *export.Exporter, log zerolog.Logger) *Manager {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		exporter: exporter,
		base:     log,
		log:      log.With().Str("component", "manager").Logger(),
		sessions: make(map[string]*session.Session),
	}
}

// OnEvent adds a listener attached to every session created afterwards.
func (m *Manager) OnEvent(l session.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Create registers a new, not yet started session. An empty id gets a
// random one; a nil engine makes a replay-only session.
func (m *Manager) Create(id string, engine transcriber.Engine, provider string) (*session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	opts := session.Options{
		Provider:     provider,
		TickInterval: m.cfg.TickInterval,
		Log:          m.base,
	}
	if m.cfg.JournalDir != "" {
		journal, err := session.NewJournal(m.cfg.JournalDir, id, time.Now())
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", id).Msg("Session journal disabled")
		} else {
			opts.Journal = journal
		}
	}

	s := session.New(id, engine, opts)
	for _, l := range m.listeners {
		s.Subscribe(l)
	}
	m.sessions[id] = s
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns the live session ids, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Finish stops a session, hands its record to the exporter and forgets it.
func (m *Manager) Finish(s *session.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()

	stopErr := s.Stop(ctx)
	defer m.remove(s.ID())

	if m.exporter != nil {
		exportCtx, cancelExport := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
		defer cancelExport()
		if err := m.exporter.Export(exportCtx, export.FromSnapshot(s.Snapshot())); err != nil {
			return errors.Join(stopErr, err)
		}
	}
	return stopErr
}

// Shutdown finishes every live session.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	live := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range live {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			if err := m.Finish(s); err != nil {
				m.log.Error().Err(err).Str("session_id", s.ID()).Msg("Session finished with error")
			}
		}(s)
	}
	wg.Wait()
}
