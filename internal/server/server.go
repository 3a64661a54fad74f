// Package server exposes sessions over AudioSocket (audio in, DTMF
// switching) and over HTTP (control API and live websocket feed).
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
)

type Config struct {
	Host string
	Port int
}

// Server accepts AudioSocket calls and runs one session per call.
type Server struct {
	config   Config
	engine   transcriber.Engine
	manager  *Manager
	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
	ready    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger
}

func New(config Config, engine transcriber.Engine, manager *Manager, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:   config,
		engine:   engine,
		manager:  manager,
		shutdown: make(chan struct{}),
		ready:    make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "audiosocket").Logger(),
	}
}

// Start listens and serves until Stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	close(s.ready)

	s.log.Info().Str("addr", listener.Addr().String()).Str("provider", s.engine.Name()).Msg("AudioSocket server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				s.log.Warn().Err(err).Msg("Accept error")
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

// Stop closes the listener and waits for active calls to finish.
func (s *Server) Stop() {
	close(s.shutdown)
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get ID")
		return
	}

	sess, err := s.manager.Create(id.String(), s.engine, s.engine.Name())
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to create session")
		return
	}
	log = log.With().Str("session_id", sess.ID()).Logger()
	started := time.Now()

	if err := sess.Start(s.ctx); err != nil {
		log.Error().Err(err).Msg("No recognition path, ending call")
		s.hangup(conn, log)
		s.finish(sess, log)
		return
	}

	// A fatal session error or shutdown ends the call; closing the
	// connection unblocks the read loop.
	go func() {
		select {
		case <-sess.Done():
			if sess.Err() == nil {
				return
			}
		case <-s.shutdown:
		}
		s.hangup(conn, log)
		conn.Close()
	}()

	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("Failed to read message")
			}
			break
		}

		if msg.Kind() == audiosocket.KindHangup {
			log.Info().Msg("Received hangup")
			break
		}

		if err := s.handleMessage(sess, msg, log); err != nil {
			log.Warn().Err(err).Msg("Error handling message")
			break
		}
	}

	s.finish(sess, log)
	log.Info().Dur("duration", time.Since(started)).Str("provider", s.engine.Name()).Msg("Session ended")
}

func (s *Server) handleMessage(sess *session.Session, msg audiosocket.Message, log zerolog.Logger) error {
	switch msg.Kind() {
	case audiosocket.KindSlin:
		audioData := msg.Payload()
		if len(audioData) > 0 {
			if err := sess.ProcessAudio(audioData); err != nil {
				return fmt.Errorf("failed to process audio: %w", err)
			}
		}

	case audiosocket.KindDTMF:
		payload := msg.Payload()
		if len(payload) == 0 {
			return nil
		}
		digit := payload[0]
		sc, ok := mode.ParseDTMF(digit)
		if !ok {
			log.Debug().Str("digit", string(digit)).Msg("Ignoring DTMF digit")
			return nil
		}
		applied := sess.Shortcut(sc)
		log.Debug().Str("digit", string(digit)).Bool("applied", applied).Msg("DTMF shortcut")

	case audiosocket.KindSilence:
		log.Debug().Msg("Silence detected")

	case audiosocket.KindError:
		return fmt.Errorf("received error code: %d", msg.ErrorCode())
	}
	return nil
}

func (s *Server) hangup(conn net.Conn, log zerolog.Logger) {
	if _, err := conn.Write(audiosocket.HangupMessage()); err != nil {
		log.Debug().Err(err).Msg("Failed to send hangup")
	}
}

func (s *Server) finish(sess *session.Session, log zerolog.Logger) {
	if err := s.manager.Finish(sess); err != nil {
		log.Error().Err(err).Msg("Session finished with error")
	}
}
