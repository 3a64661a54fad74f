package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// VoskEngine opens sessions against a Vosk websocket server. Vosk does not
// attribute speakers, so its recognizers never carry speaker ids.
type VoskEngine struct {
	serverURL  string
	sampleRate int
	dialer     *websocket.Dialer
	log        zerolog.Logger
}

func NewVoskEngine(serverURL string, sampleRate int, log zerolog.Logger) *VoskEngine {
	return &VoskEngine{
		serverURL:  serverURL,
		sampleRate: sampleRate,
		dialer:     websocket.DefaultDialer,
		log:        log.With().Str("component", "vosk").Logger(),
	}
}

func (e *VoskEngine) Name() string { return "vosk" }

func (e *VoskEngine) SupportsDiarization() bool { return false }

func (e *VoskEngine) Open(ctx context.Context, _ bool) (Recognizer, error) {
	url := fmt.Sprintf("%s/ws?sample_rate=%d", e.serverURL, e.sampleRate)
	conn, _, err := e.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Vosk server: %w", err)
	}

	vt := &VoskTranscriber{
		conn:    conn,
		results: make(chan Result, 100),
		done:    make(chan struct{}),
		log:     e.log,
	}
	// Vosk has no session handshake; an accepted connection is a started stream.
	vt.results <- newResult(ResultStarted, "", "")

	go vt.handleResults()

	return vt, nil
}

// VoskTranscriber is one Vosk recognition stream.
type VoskTranscriber struct {
	conn      *websocket.Conn
	results   chan Result
	mu        sync.Mutex
	closing   bool
	closeOnce sync.Once
	done      chan struct{}
	log       zerolog.Logger
}

type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

func (vt *VoskTranscriber) ProcessAudio(audioData []byte) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	if err := vt.conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
		return fmt.Errorf("failed to send audio to Vosk: %w", err)
	}
	return nil
}

func (vt *VoskTranscriber) isClosing() bool {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return vt.closing
}

func (vt *VoskTranscriber) handleResults() {
	defer close(vt.done)
	defer close(vt.results)

	for {
		_, message, err := vt.conn.ReadMessage()
		if err != nil {
			if !vt.isClosing() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				vt.log.Warn().Err(err).Msg("Vosk connection lost")
				vt.results <- canceledResult("ConnectionLost", err.Error())
			}
			return
		}

		var result VoskResult
		if err := json.Unmarshal(message, &result); err != nil {
			vt.log.Warn().Err(err).Msg("Failed to parse Vosk result")
			continue
		}

		if result.Partial != "" {
			vt.results <- newResult(ResultInterim, result.Partial, "")
		}
		if result.Text != "" {
			vt.results <- newResult(ResultFinal, result.Text, "")
		}
	}
}

func (vt *VoskTranscriber) Results() <-chan Result {
	return vt.results
}

// Stop sends EOF so Vosk emits its last final result, then waits for the
// server to close the stream or ctx.
func (vt *VoskTranscriber) Stop(ctx context.Context) error {
	vt.mu.Lock()
	err := vt.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`))
	vt.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send EOF to Vosk: %w", err)
	}

	select {
	case <-vt.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (vt *VoskTranscriber) Close() error {
	var err error
	vt.closeOnce.Do(func() {
		vt.mu.Lock()
		vt.closing = true
		vt.mu.Unlock()
		err = vt.conn.Close()
	})
	return err
}
