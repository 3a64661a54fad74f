package transcriber

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	AssemblyAIWebSocketURL = "wss://streaming.assemblyai.com/v3/ws"
	// AssemblyAI requires chunks between 50ms and 1000ms
	MinChunkDurationMs = 50
	MaxChunkDurationMs = 1000

	assemblyAISampleRate = 16000
)

// AssemblyAIEngine opens AssemblyAI streaming sessions.
type AssemblyAIEngine struct {
	url        string
	apiKey     string
	sampleRate int
	diarize    bool
	dialer     *websocket.Dialer
	log        zerolog.Logger
}

// NewAssemblyAIEngine creates an engine. An empty url selects the public
// streaming endpoint.
func NewAssemblyAIEngine(wsURL, apiKey string, sampleRate int, diarize bool, log zerolog.Logger) *AssemblyAIEngine {
	if wsURL == "" {
		wsURL = AssemblyAIWebSocketURL
	}
	return &AssemblyAIEngine{
		url:        wsURL,
		apiKey:     apiKey,
		sampleRate: sampleRate,
		diarize:    diarize,
		dialer:     websocket.DefaultDialer,
		log:        log.With().Str("component", "assemblyai").Logger(),
	}
}

func (e *AssemblyAIEngine) Name() string { return "assemblyai" }

func (e *AssemblyAIEngine) SupportsDiarization() bool { return e.diarize }

// Open connects a new streaming session. Speaker labels are requested only
// when diarize is set and the engine supports it.
func (e *AssemblyAIEngine) Open(ctx context.Context, diarize bool) (Recognizer, error) {
	diarize = diarize && e.diarize

	u, err := url.Parse(e.url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AssemblyAI url: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(assemblyAISampleRate))
	q.Set("format_turns", "true")
	if diarize {
		q.Set("speaker_labels", "true")
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Add("Authorization", e.apiKey)

	conn, _, err := e.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	at := &AssemblyAITranscriber{
		conn:        conn,
		results:     make(chan Result, 100),
		sampleRate:  e.sampleRate,
		diarize:     diarize,
		audioBuffer: make([]byte, 0, 8000),
		stopSending: make(chan struct{}),
		terminated:  make(chan struct{}),
		log:         e.log,
	}

	go at.handleResults()

	at.wg.Add(1)
	go at.audioSender()

	at.log.Info().Bool("diarize", diarize).Msg("AssemblyAI recognizer opened")
	return at, nil
}

// AssemblyAITranscriber is one AssemblyAI streaming session.
type AssemblyAITranscriber struct {
	conn        *websocket.Conn
	results     chan Result
	sampleRate  int
	diarize     bool
	sessionID   string
	audioBuffer []byte
	bufferMu    sync.Mutex
	writeMu     sync.Mutex
	stopSending chan struct{}
	stopOnce    sync.Once
	closeOnce   sync.Once
	terminated  chan struct{}
	closing     bool
	closingMu   sync.Mutex
	wg          sync.WaitGroup
	log         zerolog.Logger
}

// AssemblyAIMessage covers the v3 streaming messages used here.
type AssemblyAIMessage struct {
	Type               string  `json:"type"`
	ID                 string  `json:"id,omitempty"`
	ExpiresAt          int64   `json:"expires_at,omitempty"`
	Transcript         string  `json:"transcript,omitempty"`
	EndOfTurn          bool    `json:"end_of_turn,omitempty"`
	TurnIsFormatted    bool    `json:"turn_is_formatted,omitempty"`
	SpeakerLabel       string  `json:"speaker_label,omitempty"`
	Error              string  `json:"error,omitempty"`
	AudioDurationSec   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64 `json:"session_duration_seconds,omitempty"`
}

func (at *AssemblyAITranscriber) audioSender() {
	defer at.wg.Done()

	// Send audio every 50ms to minimize latency while respecting AssemblyAI limits
	ticker := time.NewTicker(MinChunkDurationMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			at.sendBufferedAudio()
		case <-at.stopSending:
			at.sendBufferedAudio()
			return
		}
	}
}

func (at *AssemblyAITranscriber) sendBufferedAudio() {
	at.bufferMu.Lock()
	defer at.bufferMu.Unlock()

	// 16kHz, 16-bit: 50ms = 1600 bytes, 950ms = 30400 bytes
	const minChunkSize = assemblyAISampleRate * 2 * MinChunkDurationMs / 1000
	const maxChunkSize = assemblyAISampleRate * 2 * (MaxChunkDurationMs - 50) / 1000

	for len(at.audioBuffer) >= minChunkSize {
		chunkSize := len(at.audioBuffer)
		if chunkSize > maxChunkSize {
			chunkSize = maxChunkSize
		}

		if err := at.write(websocket.BinaryMessage, at.audioBuffer[:chunkSize]); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				at.log.Warn().Err(err).Msg("Failed to send audio to AssemblyAI")
			}
			// Clear buffer on error to avoid infinite loop
			at.audioBuffer = at.audioBuffer[:0]
			return
		}
		at.audioBuffer = at.audioBuffer[chunkSize:]
	}
}

func (at *AssemblyAITranscriber) write(messageType int, data []byte) error {
	at.writeMu.Lock()
	defer at.writeMu.Unlock()
	return at.conn.WriteMessage(messageType, data)
}

func (at *AssemblyAITranscriber) ProcessAudio(audioData []byte) error {
	at.bufferMu.Lock()
	defer at.bufferMu.Unlock()

	processed := audioData
	if at.sampleRate == 8000 {
		processed = resample8to16(audioData)
	}
	at.audioBuffer = append(at.audioBuffer, processed...)
	return nil
}

// resample8to16 upsamples 16-bit little-endian PCM from 8kHz to 16kHz with
// linear interpolation.
func resample8to16(input []byte) []byte {
	samples := make([]int16, len(input)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}
	if len(samples) == 0 {
		return nil
	}

	upsampled := make([]int16, len(samples)*2)
	for i := 0; i < len(samples)-1; i++ {
		upsampled[i*2] = samples[i]
		upsampled[i*2+1] = int16((int32(samples[i]) + int32(samples[i+1])) / 2)
	}
	last := samples[len(samples)-1]
	upsampled[len(upsampled)-2] = last
	upsampled[len(upsampled)-1] = last

	output := make([]byte, len(upsampled)*2)
	for i, sample := range upsampled {
		binary.LittleEndian.PutUint16(output[i*2:i*2+2], uint16(sample))
	}
	return output
}

func (at *AssemblyAITranscriber) isClosing() bool {
	at.closingMu.Lock()
	defer at.closingMu.Unlock()
	return at.closing
}

func (at *AssemblyAITranscriber) handleResults() {
	defer close(at.results)

	for {
		_, message, err := at.conn.ReadMessage()
		if err != nil {
			if !at.isClosing() && !at.isTerminated() {
				at.log.Warn().Err(err).Msg("AssemblyAI connection lost")
				at.results <- canceledResult("ConnectionLost", err.Error())
			}
			return
		}

		var msg AssemblyAIMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			at.log.Warn().Err(err).Msg("Failed to parse AssemblyAI message")
			continue
		}

		switch msg.Type {
		case "Begin":
			at.sessionID = msg.ID
			at.log.Info().Str("assemblyai_session", msg.ID).Msg("AssemblyAI session started")
			at.results <- newResult(ResultStarted, "", "")

		case "Turn":
			if msg.Transcript == "" {
				continue
			}
			speakerID := ""
			if at.diarize {
				speakerID = msg.SpeakerLabel
			}
			if msg.TurnIsFormatted {
				at.results <- newResult(ResultFinal, msg.Transcript, speakerID)
			} else {
				at.results <- newResult(ResultInterim, msg.Transcript, speakerID)
			}

		case "Error":
			at.results <- canceledResult("Error", msg.Error)

		case "Termination":
			at.log.Info().
				Float64("audio_seconds", msg.AudioDurationSec).
				Float64("session_seconds", msg.SessionDurationSec).
				Msg("AssemblyAI session terminated")
			at.closeTerminated()
		}
	}
}

func (at *AssemblyAITranscriber) isTerminated() bool {
	select {
	case <-at.terminated:
		return true
	default:
		return false
	}
}

func (at *AssemblyAITranscriber) closeTerminated() {
	select {
	case <-at.terminated:
	default:
		close(at.terminated)
	}
}

func (at *AssemblyAITranscriber) Results() <-chan Result {
	return at.results
}

// Stop flushes buffered audio, sends Terminate and waits for the
// Termination message or ctx.
func (at *AssemblyAITranscriber) Stop(ctx context.Context) error {
	at.stopOnce.Do(func() { close(at.stopSending) })
	at.wg.Wait()

	at.bufferMu.Lock()
	if len(at.audioBuffer) > 0 {
		_ = at.write(websocket.BinaryMessage, at.audioBuffer)
		at.audioBuffer = at.audioBuffer[:0]
	}
	at.bufferMu.Unlock()

	msgBytes, err := json.Marshal(AssemblyAIMessage{Type: "Terminate"})
	if err != nil {
		return fmt.Errorf("failed to encode terminate message: %w", err)
	}
	if err := at.write(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("failed to send terminate message: %w", err)
	}

	select {
	case <-at.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the connection. It is safe to call more than once.
func (at *AssemblyAITranscriber) Close() error {
	var err error
	at.closeOnce.Do(func() {
		at.closingMu.Lock()
		at.closing = true
		at.closingMu.Unlock()

		at.stopOnce.Do(func() { close(at.stopSending) })
		at.wg.Wait()
		err = at.conn.Close()
	})
	return err
}
