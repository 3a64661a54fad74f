// Package transcriber connects to streaming speech-recognition backends and
// exposes their output as an ordered stream of recognition results.
package transcriber

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ResultKind identifies a recognition event.
type ResultKind string

const (
	// ResultStarted reports that the recognizer accepted the stream.
	ResultStarted ResultKind = "started"
	// ResultInterim carries a hypothesis that may still change.
	ResultInterim ResultKind = "interim"
	// ResultFinal carries text the engine will not revise.
	ResultFinal ResultKind = "final"
	// ResultCanceled reports an engine-side cancellation or fault.
	ResultCanceled ResultKind = "canceled"
)

// Result is one recognition event. SpeakerID is empty when the engine did
// not attribute the text.
type Result struct {
	Kind      ResultKind
	Text      string
	SpeakerID string
	Reason    string
	Details   string
	Timestamp time.Time
}

// Recognizer is an open recognition stream.
type Recognizer interface {
	// ProcessAudio forwards raw PCM audio to the engine.
	ProcessAudio(audioData []byte) error
	// Results delivers events in engine order and is closed when the
	// stream ends.
	Results() <-chan Result
	// Stop asks the engine to flush and end the stream.
	Stop(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}

// Engine opens recognizers against one backend.
type Engine interface {
	Name() string
	// SupportsDiarization reports whether recognizers opened with
	// diarize=true attribute text to speakers.
	SupportsDiarization() bool
	Open(ctx context.Context, diarize bool) (Recognizer, error)
}

// Config selects and configures an engine.
type Config struct {
	Provider       string // "vosk" or "assemblyai"
	VoskServerURL  string
	AssemblyAPIKey string
	AssemblyURL    string
	SampleRate     int
	Diarization    bool
}

// New creates the engine named by cfg.Provider.
func New(cfg Config, log zerolog.Logger) (Engine, error) {
	switch cfg.Provider {
	case "vosk":
		return NewVoskEngine(cfg.VoskServerURL, cfg.SampleRate, log), nil
	case "assemblyai":
		if cfg.AssemblyAPIKey == "" {
			return nil, fmt.Errorf("AssemblyAI API key is required")
		}
		return NewAssemblyAIEngine(cfg.AssemblyURL, cfg.AssemblyAPIKey, cfg.SampleRate, cfg.Diarization, log), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func newResult(kind ResultKind, text, speakerID string) Result {
	return Result{Kind: kind, Text: text, SpeakerID: speakerID, Timestamp: time.Now()}
}

func canceledResult(reason, details string) Result {
	return Result{Kind: ResultCanceled, Reason: reason, Details: details, Timestamp: time.Now()}
}
