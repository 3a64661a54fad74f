// Package export hands finished session records to external collaborators.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/metrics"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcript"
)

// Record is the session state handed off at session end.
type Record struct {
	SessionID string               `json:"session_id"`
	Provider  string               `json:"provider"`
	Mode      string               `json:"mode"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   time.Time            `json:"ended_at"`
	Duration  time.Duration        `json:"duration"`
	Speakers  []speaker.Speaker    `json:"speakers"`
	Segments  []transcript.Segment `json:"segments"`
	Text      string               `json:"text"`
	Metrics   metrics.Snapshot     `json:"metrics"`
	Error     string               `json:"error,omitempty"`
}

// FromSnapshot builds a record from a stopped session. The pending
// segment is not part of the record.
func FromSnapshot(snap session.Snapshot) Record {
	mode := string(snap.Mode)
	if mode == "" {
		mode = "REPLAY"
	}
	return Record{
		SessionID: snap.ID,
		Provider:  snap.Provider,
		Mode:      mode,
		StartedAt: snap.StartedAt,
		EndedAt:   snap.EndedAt,
		Duration:  snap.Duration,
		Speakers:  snap.Speakers,
		Segments:  snap.Segments,
		Text:      transcript.Render(snap.Segments, nil, transcript.LabelerFunc(snap.Label)),
		Metrics:   snap.Metrics,
		Error:     snap.Error,
	}
}

// Sink receives session records.
type Sink interface {
	Name() string
	Export(ctx context.Context, rec Record) error
}

// Exporter fans a record out to every sink.
type Exporter struct {
	sinks []Sink
	log   zerolog.Logger
}

func NewExporter(log zerolog.Logger, sinks ...Sink) *Exporter {
	return &Exporter{
		sinks: sinks,
		log:   log.With().Str("component", "export").Logger(),
	}
}

// Export runs all sinks. A failing sink does not stop the others; the
// failures are joined.
func (e *Exporter) Export(ctx context.Context, rec Record) error {
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Export(ctx, rec); err != nil {
			e.log.Error().Err(err).Str("sink", sink.Name()).Str("session_id", rec.SessionID).Msg("Export failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		e.log.Info().Str("sink", sink.Name()).Str("session_id", rec.SessionID).Msg("Session exported")
	}
	return errors.Join(errs...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
