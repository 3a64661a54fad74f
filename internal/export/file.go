package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSink writes a transcript text file with a metadata header and,
// optionally, the JSON record next to it.
type FileSink struct {
	Dir      string
	SaveJSON bool
}

func NewFileSink(dir string, saveJSON bool) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{Dir: dir, SaveJSON: saveJSON}, nil
}

func (f *FileSink) Name() string { return "file" }

// BaseName is the file name shared by the text and JSON outputs.
func (f *FileSink) BaseName(rec Record) string {
	return fmt.Sprintf("%s_%s_%s", rec.StartedAt.Format("20060102_150405"), rec.Provider, shortID(rec.SessionID))
}

func (f *FileSink) Export(_ context.Context, rec Record) error {
	base := filepath.Join(f.Dir, f.BaseName(rec))

	if rec.Text != "" {
		if err := os.WriteFile(base+".txt", []byte(header(rec)+rec.Text), 0644); err != nil {
			return fmt.Errorf("failed to save transcript: %w", err)
		}
	}

	if f.SaveJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		if err := os.WriteFile(base+".json", data, 0644); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
	}
	return nil
}

func header(rec Record) string {
	labels := make([]string, 0, len(rec.Speakers))
	for _, sp := range rec.Speakers {
		labels = append(labels, sp.Label())
	}
	return fmt.Sprintf("Session ID: %s\nProvider: %s\nStart Time: %s\nDuration: %v\nMode: %s\nSpeakers: %s\n\n---TRANSCRIPT---\n\n",
		rec.SessionID,
		rec.Provider,
		rec.StartedAt.Format("2006-01-02 15:04:05"),
		rec.Duration.Round(time.Second),
		rec.Mode,
		strings.Join(labels, ", "),
	)
}
