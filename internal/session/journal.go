package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Journal writes structured JSONL session records to a file.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

type journalRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	SpeakerID string            `json:"speaker_id,omitempty"`
	Label     string            `json:"label,omitempty"`
	Text      string            `json:"text,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewJournal creates a journal under outputDir. Filename is timestamp +
// session id.
func NewJournal(outputDir, sessionID string, started time.Time) (*Journal, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	path := filepath.Join(outputDir, fmt.Sprintf("%s_session_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f, path: path}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}

func (j *Journal) write(rec journalRecord) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	rec.Text = strings.TrimSpace(rec.Text)
	_ = json.NewEncoder(j.file).Encode(rec)
}

func (j *Journal) LogStart(sessionID, provider string, started time.Time) {
	j.write(journalRecord{Timestamp: started.Format(time.RFC3339Nano), Event: "session_start", SessionID: sessionID, Details: map[string]string{"provider": provider}})
}

func (j *Journal) LogStop(sessionID string, ended time.Time, reason string) {
	j.write(journalRecord{Timestamp: ended.Format(time.RFC3339Nano), Event: "session_stop", SessionID: sessionID, Details: map[string]string{"reason": reason}})
}

func (j *Journal) LogMode(sessionID, from, to, reason string) {
	j.write(journalRecord{Event: "mode_changed", SessionID: sessionID, Details: map[string]string{"from": from, "to": to, "reason": reason}})
}

func (j *Journal) LogSpeaker(sessionID, speakerID, label string) {
	j.write(journalRecord{Event: "speaker_registered", SessionID: sessionID, SpeakerID: speakerID, Label: label})
}

func (j *Journal) LogRole(sessionID, speakerID, label string) {
	j.write(journalRecord{Event: "role_assigned", SessionID: sessionID, SpeakerID: speakerID, Label: label})
}

func (j *Journal) LogFinal(sessionID, speakerID, text string) {
	j.write(journalRecord{Event: "final", SessionID: sessionID, SpeakerID: speakerID, Text: text})
}

func (j *Journal) LogSwitch(sessionID, speakerID, label string) {
	j.write(journalRecord{Event: "switch", SessionID: sessionID, SpeakerID: speakerID, Label: label})
}

func (j *Journal) LogClear(sessionID string) {
	j.write(journalRecord{Event: "clear", SessionID: sessionID})
}

func (j *Journal) LogEngineError(sessionID, reason, details string) {
	j.write(journalRecord{Event: "engine_error", SessionID: sessionID, Details: map[string]string{"reason": reason, "details": details}})
}
