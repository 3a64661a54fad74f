package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
)

func stoppedRecord(t *testing.T) Record {
	t.Helper()
	s := session.New("5f0c1e2a-aaaa-bbbb-cccc-000000000001", nil, session.Options{Provider: "demo", Log: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background()))
	s.Append("Dobrý den.", true, "Guest-1")
	s.Append("Dobrý den.", true, "Guest-2")
	s.Append("pokrač", false, "Guest-2")
	s.AssignRole("Guest-1", "Psycholog")
	require.NoError(t, s.Stop(context.Background()))
	return FromSnapshot(s.Snapshot())
}

func TestFromSnapshot(t *testing.T) {
	rec := stoppedRecord(t)

	assert.Equal(t, "demo", rec.Provider)
	assert.Equal(t, "REPLAY", rec.Mode)
	assert.Len(t, rec.Speakers, 2)
	assert.Len(t, rec.Segments, 2)
	assert.Equal(t, "[Psycholog (S1)] Dobrý den. \n[Speaker 2] Dobrý den. ", rec.Text, "pending text is not exported")
	assert.False(t, rec.EndedAt.IsZero())
}

func TestFileSinkWritesTranscriptAndRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir, true)
	require.NoError(t, err)

	rec := stoppedRecord(t)
	require.NoError(t, sink.Export(context.Background(), rec))

	base := filepath.Join(dir, sink.BaseName(rec))
	assert.True(t, strings.HasSuffix(base, "_demo_5f0c1e2a"))

	text, err := os.ReadFile(base + ".txt")
	require.NoError(t, err)
	assert.Contains(t, string(text), "Session ID: 5f0c1e2a-aaaa-bbbb-cccc-000000000001\n")
	assert.Contains(t, string(text), "Speakers: Psycholog (S1), Speaker 2\n")
	assert.True(t, strings.HasSuffix(string(text), "---TRANSCRIPT---\n\n"+rec.Text))

	data, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.SessionID, decoded.SessionID)
	assert.Len(t, decoded.Segments, 2)
}

func TestFileSinkSkipsEmptyTranscript(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, false)
	require.NoError(t, err)

	require.NoError(t, sink.Export(context.Background(), Record{SessionID: "empty", Provider: "vosk"}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sink := NewRedisSink(client, "diarizer:session:", time.Hour)
	rec := stoppedRecord(t)
	require.NoError(t, sink.Export(context.Background(), rec))

	key := sink.Key(rec.SessionID)
	assert.Equal(t, rec.Text, mr.HGet(key, "text"))
	assert.Equal(t, "REPLAY", mr.HGet(key, "mode"))
	assert.Equal(t, time.Hour, mr.TTL(key))

	items, err := mr.List(key + ":segments")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Contains(t, items[0], `"speaker_id":"Guest-1"`)

	// A second hand-off replaces the first.
	require.NoError(t, sink.Export(context.Background(), rec))
	items, err = mr.List(key + ":segments")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

type failingSink struct{}

func (failingSink) Name() string { return "broken" }
func (failingSink) Export(context.Context, Record) error {
	return errors.New("unavailable")
}

func TestExporterRunsAllSinks(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, false)
	require.NoError(t, err)

	rec := stoppedRecord(t)
	err = NewExporter(zerolog.Nop(), failingSink{}, sink).Export(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: unavailable")

	_, statErr := os.Stat(filepath.Join(dir, sink.BaseName(rec)+".txt"))
	assert.NoError(t, statErr)
}
