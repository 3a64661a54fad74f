package server

import (
	"context"
	"sync"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
)

type fakeRecognizer struct {
	results   chan transcriber.Result
	mu        sync.Mutex
	audio     int
	closeOnce sync.Once
}

func (r *fakeRecognizer) ProcessAudio(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio += len(data)
	return nil
}

func (r *fakeRecognizer) Results() <-chan transcriber.Result { return r.results }
func (r *fakeRecognizer) Stop(context.Context) error         { return nil }

func (r *fakeRecognizer) Close() error {
	r.closeOnce.Do(func() { close(r.results) })
	return nil
}

// fakeEngine opens plain recognizers, so sessions run in manual mode.
type fakeEngine struct{}

func (fakeEngine) Name() string              { return "fake" }
func (fakeEngine) SupportsDiarization() bool { return false }

func (fakeEngine) Open(context.Context, bool) (transcriber.Recognizer, error) {
	return &fakeRecognizer{results: make(chan transcriber.Result, 8)}, nil
}
