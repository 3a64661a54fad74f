package session

import (
	"context"
	"errors"
	"sync"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
)

type fakeRecognizer struct {
	diarize   bool
	results   chan transcriber.Result
	mu        sync.Mutex
	calls     []string
	audio     int
	closeOnce sync.Once
}

func (r *fakeRecognizer) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRecognizer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRecognizer) ProcessAudio(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio += len(data)
	return nil
}

func (r *fakeRecognizer) Results() <-chan transcriber.Result { return r.results }

func (r *fakeRecognizer) Stop(context.Context) error {
	r.record("stop")
	return errors.New("flush failed")
}

func (r *fakeRecognizer) Close() error {
	r.record("close")
	r.closeOnce.Do(func() { close(r.results) })
	return nil
}

func (r *fakeRecognizer) send(res transcriber.Result) {
	r.results <- res
}

type fakeEngine struct {
	diarization bool
	failAuto    bool
	failManual  bool
	mu          sync.Mutex
	opened      []*fakeRecognizer
}

func (e *fakeEngine) Name() string              { return "fake" }
func (e *fakeEngine) SupportsDiarization() bool { return e.diarization }

func (e *fakeEngine) Open(_ context.Context, diarize bool) (transcriber.Recognizer, error) {
	if diarize && e.failAuto {
		return nil, errors.New("diarization unavailable")
	}
	if !diarize && e.failManual {
		return nil, errors.New("recognizer unavailable")
	}
	rec := &fakeRecognizer{diarize: diarize, results: make(chan transcriber.Result, 16)}
	e.mu.Lock()
	e.opened = append(e.opened, rec)
	e.mu.Unlock()
	return rec, nil
}

func (e *fakeEngine) recognizer(i int) *fakeRecognizer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.opened) {
		return nil
	}
	return e.opened[i]
}

func (e *fakeEngine) openedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.opened)
}
