package mode

import (
	"context"
	"errors"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/transcriber"
)

type fakeRecognizer struct {
	diarize bool
	results chan transcriber.Result
	stopped int
	closed  int
	stopErr error
}

func newFakeRecognizer(diarize bool) *fakeRecognizer {
	return &fakeRecognizer{diarize: diarize, results: make(chan transcriber.Result, 16)}
}

func (r *fakeRecognizer) ProcessAudio([]byte) error          { return nil }
func (r *fakeRecognizer) Results() <-chan transcriber.Result { return r.results }
func (r *fakeRecognizer) Stop(context.Context) error         { r.stopped++; return r.stopErr }
func (r *fakeRecognizer) Close() error                       { r.closed++; return nil }

type fakeEngine struct {
	diarization bool
	failAuto    bool
	failManual  bool
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
	rec := newFakeRecognizer(diarize)
	e.opened = append(e.opened, rec)
	return rec, nil
}

func final(text, speakerID string) transcriber.Result {
	return transcriber.Result{Kind: transcriber.ResultFinal, Text: text, SpeakerID: speakerID}
}

func interim(text, speakerID string) transcriber.Result {
	return transcriber.Result{Kind: transcriber.ResultInterim, Text: text, SpeakerID: speakerID}
}

func canceled(reason string) transcriber.Result {
	return transcriber.Result{Kind: transcriber.ResultCanceled, Reason: reason, Details: "test"}
}
