// Package demo replays a scripted consultation through a session exactly
// as final recognition results would arrive.
package demo

import (
	"context"
	"time"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/speaker"
)

// Target is the part of a session the replay drives.
type Target interface {
	RegisterSpeaker(externalID string) (speaker.Speaker, bool)
	AssignRole(externalID, role string) bool
	Append(text string, isFinal bool, speakerID string)
}

// Participant is a scripted speaker and the role assigned before replay.
type Participant struct {
	ID   string
	Role string
}

// Line is one finalized utterance.
type Line struct {
	Speaker string
	Text    string
}

// Script is a replayable conversation.
type Script struct {
	Participants []Participant
	Lines        []Line
}

// Consultation is a short school counselling session with a psychologist,
// a parent and a pupil.
var Consultation = Script{
	Participants: []Participant{
		{ID: "Guest-1", Role: "Psycholog"},
		{ID: "Guest-2", Role: "Rodič"},
		{ID: "Guest-3", Role: "Žák/Student"},
	},
	Lines: []Line{
		{"Guest-1", "Dobrý den, posaďte se prosím. Jsem psycholožka Horáková."},
		{"Guest-2", "Dobrý den. Jsem Dvořáková a tohle je můj syn Tomáš, chodí do čtvrté třídy."},
		{"Guest-1", "Ahoj Tomáši. Co tě ve škole baví nejvíc?"},
		{"Guest-3", "Tělocvik a přírodověda. Diktáty mě nebaví vůbec."},
		{"Guest-1", "A co je na diktátech nejtěžší?"},
		{"Guest-3", "Nestíhám psát a pak tam mám spoustu chyb, i když ta slova znám."},
		{"Guest-2", "Paní učitelka si stěžuje, že je pomalý a nesoustředí se. Doma nad úkoly sedíme každý den přes hodinu."},
		{"Guest-1", "Rozumím. Od kdy si toho všímáte?"},
		{"Guest-2", "Zhoršilo se to letos. Čte rád, ale psaní je pro něj trápení. Nevím, jestli to není dysgrafie."},
		{"Guest-1", "To zjistíme. Tomáši, uděláme spolu pár úkolů, některé budou jako hra. Platí?"},
		{"Guest-3", "Jo, platí."},
	},
}

// Replay registers the participants, assigns their roles and appends every
// line as a final result, waiting delay between lines.
func Replay(ctx context.Context, target Target, script Script, delay time.Duration) error {
	for _, p := range script.Participants {
		target.RegisterSpeaker(p.ID)
		if p.Role != "" {
			target.AssignRole(p.ID, p.Role)
		}
	}

	for i, line := range script.Lines {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		target.Append(line.Text, true, line.Speaker)
	}
	return nil
}
