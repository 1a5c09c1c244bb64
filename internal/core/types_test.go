package core

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusIdle, StatusStarting},
		{StatusStarting, StatusDebating},
		{StatusDebating, StatusSynthesizing},
		{StatusSynthesizing, StatusComplete},
		{StatusIdle, StatusError},
		{StatusStarting, StatusError},
		{StatusDebating, StatusError},
		{StatusSynthesizing, StatusError},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusIdle, StatusDebating},
		{StatusStarting, StatusSynthesizing},
		{StatusDebating, StatusStarting},
		{StatusSynthesizing, StatusDebating},
		{StatusComplete, StatusDebating},
		{StatusComplete, StatusError},
		{StatusError, StatusDebating},
		{StatusError, StatusComplete},
		{StatusDebating, StatusComplete},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestInterjectionKindValid(t *testing.T) {
	for _, k := range []InterjectionKind{InterjectClarification, InterjectChallenge, InterjectRedirect} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if InterjectionKind("rant").Valid() {
		t.Error("unknown kind accepted")
	}
}

func TestSessionHelpers(t *testing.T) {
	s := &Session{
		Participants: []Participant{
			{ID: "p1", Name: "Strategist"},
			{ID: "p2", Name: "Implementer"},
		},
	}

	if got := s.ParticipantByID("p2"); got == nil || got.Name != "Implementer" {
		t.Errorf("participant lookup wrong: %+v", got)
	}
	if s.ParticipantByID(HumanParticipantID) != nil {
		t.Error("human resolved as participant")
	}
	if s.LastMessage() != nil {
		t.Error("empty transcript has a last message")
	}

	s.Messages = append(s.Messages, &Message{ID: "m0", Turn: 0}, &Message{ID: "m1", Turn: 1})
	if got := s.LastMessage(); got == nil || got.ID != "m1" {
		t.Errorf("last message wrong: %+v", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Error("ids collided")
	}
}
