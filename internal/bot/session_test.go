package bot

import "testing"

func TestSessionRoundTrip(t *testing.T) {
	s := newSessions()

	if got := s.get(111); got.State != stateNone {
		t.Fatalf("fresh session must be empty, got %+v", got)
	}

	s.put(111, session{State: stateTardyStart, Reason: "проспал"})
	got := s.get(111)
	if got.State != stateTardyStart || got.Reason != "проспал" {
		t.Fatalf("unexpected session: %+v", got)
	}

	// Other users are unaffected.
	if other := s.get(222); other.State != stateNone {
		t.Fatalf("session leaked across users: %+v", other)
	}

	s.clear(111)
	if got := s.get(111); got.State != stateNone {
		t.Fatalf("session not cleared: %+v", got)
	}
}
