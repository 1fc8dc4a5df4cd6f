package models

import "testing"

func TestCanTransitionDispatchPaths(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusSearching, StatusOffered, true},
		{StatusOffered, StatusAccepted, true},
		{StatusOffered, StatusOffered, true}, // next candidate, same state
		{StatusOffered, StatusFailed, true},
		{StatusSearching, StatusCancelled, true},
		{StatusAccepted, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusAccepted, false},
		{StatusCancelled, StatusOffered, false},
		{StatusFailed, StatusSearching, false},
		{StatusAccepted, StatusOffered, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []RequestStatus{StatusCompleted, StatusCancelled, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []RequestStatus{StatusSearching, StatusOffered, StatusAccepted, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
