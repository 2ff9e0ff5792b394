package statemachine

import "testing"

func TestParseKnownStatus(t *testing.T) {
	s, err := Parse("running")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != Running {
		t.Fatalf("expected Running, got %v", s)
	}
}

func TestParseUnknownStatus(t *testing.T) {
	s, err := Parse("bogus")
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	if s != Invalid {
		t.Fatalf("expected Invalid, got %v", s)
	}
}

func TestIsTerminal(t *testing.T) {
	cases := map[ContainerStatus]bool{
		Running:   false,
		Creating:  false,
		Completed: true,
		Failed:    true,
		Stopped:   true,
		Invalid:   true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestNeedsStartAndNeedsWatchAreDisjoint(t *testing.T) {
	for s := range active {
		if s.NeedsStart() && s.NeedsWatch() {
			t.Errorf("%s: NeedsStart and NeedsWatch both true", s)
		}
	}
}

func TestNeedsStart(t *testing.T) {
	for _, s := range []ContainerStatus{Defined, Paused, Pending, Queued} {
		if !s.NeedsStart() {
			t.Errorf("%s: expected NeedsStart true", s)
		}
	}
	for _, s := range []ContainerStatus{Running, Creating, Completed} {
		if s.NeedsStart() {
			t.Errorf("%s: expected NeedsStart false", s)
		}
	}
}

func TestNeedsWatch(t *testing.T) {
	for _, s := range []ContainerStatus{Running, Creating, Created, Restarting} {
		if !s.NeedsWatch() {
			t.Errorf("%s: expected NeedsWatch true", s)
		}
	}
}

func TestValid(t *testing.T) {
	if !Running.Valid() {
		t.Error("Running should be valid")
	}
	if ContainerStatus("nonsense").Valid() {
		t.Error("nonsense should not be valid")
	}
}
