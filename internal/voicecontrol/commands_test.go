package voicecontrol

import (
	"testing"
	"time"
)

func TestMatchDefaultCommands(t *testing.T) {
	cases := []struct {
		transcript string
		want       bool
	}{
		{"navigate to home", true},
		{"Please NAVIGATE TO HOME now", true},
		{"Pulang Ke Rumah", true},
		{"navigate to the home", false},
		{"play music", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		cmd, ok := Match(DefaultCommands(), tc.transcript)
		if ok != tc.want {
			t.Fatalf("Match(%q) ok = %v, want %v", tc.transcript, ok, tc.want)
		}
		if ok && cmd.Destination != HomeDestination {
			t.Fatalf("Match(%q) destination = %q, want %q", tc.transcript, cmd.Destination, HomeDestination)
		}
	}
}

func TestManualSchedulerOrderAndStop(t *testing.T) {
	s := NewManualScheduler()
	var order []string
	s.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	a := s.AfterFunc(time.Second, func() { order = append(order, "a") })
	s.AfterFunc(2*time.Second, func() {
		order = append(order, "b")
		s.AfterFunc(500*time.Millisecond, func() { order = append(order, "b2") })
	})
	stopped := s.AfterFunc(time.Second, func() { order = append(order, "x") })

	if !stopped.Stop() {
		t.Fatalf("Stop() = false on pending timer")
	}
	if stopped.Stop() {
		t.Fatalf("Stop() = true on already stopped timer")
	}

	if n := s.Advance(5 * time.Second); n != 4 {
		t.Fatalf("Advance() fired %d, want 4", n)
	}
	want := []string{"a", "b", "b2", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if a.Stop() {
		t.Fatalf("Stop() = true on fired timer")
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
	if s.Now() != 5*time.Second {
		t.Fatalf("Now() = %s, want 5s", s.Now())
	}
}
