package token

import (
	"testing"
	"time"
)

func TestDisplay_Lifecycle(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	d := NewDisplay(5*time.Second, 120*time.Second)

	if got := d.State(t0); got != Idle {
		t.Fatalf("initial state = %v, want idle", got)
	}
	if d.NeedsRotation(t0) {
		t.Fatal("idle display must not rotate")
	}

	d.Start(t0)
	if !d.NeedsRotation(t0) {
		t.Fatal("first token must be generated immediately")
	}
	d.Rotated(t0)

	tests := []struct {
		name   string
		offset time.Duration
		rotate bool
		state  State
	}{
		{"just rotated", time.Second, false, Active},
		{"one period", 5 * time.Second, true, Active},
		{"last second", 119 * time.Second, true, Active},
		{"lifetime reached", 120 * time.Second, false, Expired},
		{"long after", time.Hour, false, Expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := t0.Add(tt.offset)
			if got := d.NeedsRotation(now); got != tt.rotate {
				t.Errorf("NeedsRotation = %v, want %v", got, tt.rotate)
			}
			if got := d.State(now); got != tt.state {
				t.Errorf("State = %v, want %v", got, tt.state)
			}
		})
	}

	if rem := d.Remaining(t0.Add(200 * time.Second)); rem != 0 {
		t.Errorf("Remaining after expiry = %v", rem)
	}
}

func TestDisplay_CountsTokens(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	d := NewDisplay(0, 0)
	d.Start(t0)

	var shown int
	for now := t0; d.State(now) == Active; now = now.Add(time.Second) {
		if d.NeedsRotation(now) {
			d.Rotated(now)
			shown++
		}
	}
	// t=0,5,...,115
	if shown != 24 {
		t.Errorf("tokens shown = %d, want 24", shown)
	}
}

func TestDisplay_StopAndRestart(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	d := NewDisplay(5*time.Second, 10*time.Second)
	d.Start(t0)
	d.Stop()
	if d.State(t0) != Idle || !d.ExpiresAt().IsZero() {
		t.Fatal("Stop must return to idle")
	}

	later := t0.Add(time.Minute)
	d.Start(later)
	if d.State(later) != Active {
		t.Fatal("restart must be active")
	}
	if got := d.Remaining(later.Add(4 * time.Second)); got != 6*time.Second {
		t.Errorf("Remaining = %v, want 6s", got)
	}
}
