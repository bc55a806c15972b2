package token

import "time"

// State of a teacher's live display.
type State int

const (
	Idle State = iota
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Display is the client-side timer for one live session: a fresh token every
// rotateEvery until lifetime has passed, then nothing. It holds no token
// itself and is not safe for concurrent use.
type Display struct {
	rotateEvery time.Duration
	lifetime    time.Duration

	state       State
	expiresAt   time.Time
	lastRotated time.Time
}

// NewDisplay returns an idle display. Non-positive durations fall back to
// RotateEvery and SessionTTL.
func NewDisplay(rotateEvery, lifetime time.Duration) *Display {
	if rotateEvery <= 0 {
		rotateEvery = RotateEvery
	}
	if lifetime <= 0 {
		lifetime = SessionTTL
	}
	return &Display{rotateEvery: rotateEvery, lifetime: lifetime}
}

// Start begins (or restarts) a live session at now.
func (d *Display) Start(now time.Time) {
	d.state = Active
	d.expiresAt = now.Add(d.lifetime)
	d.lastRotated = time.Time{}
}

// Stop tears the session down, e.g. when the modal is closed.
func (d *Display) Stop() {
	d.state = Idle
	d.expiresAt = time.Time{}
	d.lastRotated = time.Time{}
}

// State advances Active to Expired once the lifetime has run out.
func (d *Display) State(now time.Time) State {
	if d.state == Active && !now.Before(d.expiresAt) {
		d.state = Expired
	}
	return d.state
}

// ExpiresAt is zero unless a session was started.
func (d *Display) ExpiresAt() time.Time { return d.expiresAt }

// Remaining is the countdown shown next to the code.
func (d *Display) Remaining(now time.Time) time.Duration {
	if d.State(now) != Active {
		return 0
	}
	return d.expiresAt.Sub(now)
}

// NeedsRotation reports whether a new token should be generated now. The
// first call after Start is always true.
func (d *Display) NeedsRotation(now time.Time) bool {
	if d.State(now) != Active {
		return false
	}
	return d.lastRotated.IsZero() || now.Sub(d.lastRotated) >= d.rotateEvery
}

// Rotated records that a token was shown at now.
func (d *Display) Rotated(now time.Time) { d.lastRotated = now }
