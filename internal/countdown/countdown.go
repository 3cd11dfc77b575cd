package countdown

import (
	"fmt"
	"time"
)

// UrgentThreshold is the remaining time at or below which the display
// turns urgent.
const UrgentThreshold = 10 * time.Second

// Phase is the visual state of the countdown.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseActive  Phase = "active"
	PhaseUrgent  Phase = "urgent"
	PhaseExpired Phase = "expired"
)

// State is the rendered countdown.
type State struct {
	Phase   Phase  `json:"phase"`
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// Expired reports whether the deadline has passed.
func (s State) Expired() bool { return s.Phase == PhaseExpired }

// Remaining computes the countdown at now for the given deadline. Seconds
// are rounded up so the display never shows 0s while time is left.
func Remaining(now, deadline time.Time) State {
	left := deadline.Sub(now)
	if left <= 0 {
		return State{Phase: PhaseExpired, Label: "Closing"}
	}
	seconds := int((left + time.Second - 1) / time.Second)
	phase := PhaseActive
	if time.Duration(seconds)*time.Second <= UrgentThreshold {
		phase = PhaseUrgent
	}
	return State{Phase: phase, Seconds: seconds, Label: fmt.Sprintf("%ds", seconds)}
}

// Idle is the display used when no deadline applies.
func Idle(label string) State {
	return State{Phase: PhaseIdle, Label: label}
}

// NextChange returns how long until the rendered State can next differ,
// which is the time to the next whole-second boundary before the deadline.
// A zero result means the countdown has expired and needs no more redraws.
func NextChange(now, deadline time.Time) time.Duration {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	rem := left % time.Second
	if rem == 0 {
		return time.Second
	}
	return rem
}
