package transport

import "time"

// Backoff tunes reconnect delays and the polling fallback.
type Backoff struct {
	Base      time.Duration `yaml:"base"`
	Step      time.Duration `yaml:"step"`
	Max       time.Duration `yaml:"max"`
	PollAfter int           `yaml:"poll_after"`
}

// DefaultBackoff waits 3s plus 1s per failed attempt, capped at 15s, and
// falls back to polling from the third consecutive failure.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:      3 * time.Second,
		Step:      time.Second,
		Max:       15 * time.Second,
		PollAfter: 3,
	}
}

// Delay returns the wait before the next dial after the given number of
// consecutive failures.
func (b Backoff) Delay(attempts int) time.Duration {
	d := b.Base + time.Duration(attempts)*b.Step
	if d > b.Max {
		return b.Max
	}
	return d
}

// retryState counts consecutive failures since the last successful open.
type retryState struct {
	backoff  Backoff
	attempts int
}

// fail records one failure and returns the delay before the next dial and
// whether polling should be running.
func (r *retryState) fail() (time.Duration, bool) {
	r.attempts++
	return r.backoff.Delay(r.attempts), r.attempts >= r.backoff.PollAfter
}

func (r *retryState) reset() {
	r.attempts = 0
}
