package voter

import (
	"errors"
	"time"

	"motion-live-client/internal/countdown"
	"motion-live-client/internal/model"
	"motion-live-client/internal/transport"
)

// Mode is what the voter screen shows.
type Mode string

const (
	ModeWaiting        Mode = "waiting"
	ModePreview        Mode = "preview"
	ModeOpen           Mode = "open"
	ModeClosedPending  Mode = "closed_pending"
	ModeClosedRevealed Mode = "closed_revealed"
)

// FeedbackKind styles the feedback line.
type FeedbackKind string

const (
	FeedbackNone    FeedbackKind = ""
	FeedbackInfo    FeedbackKind = "info"
	FeedbackSuccess FeedbackKind = "success"
	FeedbackError   FeedbackKind = "error"
)

// Feedback is the one-line status message under the ballot.
type Feedback struct {
	Kind FeedbackKind `json:"kind,omitempty"`
	Text string       `json:"text,omitempty"`
}

const (
	msgSubmitting   = "Submitting…"
	msgRecorded     = "Vote recorded"
	msgLocked       = "Vote already recorded."
	msgRejected     = "Vote could not be recorded. Please try again."
	msgNetwork      = "Connection issue. Please try again."
	msgVotingClosed = "Voting closed."
)

// Local vote preconditions. None of them reaches the network.
var (
	ErrNotOpen       = errors.New("no motion is open")
	ErrWrongMotion   = errors.New("motion is not the open motion")
	ErrInvalidChoice = errors.New("invalid choice")
	ErrExpired       = errors.New("voting time is up")
	ErrSubmitting    = errors.New("a vote is already being submitted")
)

// Snapshot is the whole voter view at one instant.
type Snapshot struct {
	Mode          Mode            `json:"mode"`
	Motion        *model.Motion   `json:"motion,omitempty"`
	Preview       *model.Motion   `json:"preview,omitempty"`
	Selection     *model.Choice   `json:"selection,omitempty"`
	Tally         *model.Tally    `json:"tally,omitempty"`
	LastClosedID  int64           `json:"last_closed_id,omitempty"`
	Presence      int             `json:"presence"`
	PresenceKnown bool            `json:"presence_known"`
	Connection    transport.State `json:"connection"`
	Feedback      Feedback        `json:"feedback"`
	Submitting    bool            `json:"submitting"`
	ShowHelp      bool            `json:"show_help"`
}

// Initial is the snapshot before anything is known.
func Initial() Snapshot {
	return Snapshot{Mode: ModeWaiting, Connection: transport.StateReconnecting}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Motion = s.Motion.Clone()
	if s.Preview == s.Motion {
		out.Preview = out.Motion
	} else {
		out.Preview = s.Preview.Clone()
	}
	if s.Selection != nil {
		c := *s.Selection
		out.Selection = &c
	}
	if s.Tally != nil {
		t := *s.Tally
		out.Tally = &t
	}
	return out
}

// Countdown is the auto-close display at now. It is idle unless a motion
// with a deadline is open.
func (s Snapshot) Countdown(now time.Time) countdown.State {
	if s.Mode != ModeOpen {
		return countdown.Idle("")
	}
	deadline, ok := s.Motion.Deadline()
	if !ok {
		return countdown.Idle("")
	}
	return countdown.Remaining(now, deadline)
}

// VotingEnabled reports whether the ballot accepts input at now.
func (s Snapshot) VotingEnabled(now time.Time) bool {
	return s.Mode == ModeOpen && !s.Submitting && !s.Countdown(now).Expired()
}

// CheckVote validates a vote locally.
func (s Snapshot) CheckVote(now time.Time, motionID int64, choice model.Choice) error {
	switch {
	case s.Mode != ModeOpen || s.Motion == nil:
		return ErrNotOpen
	case s.Motion.ID != motionID:
		return ErrWrongMotion
	case !choice.Valid():
		return ErrInvalidChoice
	case s.Countdown(now).Expired():
		return ErrExpired
	case s.Submitting:
		return ErrSubmitting
	}
	return nil
}

func (s Snapshot) showing(id int64) bool {
	return s.Motion != nil && s.Motion.ID == id
}
