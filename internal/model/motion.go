package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the lifecycle state of a motion.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Choice is a single ballot option.
type Choice string

const (
	ChoiceYes     Choice = "yes"
	ChoiceNo      Choice = "no"
	ChoiceAbstain Choice = "abstain"
)

// Choices lists the ballot options in display order.
var Choices = []Choice{ChoiceYes, ChoiceNo, ChoiceAbstain}

// Valid reports whether c is one of the three ballot options.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceYes, ChoiceNo, ChoiceAbstain:
		return true
	}
	return false
}

// ParseChoice normalizes a wire value into a Choice.
func ParseChoice(raw string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("invalid choice %q", raw)
	}
	return c, nil
}

// Tally holds aggregate vote counts for a motion.
type Tally struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Abstain int `json:"abstain"`
}

// Total returns the number of votes cast.
func (t Tally) Total() int {
	return t.Yes + t.No + t.Abstain
}

// Valid reports whether every count is non-negative.
func (t Tally) Valid() bool {
	return t.Yes >= 0 && t.No >= 0 && t.Abstain >= 0
}

// Count returns the number of votes for c.
func (t Tally) Count(c Choice) int {
	switch c {
	case ChoiceYes:
		return t.Yes
	case ChoiceNo:
		return t.No
	case ChoiceAbstain:
		return t.Abstain
	}
	return 0
}

// Percent returns the rounded share of c relative to the total. A tally
// without votes renders as 0% for every choice.
func (t Tally) Percent(c Choice) int {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(t.Count(c)) * 100 / float64(total)))
}

// Motion is a votable proposal as delivered by the backend.
type Motion struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	Status           Status     `json:"status"`
	Preview          bool       `json:"preview"`
	AllowVoteChange  bool       `json:"allow_vote_change"`
	RevealResults    bool       `json:"reveal_results"`
	AutoCloseSeconds *int       `json:"auto_close_seconds"`
	OpenedAt         *time.Time `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at"`
	Counts           *Tally     `json:"counts,omitempty"`
	Selection        *Choice    `json:"selection,omitempty"`
	VotesCount       int        `json:"votes_count,omitempty"`
}

// IsOpen reports whether the motion currently accepts votes.
func (m *Motion) IsOpen() bool {
	return m != nil && m.Status == StatusOpen
}

// IsClosed reports whether voting on the motion has ended.
func (m *Motion) IsClosed() bool {
	return m != nil && m.Status == StatusClosed
}

// Deadline returns the auto-close instant. It is only defined while the
// motion is open and both opened_at and auto_close_seconds are set.
func (m *Motion) Deadline() (time.Time, bool) {
	if !m.IsOpen() || m.OpenedAt == nil || m.AutoCloseSeconds == nil || *m.AutoCloseSeconds <= 0 {
		return time.Time{}, false
	}
	return m.OpenedAt.Add(time.Duration(*m.AutoCloseSeconds) * time.Second), true
}

// Clone returns a deep copy so snapshots never share mutable pointers.
func (m *Motion) Clone() *Motion {
	if m == nil {
		return nil
	}
	out := *m
	if m.AutoCloseSeconds != nil {
		v := *m.AutoCloseSeconds
		out.AutoCloseSeconds = &v
	}
	if m.OpenedAt != nil {
		v := *m.OpenedAt
		out.OpenedAt = &v
	}
	if m.ClosedAt != nil {
		v := *m.ClosedAt
		out.ClosedAt = &v
	}
	if m.Counts != nil {
		v := *m.Counts
		out.Counts = &v
	}
	if m.Selection != nil {
		v := *m.Selection
		out.Selection = &v
	}
	return &out
}

// SessionState is the backend's answer to "what should be displayed right now".
// At most one of the three fields is meaningful; Open takes precedence.
type SessionState struct {
	Open         *Motion `json:"open"`
	Preview      *Motion `json:"preview"`
	LatestClosed *Motion `json:"latest_closed"`
}
