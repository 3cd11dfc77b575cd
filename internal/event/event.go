package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"motion-live-client/internal/model"
)

// Kind names an event on the wire.
type Kind string

const (
	MotionOpened    Kind = "motion_opened"
	MotionPreviewed Kind = "motion_previewed"
	MotionClosed    Kind = "motion_closed"
	ResultsRevealed Kind = "results_revealed"
	ResultsHidden   Kind = "results_hidden"
	TimerUpdated    Kind = "timer_updated"
	VoteAck         Kind = "vote_ack"
	PresenceUpdate  Kind = "presence_update"
	HeartbeatAck    Kind = "heartbeat_ack"
	AdminVoteUpdate Kind = "admin_vote_update"

	// StateSynced never travels over the push channel. It carries the
	// result of a full-state fetch through the same reconciliation path.
	StateSynced Kind = "state_synced"
)

// ErrUnknownKind is returned by Decode for event names outside the
// vocabulary. Callers ignore such frames.
var ErrUnknownKind = errors.New("unknown event kind")

// Frame is the push envelope.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Event is one decoded domain event.
type Event interface {
	Kind() Kind
}

// MotionEvent carries a full motion payload. It backs motion_opened,
// motion_previewed, motion_closed and timer_updated.
type MotionEvent struct {
	Type   Kind
	Motion model.Motion
}

func (e MotionEvent) Kind() Kind { return e.Type }

// TallyEvent carries counts for one motion. It backs results_revealed and
// admin_vote_update.
type TallyEvent struct {
	Type     Kind
	MotionID int64
	Counts   *model.Tally
}

func (e TallyEvent) Kind() Kind { return e.Type }

// Hidden is results_hidden.
type Hidden struct {
	MotionID int64
}

func (Hidden) Kind() Kind { return ResultsHidden }

// Ack is vote_ack, the server's echo of the caller's recorded vote.
type Ack struct {
	MotionID int64
	Choice   model.Choice
	Previous model.Choice
	Created  bool
	Changed  bool
}

func (Ack) Kind() Kind { return VoteAck }

// Presence is presence_update or heartbeat_ack. A heartbeat ack may come
// without a count, in which case Known is false.
type Presence struct {
	Type  Kind
	Count int
	Known bool
}

func (e Presence) Kind() Kind { return e.Type }

// Synced is the local state_synced event.
type Synced struct {
	State model.SessionState
}

func (Synced) Kind() Kind { return StateSynced }

type tallyPayload struct {
	MotionID int64        `json:"motion_id"`
	Counts   *model.Tally `json:"counts"`
}

type ackPayload struct {
	MotionID int64        `json:"motion_id"`
	Choice   model.Choice `json:"choice"`
	Previous model.Choice `json:"previous"`
	Created  bool         `json:"created"`
	Changed  bool         `json:"changed"`
}

type presencePayload struct {
	Count       *int `json:"count"`
	ActiveCount *int `json:"active_count"`
}

// Parse decodes a raw frame into an Event.
func Parse(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return Decode(f)
}

// Decode turns an envelope into a typed event. A missing payload decodes
// as an empty object.
func Decode(f Frame) (Event, error) {
	kind := Kind(f.Event)
	payload := f.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("{}")
	}

	switch kind {
	case MotionOpened, MotionPreviewed, MotionClosed, TimerUpdated:
		var m model.Motion
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		if m.ID == 0 {
			return nil, fmt.Errorf("%s payload is missing the motion id", kind)
		}
		if m.Counts != nil && !m.Counts.Valid() {
			return nil, fmt.Errorf("%s payload has negative counts", kind)
		}
		return MotionEvent{Type: kind, Motion: m}, nil

	case ResultsRevealed, AdminVoteUpdate:
		var p tallyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		if p.Counts != nil && !p.Counts.Valid() {
			return nil, fmt.Errorf("%s payload has negative counts", kind)
		}
		return TallyEvent{Type: kind, MotionID: p.MotionID, Counts: p.Counts}, nil

	case ResultsHidden:
		var p tallyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return Hidden{MotionID: p.MotionID}, nil

	case VoteAck:
		var p ackPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		if p.Choice != "" && !p.Choice.Valid() {
			return nil, fmt.Errorf("vote_ack carries invalid choice %q", p.Choice)
		}
		return Ack{MotionID: p.MotionID, Choice: p.Choice, Previous: p.Previous, Created: p.Created, Changed: p.Changed}, nil

	case PresenceUpdate, HeartbeatAck:
		var p presencePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		count := p.Count
		if kind == HeartbeatAck {
			count = p.ActiveCount
			if count == nil {
				return Presence{Type: kind}, nil
			}
		}
		if count == nil || *count < 0 {
			return nil, fmt.Errorf("%s payload has no usable count", kind)
		}
		return Presence{Type: kind, Count: *count, Known: true}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Event)
}
