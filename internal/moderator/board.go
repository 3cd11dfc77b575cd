package moderator

import (
	"errors"
	"time"

	"motion-live-client/internal/countdown"
	"motion-live-client/internal/event"
	"motion-live-client/internal/model"
	"motion-live-client/internal/transport"
)

var (
	// ErrSelectionLocked is returned when selecting away from an open
	// motion.
	ErrSelectionLocked = errors.New("selection is locked to the open motion")
	// ErrUnknownMotion is returned for ids not in the motion list.
	ErrUnknownMotion = errors.New("unknown motion")
	// ErrNoSelection is returned by actions that need a selected motion.
	ErrNoSelection = errors.New("no motion selected")
)

// EffectKind names a side effect requested by the board.
type EffectKind string

const (
	EffectFetchTally       EffectKind = "fetch_tally"
	EffectPersistSelection EffectKind = "persist_selection"
	EffectBroadcastPreview EffectKind = "broadcast_preview"
)

// Effect is I/O the session performs after a board change.
type Effect struct {
	Kind     EffectKind
	MotionID int64
}

// Board is the moderator's selection state over an Index. It performs no
// I/O; Apply and Select return the effects to carry out.
type Board struct {
	Index *Index

	SelectedID    int64
	OpenID        int64
	LastPreviewID int64

	Presence      int
	PresenceKnown bool
	Connection    transport.State
}

// NewBoard returns an empty board.
func NewBoard(tallyTTL time.Duration) *Board {
	return &Board{Index: NewIndex(tallyTTL), Connection: transport.StateReconnecting}
}

// Bootstrap loads the motion list and picks the initial selection: the
// open motion, else the stored id if still listed, else the first row.
func (b *Board) Bootstrap(motions []model.Motion, stored int64) []Effect {
	b.Index.Load(motions)
	b.OpenID = b.Index.Open()

	switch {
	case b.OpenID != 0:
		b.SelectedID = b.OpenID
	case stored != 0 && b.Index.Has(stored):
		b.SelectedID = stored
	default:
		b.SelectedID = b.Index.First()
	}
	if b.SelectedID == 0 {
		return nil
	}

	effects := []Effect{
		{Kind: EffectFetchTally, MotionID: b.SelectedID},
		{Kind: EffectPersistSelection, MotionID: b.SelectedID},
	}
	return append(effects, b.previewEffect(b.SelectedID)...)
}

// Locked reports whether selecting id is refused because another motion
// is open.
func (b *Board) Locked(id int64) bool {
	if b.OpenID == 0 || b.OpenID == id {
		return false
	}
	m, ok := b.Index.Motion(b.OpenID)
	return ok && m.IsOpen()
}

// Select moves the selection to id. The board is unchanged on error.
func (b *Board) Select(id int64) ([]Effect, error) {
	if b.Locked(id) {
		return nil, ErrSelectionLocked
	}
	if !b.Index.Has(id) {
		return nil, ErrUnknownMotion
	}

	b.SelectedID = id
	effects := []Effect{{Kind: EffectPersistSelection, MotionID: id}}
	effects = append(effects, b.previewEffect(id)...)
	if _, ok := b.Index.Tally(id); !ok {
		effects = append(effects, Effect{Kind: EffectFetchTally, MotionID: id})
	}
	return effects, nil
}

// previewEffect requests a preview broadcast unless another motion is
// open or id was the last one broadcast. The broadcast is recorded
// optimistically; PreviewFailed undoes it.
func (b *Board) previewEffect(id int64) []Effect {
	if b.OpenID != 0 && b.OpenID != id {
		return nil
	}
	if b.LastPreviewID == id {
		return nil
	}
	b.LastPreviewID = id
	return []Effect{{Kind: EffectBroadcastPreview, MotionID: id}}
}

// PreviewFailed forgets a failed broadcast so the next selection retries.
func (b *Board) PreviewFailed(id int64) {
	if b.LastPreviewID == id {
		b.LastPreviewID = 0
	}
}

// Apply folds a push event into the board.
func (b *Board) Apply(ev event.Event) []Effect {
	switch e := ev.(type) {
	case event.MotionEvent:
		switch e.Type {
		case event.MotionOpened:
			m := e.Motion
			m.Status = model.StatusOpen
			m.ClosedAt = nil
			b.Index.Merge(m)
			b.OpenID = m.ID
			b.LastPreviewID = 0
			b.Index.SetTally(m.ID, model.Tally{})
			b.SelectedID = m.ID
			return []Effect{
				{Kind: EffectFetchTally, MotionID: m.ID},
				{Kind: EffectPersistSelection, MotionID: m.ID},
			}

		case event.MotionClosed:
			m := e.Motion
			m.Status = model.StatusClosed
			b.Index.Merge(m)
			if b.OpenID == m.ID {
				b.OpenID = 0
			}
			b.LastPreviewID = 0
			switch {
			case m.Counts != nil:
				b.Index.SetTally(m.ID, *m.Counts)
			default:
				if _, ok := b.Index.Tally(m.ID); !ok {
					b.Index.SetTally(m.ID, model.Tally{})
				}
			}

		case event.TimerUpdated:
			b.Index.Merge(e.Motion)
		}

	case event.TallyEvent:
		if e.Counts == nil {
			return nil
		}
		id := e.MotionID
		if id == 0 && e.Type == event.ResultsRevealed {
			id = b.SelectedID
		}
		b.Index.SetTally(id, *e.Counts)
		if e.Type == event.ResultsRevealed {
			b.Index.Update(id, func(m *model.Motion) { m.RevealResults = true })
		}

	case event.Hidden:
		b.Index.Update(e.MotionID, func(m *model.Motion) { m.RevealResults = false })

	case event.Presence:
		if e.Known {
			b.Presence = e.Count
			b.PresenceKnown = true
		}
	}
	return nil
}

// AutoClose returns the deadline of the selected motion if it is open
// with a timer.
func (b *Board) AutoClose() (int64, time.Time, bool) {
	m, ok := b.Index.Motion(b.SelectedID)
	if !ok {
		return 0, time.Time{}, false
	}
	deadline, ok := m.Deadline()
	return m.ID, deadline, ok
}

// View is the presenter console at one instant.
type View struct {
	Rows          []Row           `json:"rows"`
	SelectedID    int64           `json:"selected_id,omitempty"`
	OpenID        int64           `json:"open_id,omitempty"`
	Selected      *model.Motion   `json:"selected,omitempty"`
	Tally         *model.Tally    `json:"tally,omitempty"`
	Countdown     countdown.State `json:"countdown"`
	Presence      int             `json:"presence"`
	PresenceKnown bool            `json:"presence_known"`
	Connection    transport.State `json:"connection"`
	Feedback      string          `json:"feedback,omitempty"`
}

// View renders the board at now.
func (b *Board) View(now time.Time) View {
	v := View{
		Rows:          b.Index.Rows(),
		SelectedID:    b.SelectedID,
		OpenID:        b.OpenID,
		Presence:      b.Presence,
		PresenceKnown: b.PresenceKnown,
		Connection:    b.Connection,
		Countdown:     countdown.Idle(""),
	}
	m, ok := b.Index.Motion(b.SelectedID)
	if !ok {
		return v
	}
	v.Selected = &m
	if t, ok := b.Index.Tally(m.ID); ok {
		v.Tally = &t
	}
	switch {
	case m.IsClosed():
		v.Countdown = countdown.Idle("Closed")
	default:
		if deadline, ok := m.Deadline(); ok {
			v.Countdown = countdown.Remaining(now, deadline)
			if v.Countdown.Expired() {
				v.Countdown.Label = "Auto-closing."
			} else {
				v.Countdown.Label = "Auto-close in " + v.Countdown.Label
			}
		}
	}
	return v
}
