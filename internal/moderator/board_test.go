package moderator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motion-live-client/internal/event"
	"motion-live-client/internal/model"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func motionList() []model.Motion {
	return []model.Motion{
		{ID: 1, Title: "Minutes", Status: model.StatusClosed, OpenedAt: timePtr(t0), ClosedAt: timePtr(t0.Add(time.Minute)), VotesCount: 12},
		{ID: 2, Title: "Budget", Status: model.StatusDraft},
		{ID: 3, Title: "Bylaws", Status: model.StatusDraft, AutoCloseSeconds: intPtr(30)},
	}
}

func TestBoard_BootstrapSelection(t *testing.T) {
	t.Run("open motion wins", func(t *testing.T) {
		list := motionList()
		list[2].Status = model.StatusOpen
		b := NewBoard(0)
		effects := b.Bootstrap(list, 2)
		assert.Equal(t, int64(3), b.SelectedID)
		assert.Equal(t, int64(3), b.OpenID)
		assert.Contains(t, effects, Effect{Kind: EffectFetchTally, MotionID: 3})
		assert.Contains(t, effects, Effect{Kind: EffectBroadcastPreview, MotionID: 3})
	})

	t.Run("stored selection", func(t *testing.T) {
		b := NewBoard(0)
		effects := b.Bootstrap(motionList(), 2)
		assert.Equal(t, int64(2), b.SelectedID)
		assert.Contains(t, effects, Effect{Kind: EffectPersistSelection, MotionID: 2})
	})

	t.Run("stale stored selection falls back to first row", func(t *testing.T) {
		b := NewBoard(0)
		b.Bootstrap(motionList(), 99)
		assert.Equal(t, int64(1), b.SelectedID)
	})

	t.Run("empty list", func(t *testing.T) {
		b := NewBoard(0)
		assert.Empty(t, b.Bootstrap(nil, 4))
		assert.Zero(t, b.SelectedID)
	})
}

func TestBoard_SelectLockedWhileAnotherMotionIsOpen(t *testing.T) {
	list := motionList()
	list[1].Status = model.StatusOpen
	b := NewBoard(0)
	b.Bootstrap(list, 0)
	require.Equal(t, int64(2), b.SelectedID)

	effects, err := b.Select(3)
	assert.ErrorIs(t, err, ErrSelectionLocked)
	assert.Nil(t, effects)
	assert.Equal(t, int64(2), b.SelectedID)

	_, err = b.Select(2)
	assert.NoError(t, err)
}

func TestBoard_SelectEffects(t *testing.T) {
	b := NewBoard(0)
	b.Bootstrap(motionList(), 0)

	effects, err := b.Select(2)
	require.NoError(t, err)
	assert.Equal(t, []Effect{
		{Kind: EffectPersistSelection, MotionID: 2},
		{Kind: EffectBroadcastPreview, MotionID: 2},
		{Kind: EffectFetchTally, MotionID: 2},
	}, effects)

	// Same motion again: no duplicate broadcast, tally now cached.
	b.Index.SetTally(2, model.Tally{})
	effects, err = b.Select(2)
	require.NoError(t, err)
	assert.Equal(t, []Effect{{Kind: EffectPersistSelection, MotionID: 2}}, effects)

	// A failed broadcast is retried on the next selection.
	b.PreviewFailed(2)
	effects, _ = b.Select(2)
	assert.Contains(t, effects, Effect{Kind: EffectBroadcastPreview, MotionID: 2})

	_, err = b.Select(42)
	assert.ErrorIs(t, err, ErrUnknownMotion)
}

func TestBoard_MotionOpenedZeroesTallyAndSelects(t *testing.T) {
	b := NewBoard(0)
	b.Bootstrap(motionList(), 0)
	b.Index.SetTally(3, model.Tally{Yes: 9})
	b.LastPreviewID = 3

	effects := b.Apply(event.MotionEvent{Type: event.MotionOpened, Motion: model.Motion{ID: 3, Title: "Bylaws", Status: model.StatusOpen, OpenedAt: timePtr(t0)}})

	assert.Equal(t, int64(3), b.OpenID)
	assert.Equal(t, int64(3), b.SelectedID)
	assert.Zero(t, b.LastPreviewID)
	tally, ok := b.Index.Tally(3)
	require.True(t, ok)
	assert.Equal(t, model.Tally{}, tally)
	assert.Equal(t, []Effect{
		{Kind: EffectFetchTally, MotionID: 3},
		{Kind: EffectPersistSelection, MotionID: 3},
	}, effects)
}

func TestBoard_MotionClosedAndCompletion(t *testing.T) {
	b := NewBoard(0)
	b.Bootstrap(motionList(), 0)
	b.Apply(event.MotionEvent{Type: event.MotionOpened, Motion: model.Motion{ID: 2, Status: model.StatusOpen, OpenedAt: timePtr(t0)}})
	b.Apply(event.TallyEvent{Type: event.AdminVoteUpdate, MotionID: 2, Counts: &model.Tally{Yes: 2, No: 1}})
	assert.False(t, b.Index.Completed(2))

	closedAt := t0.Add(time.Minute)
	b.Apply(event.MotionEvent{Type: event.MotionClosed, Motion: model.Motion{ID: 2, Status: model.StatusClosed, OpenedAt: timePtr(t0), ClosedAt: &closedAt}})

	assert.Zero(t, b.OpenID)
	tally, _ := b.Index.Tally(2)
	assert.Equal(t, 3, tally.Total(), "existing tally is kept when the close carries no counts")
	assert.True(t, b.Index.Completed(2))

	m, _ := b.Index.Motion(2)
	assert.Equal(t, 3, m.VotesCount)
}

func TestBoard_CompletedNeedsVotes(t *testing.T) {
	b := NewBoard(0)
	b.Bootstrap(motionList(), 0)
	assert.True(t, b.Index.Completed(1), "votes_count from the list counts")

	b.Apply(event.TallyEvent{Type: event.AdminVoteUpdate, MotionID: 1, Counts: &model.Tally{}})
	assert.False(t, b.Index.Completed(1), "a reset tally clears the badge")
	assert.False(t, b.Index.Completed(2))
}

func TestBoard_RevealHideAndTimer(t *testing.T) {
	b := NewBoard(0)
	b.Bootstrap(motionList(), 0)

	b.Apply(event.TallyEvent{Type: event.ResultsRevealed, MotionID: 1, Counts: &model.Tally{Yes: 5}})
	m, _ := b.Index.Motion(1)
	assert.True(t, m.RevealResults)
	tally, _ := b.Index.Tally(1)
	assert.Equal(t, 5, tally.Yes)

	b.Apply(event.Hidden{MotionID: 1})
	m, _ = b.Index.Motion(1)
	assert.False(t, m.RevealResults)

	b.Apply(event.MotionEvent{Type: event.TimerUpdated, Motion: model.Motion{ID: 3, Status: model.StatusOpen, AutoCloseSeconds: intPtr(90), OpenedAt: timePtr(t0)}})
	m, _ = b.Index.Motion(3)
	assert.Equal(t, 90, *m.AutoCloseSeconds)

	b.Apply(event.Presence{Type: event.HeartbeatAck, Count: 7, Known: true})
	assert.Equal(t, 7, b.Presence)
}

func TestBoard_View(t *testing.T) {
	b := NewBoard(0)
	list := motionList()
	list[2].Status = model.StatusOpen
	list[2].OpenedAt = timePtr(t0)
	b.Bootstrap(list, 0)

	v := b.View(t0.Add(25 * time.Second))
	require.NotNil(t, v.Selected)
	assert.Equal(t, int64(3), v.Selected.ID)
	assert.Equal(t, "Auto-close in 5s", v.Countdown.Label)
	assert.Len(t, v.Rows, 3)
	assert.True(t, v.Rows[0].Completed)

	v = b.View(t0.Add(30 * time.Second))
	assert.Equal(t, "Auto-closing.", v.Countdown.Label)
}

func TestIndex_TallyTTL(t *testing.T) {
	x := NewIndex(10 * time.Millisecond)
	x.Load(motionList())
	x.SetTally(2, model.Tally{Yes: 1})

	_, ok := x.Tally(2)
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		_, ok := x.Tally(2)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestIndex_LoadDropsTalliesOfRemovedMotions(t *testing.T) {
	x := NewIndex(0)
	x.Load(motionList())
	x.SetTally(2, model.Tally{No: 1})

	x.Load(motionList()[:1])
	_, ok := x.Tally(2)
	assert.False(t, ok)
	assert.Equal(t, int64(1), x.First())
}
