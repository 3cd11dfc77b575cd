package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motion-live-client/internal/model"
	"motion-live-client/internal/moderator"
	"motion-live-client/internal/render"
	"motion-live-client/internal/voter"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

type fakeVoter struct {
	mu        sync.Mutex
	snap      voter.Snapshot
	changed   chan struct{}
	err       error
	votes     []model.Choice
	ids       []int64
	dismissed bool
}

func (f *fakeVoter) Snapshot() voter.Snapshot { return f.snap.Clone() }
func (f *fakeVoter) Now() time.Time           { return t0 }
func (f *fakeVoter) Changed() <-chan struct{} { return f.changed }
func (f *fakeVoter) DismissHelp()             { f.dismissed = true }

func (f *fakeVoter) SubmitVote(ctx context.Context, motionID int64, choice model.Choice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, motionID)
	f.votes = append(f.votes, choice)
	return f.err
}

func TestVoterModel(t *testing.T) {
	snap := voter.Initial()
	snap.Mode = voter.ModeOpen
	snap.Motion = &model.Motion{ID: 4, Title: "Budget", Status: model.StatusOpen}
	fake := &fakeVoter{snap: snap, changed: make(chan struct{}, 1)}
	m := NewVoterModel(context.Background(), fake, render.Plain(60))

	_, cmd := m.Update(keyPress("n"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, []model.Choice{model.ChoiceNo}, fake.votes)
	assert.Equal(t, []int64{4}, fake.ids)

	next, _ := m.Update(msg)
	assert.NotContains(t, next.View(), "Voting time is up.")

	fake.err = voter.ErrExpired
	_, cmd = m.Update(keyPress("y"))
	next, _ = m.Update(cmd())
	assert.Contains(t, next.View(), "Voting time is up.")

	_, cmd = m.Update(keyPress("?"))
	assert.Nil(t, cmd)
	assert.True(t, fake.dismissed)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, tea.Quit(), cmd())

	assert.Contains(t, m.View(), "Budget")
	assert.Contains(t, m.View(), "y yes · n no · a abstain · q quit")
}

func TestVoterModel_ListensForChanges(t *testing.T) {
	fake := &fakeVoter{snap: voter.Initial(), changed: make(chan struct{}, 1)}
	m := NewVoterModel(context.Background(), fake, render.Plain(60))

	fake.changed <- struct{}{}
	msg := m.Init()()
	assert.Equal(t, changedMsg{}, msg)

	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "the model keeps listening")
}

type fakeModerator struct {
	view    moderator.View
	changed chan struct{}
	err     error
	calls   []string
	ids     []int64
	extend  int
}

func (f *fakeModerator) View() moderator.View     { return f.view }
func (f *fakeModerator) Changed() <-chan struct{} { return f.changed }

func (f *fakeModerator) record(name string, id int64) error {
	f.calls = append(f.calls, name)
	f.ids = append(f.ids, id)
	return f.err
}

func (f *fakeModerator) Select(ctx context.Context, id int64) error { return f.record("select", id) }
func (f *fakeModerator) Open(ctx context.Context, id int64) error   { return f.record("open", id) }
func (f *fakeModerator) Close(ctx context.Context, id int64) error  { return f.record("close", id) }
func (f *fakeModerator) Reveal(ctx context.Context, id int64) error { return f.record("reveal", id) }
func (f *fakeModerator) Hide(ctx context.Context, id int64) error   { return f.record("hide", id) }
func (f *fakeModerator) Reset(ctx context.Context, id int64) error  { return f.record("reset", id) }

func (f *fakeModerator) ExtendTimer(ctx context.Context, id int64, seconds int) error {
	f.extend = seconds
	return f.record("extend", id)
}

func TestModeratorModel(t *testing.T) {
	fake := &fakeModerator{
		view: moderator.View{
			Rows: []moderator.Row{
				{Motion: model.Motion{ID: 1, Title: "Minutes"}},
				{Motion: model.Motion{ID: 2, Title: "Budget"}},
			},
			SelectedID: 1,
		},
		changed: make(chan struct{}, 1),
	}
	m := NewModeratorModel(context.Background(), fake, render.Plain(60))

	_, cmd := m.Update(keyPress("k"))
	assert.Nil(t, cmd, "already at the top")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.NotNil(t, cmd)
	cmd()

	for _, k := range []string{"o", "c", "r", "h", "e", "x"} {
		_, cmd = m.Update(keyPress(k))
		require.NotNil(t, cmd, k)
		cmd()
	}
	assert.Equal(t, []string{"select", "open", "close", "reveal", "hide", "extend", "reset"}, fake.calls)
	assert.Equal(t, []int64{2, 1, 1, 1, 1, 1, 1}, fake.ids)
	assert.Equal(t, 3, fake.extend)

	fake.err = moderator.ErrSelectionLocked
	_, cmd = m.Update(keyPress("j"))
	next, _ := m.Update(cmd())
	assert.Contains(t, next.View(), "Close the open motion before selecting another.")

	fake.view.SelectedID = 0
	_, cmd = m.Update(keyPress("o"))
	assert.Nil(t, cmd, "no selection, nothing to do")

	assert.Contains(t, m.View(), "(2 motions)")
}
