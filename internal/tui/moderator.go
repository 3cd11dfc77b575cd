package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"motion-live-client/internal/moderator"
	"motion-live-client/internal/render"
)

// extendStep is what one press of the extend key adds to the timer.
const extendStep = 3

type tickMsg time.Time

// tick repaints the console once a second so the auto-close countdown
// stays current between pushes.
func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// ModeratorSession is what the console needs from a moderator session.
type ModeratorSession interface {
	View() moderator.View
	Changed() <-chan struct{}
	Select(ctx context.Context, id int64) error
	Open(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64) error
	Reveal(ctx context.Context, id int64) error
	Hide(ctx context.Context, id int64) error
	Reset(ctx context.Context, id int64) error
	ExtendTimer(ctx context.Context, id int64, seconds int) error
}

// ModeratorModel is the presenter console.
type ModeratorModel struct {
	ctx      context.Context
	session  ModeratorSession
	keys     ModeratorKeyMap
	renderer *render.Renderer
	status   string
}

// NewModeratorModel creates the console for session.
func NewModeratorModel(ctx context.Context, session ModeratorSession, renderer *render.Renderer) ModeratorModel {
	return ModeratorModel{ctx: ctx, session: session, keys: DefaultModeratorKeyMap, renderer: renderer}
}

// Init implements tea.Model.
func (m ModeratorModel) Init() tea.Cmd {
	return tea.Batch(listen(m.session.Changed()), tick())
}

// Update implements tea.Model.
func (m ModeratorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		return m, listen(m.session.Changed())

	case tickMsg:
		return m, tick()

	case actionMsg:
		m.status = ""
		if errors.Is(msg.err, moderator.ErrSelectionLocked) {
			m.status = "Close the open motion before selecting another."
		}
		return m, nil

	case tea.KeyMsg:
		v := m.session.View()
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			return m, m.move(v, -1)
		case key.Matches(msg, m.keys.Down):
			return m, m.move(v, 1)
		case key.Matches(msg, m.keys.Open):
			return m, m.act(ModeratorSession.Open, v.SelectedID)
		case key.Matches(msg, m.keys.Close):
			return m, m.act(ModeratorSession.Close, v.SelectedID)
		case key.Matches(msg, m.keys.Reveal):
			return m, m.act(ModeratorSession.Reveal, v.SelectedID)
		case key.Matches(msg, m.keys.Hide):
			return m, m.act(ModeratorSession.Hide, v.SelectedID)
		case key.Matches(msg, m.keys.Reset):
			return m, m.act(ModeratorSession.Reset, v.SelectedID)
		case key.Matches(msg, m.keys.Extend):
			return m, m.act(func(s ModeratorSession, ctx context.Context, id int64) error {
				return s.ExtendTimer(ctx, id, extendStep)
			}, v.SelectedID)
		}
	}
	return m, nil
}

func (m ModeratorModel) move(v moderator.View, delta int) tea.Cmd {
	idx := -1
	for i, row := range v.Rows {
		if row.Motion.ID == v.SelectedID {
			idx = i
			break
		}
	}
	next := idx + delta
	if idx < 0 || next < 0 || next >= len(v.Rows) {
		return nil
	}
	return m.act(ModeratorSession.Select, v.Rows[next].Motion.ID)
}

func (m ModeratorModel) act(fn func(ModeratorSession, context.Context, int64) error, id int64) tea.Cmd {
	if id == 0 {
		return nil
	}
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return actionMsg{err: fn(session, ctx, id)}
	}
}

// View implements tea.Model.
func (m ModeratorModel) View() string {
	v := m.session.View()
	out := m.renderer.Moderator(v)
	if m.status != "" {
		out += "\n\n" + m.status
	}
	footer := helpLine(m.keys.Up, m.keys.Down, m.keys.Open, m.keys.Close, m.keys.Reveal, m.keys.Hide, m.keys.Extend, m.keys.Reset, m.keys.Quit)
	return out + "\n\n" + footer + fmt.Sprintf("  (%d motions)", len(v.Rows)) + "\n"
}
