package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"motion-live-client/internal/model"
	"motion-live-client/internal/render"
	"motion-live-client/internal/voter"
)

// VoterSession is what the ballot screen needs from a voter session.
type VoterSession interface {
	Snapshot() voter.Snapshot
	Now() time.Time
	Changed() <-chan struct{}
	SubmitVote(ctx context.Context, motionID int64, choice model.Choice) error
	DismissHelp()
}

type changedMsg struct{}

type actionMsg struct{ err error }

func listen(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// VoterModel is the ballot screen.
type VoterModel struct {
	ctx      context.Context
	session  VoterSession
	keys     VoterKeyMap
	renderer *render.Renderer
	status   string
}

// NewVoterModel creates the ballot screen for session.
func NewVoterModel(ctx context.Context, session VoterSession, renderer *render.Renderer) VoterModel {
	return VoterModel{ctx: ctx, session: session, keys: DefaultVoterKeyMap, renderer: renderer}
}

// Init implements tea.Model.
func (m VoterModel) Init() tea.Cmd {
	return listen(m.session.Changed())
}

// Update implements tea.Model.
func (m VoterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		return m, listen(m.session.Changed())

	case actionMsg:
		m.status = localReason(msg.err)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.session.DismissHelp()
			return m, nil
		case key.Matches(msg, m.keys.Yes):
			return m, m.vote(model.ChoiceYes)
		case key.Matches(msg, m.keys.No):
			return m, m.vote(model.ChoiceNo)
		case key.Matches(msg, m.keys.Abstain):
			return m, m.vote(model.ChoiceAbstain)
		}
	}
	return m, nil
}

func (m VoterModel) vote(choice model.Choice) tea.Cmd {
	snap := m.session.Snapshot()
	var id int64
	if snap.Motion != nil {
		id = snap.Motion.ID
	}
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return actionMsg{err: session.SubmitVote(ctx, id, choice)}
	}
}

// localReason explains refusals the session does not put in its own
// feedback line.
func localReason(err error) string {
	switch {
	case errors.Is(err, voter.ErrNotOpen):
		return "No motion is open."
	case errors.Is(err, voter.ErrExpired):
		return "Voting time is up."
	case errors.Is(err, voter.ErrSubmitting):
		return "Still submitting your vote."
	}
	return ""
}

// View implements tea.Model.
func (m VoterModel) View() string {
	out := m.renderer.Voter(m.session.Snapshot(), m.session.Now())
	if m.status != "" {
		out += "\n\n" + m.status
	}
	return out + "\n\n" + helpLine(m.keys.Yes, m.keys.No, m.keys.Abstain, m.keys.Quit) + "\n"
}
