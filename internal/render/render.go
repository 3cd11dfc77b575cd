package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"motion-live-client/internal/countdown"
	"motion-live-client/internal/model"
	"motion-live-client/internal/moderator"
	"motion-live-client/internal/transport"
	"motion-live-client/internal/voter"
)

const (
	barWidth     = 20
	defaultWidth = 72
)

// Renderer holds the styles for one output.
type Renderer struct {
	width int

	title     lipgloss.Style
	faint     lipgloss.Style
	urgent    lipgloss.Style
	selected  lipgloss.Style
	disabled  lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	bar       lipgloss.Style
	connected lipgloss.Style
	degraded  lipgloss.Style
	offline   lipgloss.Style
}

// New returns a renderer whose color support is detected from w.
func New(w io.Writer, width int) *Renderer {
	return newRenderer(lipgloss.NewRenderer(w), width)
}

// Plain returns a renderer that never emits escape sequences.
func Plain(width int) *Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	return newRenderer(r, width)
}

func newRenderer(lg *lipgloss.Renderer, width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{
		width:     width,
		title:     lg.NewStyle().Bold(true),
		faint:     lg.NewStyle().Foreground(lipgloss.Color("245")),
		urgent:    lg.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		selected:  lg.NewStyle().Bold(true).Reverse(true),
		disabled:  lg.NewStyle().Faint(true),
		success:   lg.NewStyle().Foreground(lipgloss.Color("42")),
		failure:   lg.NewStyle().Foreground(lipgloss.Color("203")),
		bar:       lg.NewStyle().Foreground(lipgloss.Color("39")),
		connected: lg.NewStyle().Foreground(lipgloss.Color("42")),
		degraded:  lg.NewStyle().Foreground(lipgloss.Color("214")),
		offline:   lg.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

func (r *Renderer) pill(state transport.State) string {
	switch state {
	case transport.StateConnected:
		return r.connected.Render("● Connected")
	case transport.StateOffline:
		return r.offline.Render("● Offline")
	default:
		return r.degraded.Render("● Reconnecting…")
	}
}

func (r *Renderer) header(state transport.State, presence int, known bool) string {
	line := r.pill(state)
	if known {
		line += r.faint.Render(fmt.Sprintf("  %d online", presence))
	}
	return line
}

func (r *Renderer) motionText(m *model.Motion) []string {
	lines := []string{r.title.Render(ansi.Truncate(m.Title, r.width, "…"))}
	if body := strings.TrimSpace(m.Body); body != "" {
		lines = append(lines, ansi.Wordwrap(body, r.width, ""))
	}
	return lines
}

func (r *Renderer) countdown(cd countdown.State) string {
	switch {
	case cd.Label == "":
		return ""
	case cd.Phase == countdown.PhaseUrgent, cd.Phase == countdown.PhaseExpired:
		return r.urgent.Render(cd.Label)
	}
	return cd.Label
}

func choiceLabel(c model.Choice) string {
	switch c {
	case model.ChoiceYes:
		return "Yes"
	case model.ChoiceNo:
		return "No"
	}
	return "Abstain"
}

func choiceKey(c model.Choice) string {
	return strings.ToUpper(string(c)[:1])
}

// Bars draws one result row per choice as "Label ████░░ count (pct%)".
func (r *Renderer) Bars(t model.Tally) string {
	rows := make([]string, 0, len(model.Choices))
	for _, c := range model.Choices {
		pct := t.Percent(c)
		filled := min(max(int(math.Round(float64(pct)*barWidth/100)), 0), barWidth)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		rows = append(rows, fmt.Sprintf("%-8s %s %d (%d%%)", choiceLabel(c), r.bar.Render(bar), t.Count(c), pct))
	}
	return strings.Join(rows, "\n")
}

func (r *Renderer) feedback(f voter.Feedback) string {
	switch f.Kind {
	case voter.FeedbackSuccess:
		return r.success.Render(f.Text)
	case voter.FeedbackError:
		return r.failure.Render(f.Text)
	case voter.FeedbackInfo:
		return r.faint.Render(f.Text)
	}
	return ""
}

func (r *Renderer) buttons(s voter.Snapshot, enabled bool) string {
	parts := make([]string, 0, len(model.Choices))
	for _, c := range model.Choices {
		label := fmt.Sprintf("[%s] %s", choiceKey(c), choiceLabel(c))
		switch {
		case s.Selection != nil && *s.Selection == c:
			parts = append(parts, r.selected.Render(label+" ✓"))
		case !enabled:
			parts = append(parts, r.disabled.Render(label))
		default:
			parts = append(parts, label)
		}
	}
	return strings.Join(parts, "  ")
}

// Voter draws the ballot screen at now.
func (r *Renderer) Voter(s voter.Snapshot, now time.Time) string {
	lines := []string{r.header(s.Connection, s.Presence, s.PresenceKnown), ""}

	switch s.Mode {
	case voter.ModeWaiting:
		lines = append(lines, r.faint.Render("Waiting for the next motion…"))

	case voter.ModePreview:
		lines = append(lines, r.faint.Render("Up next"))
		if s.Preview != nil {
			lines = append(lines, r.motionText(s.Preview)...)
		}

	case voter.ModeOpen:
		lines = append(lines, r.motionText(s.Motion)...)
		if cd := r.countdown(s.Countdown(now)); cd != "" {
			lines = append(lines, "Time left: "+cd)
		}
		lines = append(lines, "", r.buttons(s, s.VotingEnabled(now)))

	case voter.ModeClosedPending:
		if s.Motion != nil {
			lines = append(lines, r.motionText(s.Motion)...)
		}
		lines = append(lines, r.faint.Render("Voting closed. Results will appear when revealed."))

	case voter.ModeClosedRevealed:
		if s.Motion != nil {
			lines = append(lines, r.motionText(s.Motion)...)
		}
		lines = append(lines, "", r.Bars(tallyOf(s)))
	}

	if fb := r.feedback(s.Feedback); fb != "" {
		lines = append(lines, "", fb)
	}
	if s.ShowHelp {
		lines = append(lines, "", r.faint.Render("Press y, n or a to vote. Press ? to close this help."))
	}
	return strings.Join(lines, "\n")
}

func tallyOf(s voter.Snapshot) model.Tally {
	switch {
	case s.Tally != nil:
		return *s.Tally
	case s.Motion != nil && s.Motion.Counts != nil:
		return *s.Motion.Counts
	}
	return model.Tally{}
}

func statusLabel(m model.Motion) string {
	switch m.Status {
	case model.StatusOpen:
		return "open"
	case model.StatusClosed:
		if m.RevealResults {
			return "closed, revealed"
		}
		return "closed"
	}
	return "draft"
}

// Moderator draws the presenter console.
func (r *Renderer) Moderator(v moderator.View) string {
	lines := []string{r.header(v.Connection, v.Presence, v.PresenceKnown), ""}

	if len(v.Rows) == 0 {
		lines = append(lines, r.faint.Render("No motions in this session."))
	}
	for _, row := range v.Rows {
		cursor := "  "
		if row.Motion.ID == v.SelectedID {
			cursor = "> "
		}
		badge := " "
		if row.Completed {
			badge = r.success.Render("✓")
		}
		label := fmt.Sprintf("%d. %s", row.Motion.ID, row.Motion.Title)
		status := fmt.Sprintf(" [%s]", statusLabel(row.Motion))
		label = ansi.Truncate(label, r.width-len(cursor)-2-len(status), "…")
		line := cursor + badge + " " + label + r.faint.Render(status)
		if row.Motion.ID == v.OpenID {
			line = r.title.Render(line)
		}
		lines = append(lines, line)
	}

	if v.Selected != nil {
		lines = append(lines, "")
		lines = append(lines, r.motionText(v.Selected)...)
		if cd := r.countdown(v.Countdown); cd != "" {
			lines = append(lines, cd)
		}
		tally := model.Tally{}
		if v.Tally != nil {
			tally = *v.Tally
		}
		lines = append(lines, "", r.Bars(tally), r.faint.Render(fmt.Sprintf("%d votes", tally.Total())))
	}

	if v.Feedback != "" {
		lines = append(lines, "", r.failure.Render(v.Feedback))
	}
	return strings.Join(lines, "\n")
}
