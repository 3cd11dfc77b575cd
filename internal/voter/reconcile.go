package voter

import (
	"motion-live-client/internal/event"
	"motion-live-client/internal/model"
)

// Reconcile folds one event into a snapshot and returns the result. It is
// the only place voter state changes in response to the backend, so every
// ordering guard lives here. The input is never modified, and applying the
// same event twice yields the same snapshot as applying it once.
func Reconcile(s Snapshot, ev event.Event) Snapshot {
	s = s.Clone()
	switch e := ev.(type) {
	case event.MotionEvent:
		switch e.Type {
		case event.MotionOpened:
			return applyOpened(s, e.Motion)
		case event.MotionPreviewed:
			return applyPreviewed(s, e.Motion)
		case event.MotionClosed:
			return applyClosed(s, e.Motion)
		case event.TimerUpdated:
			return applyTimer(s, e.Motion)
		}
	case event.TallyEvent:
		if e.Type == event.ResultsRevealed {
			return applyRevealed(s, e)
		}
	case event.Hidden:
		return applyHidden(s, e)
	case event.Ack:
		return applyAck(s, e)
	case event.Presence:
		if e.Known {
			s.Presence = e.Count
			s.PresenceKnown = true
		}
	case event.Synced:
		return applySynced(s, e.State)
	}
	return s
}

func applyOpened(s Snapshot, m model.Motion) Snapshot {
	same := s.Mode == ModeOpen && s.showing(m.ID)
	keep := s.Selection

	s.Motion = m.Clone()
	s.Preview = nil
	s.Tally = nil
	s.LastClosedID = 0
	s.Mode = ModeOpen
	switch {
	case m.Selection != nil:
		s.Selection = m.Clone().Selection
	case same:
		s.Selection = keep
	default:
		s.Selection = nil
	}
	if !same {
		s.Feedback = Feedback{}
	}
	return s
}

func applyPreviewed(s Snapshot, m model.Motion) Snapshot {
	// An open vote is never replaced by a preview of another motion.
	if s.Mode == ModeOpen && s.Motion != nil && s.Motion.ID != m.ID {
		return s
	}
	return showPreview(s, m)
}

// showPreview puts a previewed motion on screen. Draft previews show the
// motion without a ballot; previews of open or closed motions show them as
// they stand.
func showPreview(s Snapshot, m model.Motion) Snapshot {
	same := s.showing(m.ID)
	keep := s.Selection
	if !same {
		s.Feedback = Feedback{}
	}

	if m.Preview || m.Status == model.StatusDraft {
		p := m.Clone()
		s.Preview = p
		s.Motion = p
		s.Selection = nil
		s.Tally = nil
		s.LastClosedID = 0
		s.Mode = ModePreview
		return s
	}

	s.Preview = nil
	s.Motion = m.Clone()
	switch {
	case m.Selection != nil:
		s.Selection = m.Clone().Selection
	case same:
		s.Selection = keep
	default:
		s.Selection = nil
	}

	if m.IsOpen() {
		s.Tally = nil
		s.LastClosedID = 0
		s.Mode = ModeOpen
		return s
	}
	s.LastClosedID = m.ID
	if m.RevealResults && m.Counts != nil {
		t := *m.Counts
		s.Tally = &t
		s.Mode = ModeClosedRevealed
		return s
	}
	s.Tally = nil
	s.Mode = ModeClosedPending
	return s
}

func applyClosed(s Snapshot, m model.Motion) Snapshot {
	// A late close for some other motion must not end the current vote.
	if s.Mode == ModeOpen && s.Motion != nil && s.Motion.ID != m.ID {
		return s
	}

	same := s.showing(m.ID)
	keep := s.Selection

	s.Preview = nil
	s.Motion = m.Clone()
	switch {
	case m.Selection != nil:
		s.Selection = m.Clone().Selection
	case same:
		s.Selection = keep
	default:
		s.Selection = nil
	}
	s.LastClosedID = m.ID
	s.Feedback = Feedback{Kind: FeedbackInfo, Text: msgVotingClosed}

	if m.RevealResults && m.Counts != nil {
		t := *m.Counts
		s.Tally = &t
		s.Mode = ModeClosedRevealed
		return s
	}
	s.Tally = nil
	s.Mode = ModeClosedPending
	return s
}

func applyTimer(s Snapshot, m model.Motion) Snapshot {
	if !s.showing(m.ID) {
		return s
	}
	cur := s.Motion
	fresh := m.Clone()
	cur.AutoCloseSeconds = fresh.AutoCloseSeconds
	cur.OpenedAt = fresh.OpenedAt
	return s
}

func applyRevealed(s Snapshot, e event.TallyEvent) Snapshot {
	if e.Counts == nil || s.Preview != nil || s.Mode == ModePreview || s.Mode == ModeOpen {
		return s
	}
	// Without a tracked closed motion any reveal is accepted.
	if s.LastClosedID != 0 && e.MotionID != s.LastClosedID {
		return s
	}

	t := *e.Counts
	s.Tally = &t
	s.Mode = ModeClosedRevealed
	if e.MotionID != 0 {
		s.LastClosedID = e.MotionID
	}
	if s.Motion != nil && s.Motion.ID == e.MotionID {
		s.Motion.RevealResults = true
	}
	return s
}

func applyHidden(s Snapshot, e event.Hidden) Snapshot {
	switch {
	case s.Preview != nil:
		s.Motion = s.Preview
		s.Tally = nil
		s.Mode = ModePreview
		return s
	case s.Mode == ModeOpen:
		s.Tally = nil
		return s
	case s.Motion == nil:
		s.Tally = nil
		s.Mode = ModeWaiting
		return s
	}

	if e.MotionID != 0 && e.MotionID != s.Motion.ID {
		return s
	}
	s.Tally = nil
	s.Motion.RevealResults = false
	s.LastClosedID = s.Motion.ID
	s.Mode = ModeClosedPending
	return s
}

func applyAck(s Snapshot, e event.Ack) Snapshot {
	if e.Choice == "" || s.Motion == nil {
		return s
	}
	if e.MotionID != 0 && e.MotionID != s.Motion.ID {
		return s
	}
	c := e.Choice
	s.Selection = &c
	s.Feedback = Feedback{Kind: FeedbackSuccess, Text: msgRecorded}
	return s
}

// applySynced replaces the view with the backend's authoritative state.
// Open wins over a preview, which wins over revealed results.
func applySynced(s Snapshot, st model.SessionState) Snapshot {
	switch {
	case st.Open != nil:
		return applyOpened(s, *st.Open)

	case st.Preview != nil:
		return showPreview(s, *st.Preview)

	case st.LatestClosed != nil && st.LatestClosed.Counts != nil:
		m := *st.LatestClosed
		m.RevealResults = true
		return showPreview(s, m)

	case s.Motion != nil && s.Motion.IsClosed() && s.Preview == nil:
		// Unrevealed closed motions are not reported; keep showing ours.
		s.Tally = nil
		s.Motion.RevealResults = false
		s.LastClosedID = s.Motion.ID
		s.Mode = ModeClosedPending
		return s
	}

	s.Motion = nil
	s.Preview = nil
	s.Selection = nil
	s.Tally = nil
	s.LastClosedID = 0
	s.Mode = ModeWaiting
	s.Feedback = Feedback{}
	return s
}
