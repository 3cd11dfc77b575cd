package moderator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"motion-live-client/internal/event"
	"motion-live-client/internal/model"
	"motion-live-client/internal/transport"
)

// Backend is the part of the backend API the presenter console uses.
type Backend interface {
	Motions(ctx context.Context) ([]model.Motion, error)
	Tally(ctx context.Context, motionID int64) (model.Tally, error)
	Presence(ctx context.Context) (int, error)
	OpenMotion(ctx context.Context, motionID int64) error
	CloseMotion(ctx context.Context, motionID int64) error
	RevealResults(ctx context.Context, motionID int64) error
	HideResults(ctx context.Context, motionID int64) error
	SetTimer(ctx context.Context, motionID int64, seconds int) (model.Motion, error)
	ExtendTimer(ctx context.Context, motionID int64, seconds int) (model.Motion, error)
	BroadcastPreview(ctx context.Context, motionID int64) (model.Motion, error)
	ResetVotes(ctx context.Context, motionID int64) (model.Tally, error)
}

// SelectionStore remembers the last selected motion per session.
type SelectionStore interface {
	SelectedMotion(ctx context.Context, sessionID string) (int64, bool)
	SetSelectedMotion(ctx context.Context, sessionID string, motionID int64)
}

// Options configures a Session.
type Options struct {
	SessionID string
	Clock     clockwork.Clock
	Transport transport.Options
	// TallyTTL expires cached tallies; zero keeps them.
	TallyTTL time.Duration
}

// Session is a presenter console bound to one voting session.
type Session struct {
	opts      Options
	backend   Backend
	selection SelectionStore
	clock     clockwork.Clock
	router    *event.Router
	client    *transport.Client

	mu           sync.Mutex
	board        *Board
	feedback     string
	autoClose    clockwork.Timer
	autoAt       time.Time
	autoID       int64
	ctx          context.Context
	bootstrapped bool

	changed chan struct{}
}

// NewSession wires a console session. Nothing runs until Run.
func NewSession(backend Backend, dialer transport.Dialer, selection SelectionStore, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Session{
		opts:      opts,
		backend:   backend,
		selection: selection,
		clock:     opts.Clock,
		board:     NewBoard(opts.TallyTTL),
		ctx:       context.Background(),
		changed:   make(chan struct{}, 1),
	}

	s.router = event.NewRouter("moderator")
	for _, kind := range []event.Kind{
		event.MotionOpened, event.MotionClosed, event.TimerUpdated,
		event.AdminVoteUpdate, event.ResultsRevealed, event.ResultsHidden,
		event.PresenceUpdate, event.HeartbeatAck,
	} {
		s.router.On(kind, s.apply)
	}

	topts := opts.Transport
	if topts.Name == "" {
		topts.Name = "moderator transport"
	}
	topts.OnFrame = func(data []byte) { s.router.Dispatch(data) }
	topts.OnState = s.setConnection
	topts.OnOpen = func(first bool) {
		ctx := s.context()
		if !s.hasBootstrapped() {
			if err := s.Bootstrap(ctx); err != nil {
				log.Printf("moderator: bootstrap on connect failed: %v", err)
			}
			return
		}
		if id := s.selectedID(); id != 0 {
			s.fetchTally(ctx, id)
		}
	}
	topts.Poll = s.poll
	s.client = transport.NewClient(dialer, s.clock, topts)
	return s
}

// Run bootstraps the console and keeps it live until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.Bootstrap(ctx); err != nil {
		log.Printf("moderator: bootstrap failed: %v", err)
	}

	s.client.Run(ctx)

	s.mu.Lock()
	s.stopAutoClose()
	s.mu.Unlock()
	log.Println("moderator: session stopped")
}

// Bootstrap loads the motion list and restores the selection.
func (s *Session) Bootstrap(ctx context.Context) error {
	motions, err := s.backend.Motions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load motions: %w", err)
	}
	var stored int64
	if s.selection != nil {
		stored, _ = s.selection.SelectedMotion(ctx, s.opts.SessionID)
	}

	s.mu.Lock()
	effects := s.board.Bootstrap(motions, stored)
	s.bootstrapped = true
	s.mu.Unlock()

	s.run(ctx, effects)
	s.changedBoard()
	return nil
}

func (s *Session) hasBootstrapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapped
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) selectedID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.SelectedID
}

// Deliver applies a raw push frame as if it came from the transport.
func (s *Session) Deliver(data []byte) {
	s.router.Dispatch(data)
}

func (s *Session) apply(ev event.Event) {
	s.mu.Lock()
	effects := s.board.Apply(ev)
	s.mu.Unlock()

	s.run(s.context(), effects)
	s.changedBoard()
}

// run performs board effects in order. Failures are logged; none of them
// blocks the console.
func (s *Session) run(ctx context.Context, effects []Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case EffectFetchTally:
			s.fetchTally(ctx, eff.MotionID)
		case EffectPersistSelection:
			if s.selection != nil {
				s.selection.SetSelectedMotion(ctx, s.opts.SessionID, eff.MotionID)
			}
		case EffectBroadcastPreview:
			if _, err := s.backend.BroadcastPreview(ctx, eff.MotionID); err != nil {
				log.Printf("moderator: preview broadcast for motion %d failed: %v", eff.MotionID, err)
				s.mu.Lock()
				s.board.PreviewFailed(eff.MotionID)
				s.mu.Unlock()
			}
		}
	}
}

func (s *Session) fetchTally(ctx context.Context, id int64) {
	t, err := s.backend.Tally(ctx, id)
	if err != nil {
		log.Printf("moderator: tally fetch for motion %d failed: %v", id, err)
		return
	}
	s.mu.Lock()
	s.board.Index.SetTally(id, t)
	s.mu.Unlock()
	s.notify()
}

// poll refreshes the selected tally and presence while the push channel
// is down. Until the motion list has loaded once it bootstraps instead.
func (s *Session) poll(ctx context.Context) error {
	if !s.hasBootstrapped() {
		return s.Bootstrap(ctx)
	}
	if id := s.selectedID(); id != 0 {
		t, err := s.backend.Tally(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to poll tally: %w", err)
		}
		s.mu.Lock()
		s.board.Index.SetTally(id, t)
		s.mu.Unlock()
	}
	count, err := s.backend.Presence(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll presence: %w", err)
	}
	s.mu.Lock()
	s.board.Presence = count
	s.board.PresenceKnown = true
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) setConnection(state transport.State) {
	s.mu.Lock()
	s.board.Connection = state
	s.mu.Unlock()
	s.notify()
}

// View returns the console at the current clock time.
func (s *Session) View() View {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.board.View(now)
	v.Feedback = s.feedback
	return v
}

// Changed signals after the view changed. Signals coalesce.
func (s *Session) Changed() <-chan struct{} {
	return s.changed
}

// Select moves the selection. It is refused with ErrSelectionLocked while
// a different motion is open.
func (s *Session) Select(ctx context.Context, id int64) error {
	s.mu.Lock()
	effects, err := s.board.Select(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.run(ctx, effects)
	s.changedBoard()
	return nil
}

// Open opens a motion for voting. The list updates from the resulting
// motion_opened event.
func (s *Session) Open(ctx context.Context, id int64) error {
	return s.action(ctx, "open", id, func(ctx context.Context) error {
		return s.backend.OpenMotion(ctx, id)
	})
}

// Close closes a motion.
func (s *Session) Close(ctx context.Context, id int64) error {
	return s.action(ctx, "close", id, func(ctx context.Context) error {
		return s.backend.CloseMotion(ctx, id)
	})
}

// Reveal shows a motion's results to voters.
func (s *Session) Reveal(ctx context.Context, id int64) error {
	return s.action(ctx, "reveal", id, func(ctx context.Context) error {
		return s.backend.RevealResults(ctx, id)
	})
}

// Hide hides a motion's results from voters.
func (s *Session) Hide(ctx context.Context, id int64) error {
	return s.action(ctx, "hide", id, func(ctx context.Context) error {
		if err := s.backend.HideResults(ctx, id); err != nil {
			return err
		}
		s.mu.Lock()
		s.board.Index.Update(id, func(m *model.Motion) { m.RevealResults = false })
		s.mu.Unlock()
		return nil
	})
}

// SetTimer restarts the auto-close countdown at seconds.
func (s *Session) SetTimer(ctx context.Context, id int64, seconds int) error {
	return s.action(ctx, "set timer", id, func(ctx context.Context) error {
		m, err := s.backend.SetTimer(ctx, id, seconds)
		if err != nil {
			return err
		}
		s.mergeMotion(m)
		return nil
	})
}

// ExtendTimer adds seconds to the remaining countdown.
func (s *Session) ExtendTimer(ctx context.Context, id int64, seconds int) error {
	return s.action(ctx, "extend timer", id, func(ctx context.Context) error {
		m, err := s.backend.ExtendTimer(ctx, id, seconds)
		if err != nil {
			return err
		}
		s.mergeMotion(m)
		return nil
	})
}

// Reset deletes every vote on a motion.
func (s *Session) Reset(ctx context.Context, id int64) error {
	return s.action(ctx, "reset votes", id, func(ctx context.Context) error {
		t, err := s.backend.ResetVotes(ctx, id)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.board.Index.SetTally(id, t)
		s.mu.Unlock()
		return nil
	})
}

func (s *Session) mergeMotion(m model.Motion) {
	if m.ID == 0 {
		return
	}
	s.mu.Lock()
	s.board.Index.Merge(m)
	s.mu.Unlock()
}

func (s *Session) action(ctx context.Context, name string, id int64, fn func(context.Context) error) error {
	s.mu.Lock()
	known := s.board.Index.Has(id)
	s.mu.Unlock()
	if id == 0 {
		return ErrNoSelection
	}
	if !known {
		return ErrUnknownMotion
	}

	err := fn(ctx)

	s.mu.Lock()
	if err != nil {
		s.feedback = fmt.Sprintf("Could not %s motion. Please try again.", name)
	} else {
		s.feedback = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("moderator: %s on motion %d failed: %v", name, id, err)
		s.changedBoard()
		return fmt.Errorf("failed to %s motion %d: %w", name, id, err)
	}
	s.changedBoard()
	return nil
}

// changedBoard re-arms the auto-close timer for the current board and
// signals a change. A timer is armed once per (motion, deadline) pair.
func (s *Session) changedBoard() {
	s.mu.Lock()
	id, deadline, ok := s.board.AutoClose()
	var fireNow bool
	switch {
	case !ok:
		s.stopAutoClose()
		s.autoID, s.autoAt = 0, time.Time{}
	case s.autoID != id || !s.autoAt.Equal(deadline):
		s.stopAutoClose()
		s.autoID, s.autoAt = id, deadline
		if wait := deadline.Sub(s.clock.Now()); wait > 0 {
			s.autoClose = s.clock.AfterFunc(wait, func() { s.fireAutoClose(id, deadline) })
		} else {
			fireNow = true
		}
	}
	s.mu.Unlock()

	if fireNow {
		go s.fireAutoClose(id, deadline)
	}
	s.notify()
}

// stopAutoClose cancels the pending auto-close. Must be called with s.mu
// held.
func (s *Session) stopAutoClose() {
	if s.autoClose != nil {
		s.autoClose.Stop()
		s.autoClose = nil
	}
}

// fireAutoClose closes the motion if it is still selected, open and on
// the same deadline.
func (s *Session) fireAutoClose(id int64, deadline time.Time) {
	s.mu.Lock()
	cur, at, ok := s.board.AutoClose()
	still := ok && cur == id && at.Equal(deadline)
	ctx := s.ctx
	s.mu.Unlock()
	if !still {
		return
	}

	log.Printf("moderator: auto-closing motion %d", id)
	if err := s.backend.CloseMotion(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("moderator: auto-close of motion %d failed: %v", id, err)
		s.mu.Lock()
		s.feedback = "Could not close motion. Please try again."
		s.mu.Unlock()
		s.notify()
	}
}

func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
