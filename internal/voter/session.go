package voter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"motion-live-client/internal/countdown"
	"motion-live-client/internal/event"
	"motion-live-client/internal/model"
	"motion-live-client/internal/transport"
	"motion-live-client/internal/upstream"
)

// Backend is the part of the backend API a voter uses.
type Backend interface {
	CurrentState(ctx context.Context) (model.SessionState, error)
	CastVote(ctx context.Context, motionID int64, choice model.Choice) (upstream.VoteResult, error)
}

// HelpStore remembers whether the help dialog was already shown.
type HelpStore interface {
	HelpSeen(ctx context.Context, sessionID string) bool
	MarkHelpSeen(ctx context.Context, sessionID string)
}

// Options configures a Session.
type Options struct {
	SessionID string
	Clock     clockwork.Clock
	Transport transport.Options
	// OnMotionOpened is called outside the session lock each time a new
	// motion opens for voting.
	OnMotionOpened func(model.Motion)
}

// Session is one voter's live view of a voting session. Every change goes
// through Reconcile under a single lock, so events are applied one at a
// time in the order they arrive.
type Session struct {
	opts    Options
	backend Backend
	help    HelpStore
	clock   clockwork.Clock
	router  *event.Router
	client  *transport.Client

	mu     sync.Mutex
	snap   Snapshot
	ctx    context.Context
	synced bool

	changed chan struct{}
	wake    chan struct{}
}

// NewSession wires a voter session. Nothing runs until Run.
func NewSession(backend Backend, dialer transport.Dialer, help HelpStore, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Session{
		opts:    opts,
		backend: backend,
		help:    help,
		clock:   opts.Clock,
		snap:    Initial(),
		ctx:     context.Background(),
		changed: make(chan struct{}, 1),
		wake:    make(chan struct{}, 1),
	}

	s.router = event.NewRouter("voter")
	for _, kind := range []event.Kind{
		event.MotionOpened, event.MotionPreviewed, event.MotionClosed,
		event.ResultsRevealed, event.ResultsHidden, event.TimerUpdated,
		event.VoteAck, event.PresenceUpdate, event.HeartbeatAck, event.StateSynced,
	} {
		s.router.On(kind, s.apply)
	}

	topts := opts.Transport
	if topts.Name == "" {
		topts.Name = "voter transport"
	}
	topts.OnFrame = func(data []byte) { s.router.Dispatch(data) }
	topts.OnState = s.setConnection
	topts.OnOpen = func(first bool) {
		if !first || !s.hasSynced() {
			s.resync()
		}
	}
	topts.Poll = s.Sync
	s.client = transport.NewClient(dialer, s.clock, topts)
	return s
}

// Run bootstraps the view and keeps it live until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.help != nil && !s.help.HelpSeen(ctx, s.opts.SessionID) {
		s.mu.Lock()
		s.snap.ShowHelp = true
		s.mu.Unlock()
		s.help.MarkHelpSeen(ctx, s.opts.SessionID)
		s.notify()
	}

	if err := s.Sync(ctx); err != nil {
		log.Printf("voter: initial state fetch failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.redraw(ctx)
	}()

	s.client.Run(ctx)
	wg.Wait()
	log.Println("voter: session stopped")
}

// Sync fetches the authoritative state and reconciles it.
func (s *Session) Sync(ctx context.Context) error {
	st, err := s.backend.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch current state: %w", err)
	}
	s.apply(event.Synced{State: st})
	s.mu.Lock()
	s.synced = true
	s.mu.Unlock()
	return nil
}

func (s *Session) hasSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// resync runs after a reconnect, and on every connect until a state fetch
// has succeeded once.
func (s *Session) resync() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if err := s.Sync(ctx); err != nil {
		log.Printf("voter: resync failed: %v", err)
	}
}

// Deliver applies a raw push frame as if it came from the transport.
func (s *Session) Deliver(data []byte) {
	s.router.Dispatch(data)
}

func (s *Session) apply(ev event.Event) {
	s.mu.Lock()
	prev := s.snap
	s.snap = Reconcile(s.snap, ev)
	next := s.snap
	s.mu.Unlock()

	s.notify()
	s.kick()
	if s.opts.OnMotionOpened != nil && next.Mode == ModeOpen && next.Motion != nil &&
		(prev.Mode != ModeOpen || !prev.showing(next.Motion.ID)) {
		s.opts.OnMotionOpened(*next.Motion.Clone())
	}
}

func (s *Session) setConnection(state transport.State) {
	s.mu.Lock()
	s.snap.Connection = state
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a copy of the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Changed signals after the view changed. Signals coalesce; read Snapshot
// after receiving.
func (s *Session) Changed() <-chan struct{} {
	return s.changed
}

// Now is the session's clock reading, for rendering countdowns.
func (s *Session) Now() time.Time {
	return s.clock.Now()
}

// DismissHelp hides the help dialog.
func (s *Session) DismissHelp() {
	s.mu.Lock()
	s.snap.ShowHelp = false
	s.mu.Unlock()
	s.notify()
}

// SubmitVote casts choice on the open motion. Local precondition failures
// return without touching the network. A vote_locked answer adopts the
// recorded choice and is returned as an error matching
// upstream.ErrVoteLocked.
func (s *Session) SubmitVote(ctx context.Context, motionID int64, choice model.Choice) error {
	now := s.clock.Now()

	s.mu.Lock()
	if err := s.snap.CheckVote(now, motionID, choice); err != nil {
		s.mu.Unlock()
		return err
	}
	s.snap.Submitting = true
	s.snap.Feedback = Feedback{Kind: FeedbackInfo, Text: msgSubmitting}
	s.mu.Unlock()
	s.notify()

	res, err := s.backend.CastVote(ctx, motionID, choice)

	s.mu.Lock()
	s.snap.Submitting = false
	current := s.snap.Mode != ModeWaiting && s.snap.showing(motionID)
	var reqErr *upstream.RequestError
	switch {
	case err == nil:
		if current {
			recorded := res.Choice
			if !recorded.Valid() {
				recorded = choice
			}
			s.snap.Selection = &recorded
			s.snap.Feedback = Feedback{Kind: FeedbackSuccess, Text: msgRecorded}
		}
	case errors.Is(err, upstream.ErrVoteLocked):
		if current {
			if errors.As(err, &reqErr) && reqErr.Choice.Valid() {
				recorded := reqErr.Choice
				s.snap.Selection = &recorded
			}
			s.snap.Feedback = Feedback{Kind: FeedbackInfo, Text: msgLocked}
		}
	case errors.As(err, &reqErr):
		if current {
			s.snap.Feedback = Feedback{Kind: FeedbackError, Text: msgRejected}
		}
	default:
		if current {
			s.snap.Feedback = Feedback{Kind: FeedbackError, Text: msgNetwork}
		}
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		log.Printf("voter: vote on motion %d failed: %v", motionID, err)
		return fmt.Errorf("failed to submit vote: %w", err)
	}
	return nil
}

// redraw signals once per displayed second while a countdown runs so the
// view can repaint, including the moment the deadline passes. No timer is
// armed while nothing counts down; apply kicks the loop on every change.
func (s *Session) redraw(ctx context.Context) {
	for {
		s.mu.Lock()
		deadline, counting := s.snap.Motion.Deadline()
		counting = counting && s.snap.Mode == ModeOpen
		s.mu.Unlock()

		var timer clockwork.Timer
		var tick <-chan time.Time
		if counting {
			if next := countdown.NextChange(s.clock.Now(), deadline); next > 0 {
				timer = s.clock.NewTimer(next)
				tick = timer.Chan()
			}
		}

		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-tick:
			s.notify()
		}
		if timer != nil {
			timer.Stop()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// kick makes redraw re-read the snapshot.
func (s *Session) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
