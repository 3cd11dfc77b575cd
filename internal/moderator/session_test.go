package moderator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motion-live-client/internal/model"
	"motion-live-client/internal/transport"
)

type fakeBackend struct {
	mu          sync.Mutex
	motions     []model.Motion
	motionFails int
	tallies     map[int64]model.Tally
	presence    int
	previewErr  error
	actionErr   error
	calls       []string
	closed      []int64
	previews    []int64
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) Motions(ctx context.Context) ([]model.Motion, error) {
	b.record("motions")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.motionFails > 0 {
		b.motionFails--
		return nil, errors.New("503 service unavailable")
	}
	return b.motions, nil
}

func (b *fakeBackend) callCount(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (b *fakeBackend) Tally(ctx context.Context, id int64) (model.Tally, error) {
	b.record("tally")
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tallies[id], nil
}

func (b *fakeBackend) Presence(ctx context.Context) (int, error) {
	b.record("presence")
	return b.presence, nil
}

func (b *fakeBackend) OpenMotion(ctx context.Context, id int64) error {
	b.record("open")
	return b.actionErr
}

func (b *fakeBackend) CloseMotion(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	return b.actionErr
}

func (b *fakeBackend) RevealResults(ctx context.Context, id int64) error {
	b.record("reveal")
	return b.actionErr
}

func (b *fakeBackend) HideResults(ctx context.Context, id int64) error {
	b.record("hide")
	return b.actionErr
}

func (b *fakeBackend) SetTimer(ctx context.Context, id int64, seconds int) (model.Motion, error) {
	b.record("timer")
	opened := t0.Add(10 * time.Second)
	return model.Motion{ID: id, Status: model.StatusOpen, OpenedAt: &opened, AutoCloseSeconds: &seconds}, b.actionErr
}

func (b *fakeBackend) ExtendTimer(ctx context.Context, id int64, seconds int) (model.Motion, error) {
	return b.SetTimer(ctx, id, 20+seconds)
}

func (b *fakeBackend) BroadcastPreview(ctx context.Context, id int64) (model.Motion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.previews = append(b.previews, id)
	return model.Motion{ID: id}, b.previewErr
}

func (b *fakeBackend) ResetVotes(ctx context.Context, id int64) (model.Tally, error) {
	b.record("reset")
	return model.Tally{}, b.actionErr
}

func (b *fakeBackend) closedIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.closed...)
}

type memSelection struct {
	mu  sync.Mutex
	ids map[string]int64
}

func (m *memSelection) SelectedMotion(ctx context.Context, sessionID string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[sessionID]
	return id, ok
}

func (m *memSelection) SetSelectedMotion(ctx context.Context, sessionID string, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[sessionID] = id
}

type refusingDialer struct{}

func (refusingDialer) Dial(ctx context.Context) (transport.Conn, error) {
	return nil, errors.New("connection refused")
}

// idleConn is an open push connection that never delivers a frame.
type idleConn struct {
	once   sync.Once
	closed chan struct{}
}

func (c *idleConn) ReadFrame() ([]byte, error) {
	<-c.closed
	return nil, errors.New("connection closed")
}

func (c *idleConn) WriteFrame(data []byte) error { return nil }

func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type connectingDialer struct{}

func (connectingDialer) Dial(ctx context.Context) (transport.Conn, error) {
	return &idleConn{closed: make(chan struct{})}, nil
}

// blockUntil waits until exactly n timers are armed on clk.
func blockUntil(t *testing.T, clk *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, n), "waiting for %d armed timers", n)
}

func newTestSession(t *testing.T, backend *fakeBackend, stored int64) (*Session, *clockwork.FakeClock, *memSelection) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(t0)
	sel := &memSelection{ids: map[string]int64{}}
	if stored != 0 {
		sel.ids["s1"] = stored
	}
	s := NewSession(backend, refusingDialer{}, sel, Options{SessionID: "s1", Clock: clk})
	require.NoError(t, s.Bootstrap(context.Background()))
	return s, clk, sel
}

func TestSession_BootstrapRestoresStoredSelection(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), tallies: map[int64]model.Tally{2: {Yes: 4}}}
	s, _, sel := newTestSession(t, backend, 2)

	v := s.View()
	assert.Equal(t, int64(2), v.SelectedID)
	require.NotNil(t, v.Tally)
	assert.Equal(t, 4, v.Tally.Yes)
	assert.Equal(t, []int64{2}, backend.previews)

	id, _ := sel.SelectedMotion(context.Background(), "s1")
	assert.Equal(t, int64(2), id)
}

func TestSession_SelectRefusedWhileAnotherMotionIsOpen(t *testing.T) {
	list := motionList()
	list[0].Status = model.StatusOpen
	list[0].ClosedAt = nil
	backend := &fakeBackend{motions: list}
	s, _, sel := newTestSession(t, backend, 0)

	before := s.View()
	err := s.Select(context.Background(), 3)
	assert.ErrorIs(t, err, ErrSelectionLocked)
	assert.Equal(t, before, s.View())

	id, _ := sel.SelectedMotion(context.Background(), "s1")
	assert.Equal(t, int64(1), id)
	require.NoError(t, s.Select(context.Background(), 1))
}

func TestSession_PreviewBroadcastDeduplicatedAndRetried(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), previewErr: errors.New("boom")}
	s, _, _ := newTestSession(t, backend, 0)
	ctx := context.Background()

	require.NoError(t, s.Select(ctx, 2))
	require.NoError(t, s.Select(ctx, 2))
	assert.Equal(t, []int64{1, 2, 2}, backend.previews, "failed broadcasts are retried")

	backend.previewErr = nil
	require.NoError(t, s.Select(ctx, 3))
	require.NoError(t, s.Select(ctx, 3))
	assert.Equal(t, []int64{1, 2, 2, 3}, backend.previews)
}

func TestSession_MotionOpenedFrame(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), tallies: map[int64]model.Tally{3: {No: 2}}}
	s, _, sel := newTestSession(t, backend, 0)

	s.Deliver([]byte(`{"event":"motion_opened","payload":{"id":3,"title":"Bylaws","status":"open"}}`))

	v := s.View()
	assert.Equal(t, int64(3), v.SelectedID)
	assert.Equal(t, int64(3), v.OpenID)
	assert.Equal(t, 2, v.Tally.No, "tally is refetched after being zeroed")
	id, _ := sel.SelectedMotion(context.Background(), "s1")
	assert.Equal(t, int64(3), id)
}

func TestSession_AutoCloseAtDeadline(t *testing.T) {
	list := motionList()
	list[2].Status = model.StatusOpen
	list[2].OpenedAt = timePtr(t0)
	backend := &fakeBackend{motions: list}
	s, clk, _ := newTestSession(t, backend, 0)
	require.Equal(t, int64(3), s.View().SelectedID)

	blockUntil(t, clk, 1)
	clk.Advance(29 * time.Second)
	assert.Empty(t, backend.closedIDs())

	clk.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int64{3}, backend.closedIDs())
	}, time.Second, 5*time.Millisecond)
}

func TestSession_TimerChangeReschedulesAutoClose(t *testing.T) {
	list := motionList()
	list[2].Status = model.StatusOpen
	list[2].OpenedAt = timePtr(t0)
	backend := &fakeBackend{motions: list}
	s, clk, _ := newTestSession(t, backend, 0)

	clk.Advance(10 * time.Second)
	// New deadline: opened at t0+10s with 60 seconds.
	require.NoError(t, s.SetTimer(context.Background(), 3, 60))

	blockUntil(t, clk, 1)
	clk.Advance(20 * time.Second)
	assert.Empty(t, backend.closedIDs(), "the old deadline no longer fires")

	clk.Advance(40 * time.Second)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int64{3}, backend.closedIDs())
	}, time.Second, 5*time.Millisecond)
}

func TestSession_AutoCloseCancelledWhenMotionCloses(t *testing.T) {
	list := motionList()
	list[2].Status = model.StatusOpen
	list[2].OpenedAt = timePtr(t0)
	backend := &fakeBackend{motions: list}
	s, clk, _ := newTestSession(t, backend, 0)

	s.Deliver([]byte(`{"event":"motion_closed","payload":{"id":3,"status":"closed","counts":{"yes":1,"no":0,"abstain":0}}}`))
	blockUntil(t, clk, 0)

	clk.Advance(time.Minute)
	assert.Empty(t, backend.closedIDs())
	assert.Equal(t, "Closed", s.View().Countdown.Label)
}

func TestSession_ActionFailureSetsFeedback(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), actionErr: errors.New("502")}
	s, _, _ := newTestSession(t, backend, 0)

	err := s.Reveal(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, "Could not reveal motion. Please try again.", s.View().Feedback)

	backend.actionErr = nil
	require.NoError(t, s.Reveal(context.Background(), 1))
	assert.Empty(t, s.View().Feedback)

	assert.ErrorIs(t, s.Open(context.Background(), 77), ErrUnknownMotion)
	assert.ErrorIs(t, s.Close(context.Background(), 0), ErrNoSelection)
}

func TestSession_HideAndReset(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), tallies: map[int64]model.Tally{1: {Yes: 12}}}
	s, _, _ := newTestSession(t, backend, 0)
	ctx := context.Background()

	s.Deliver([]byte(`{"event":"results_revealed","payload":{"motion_id":1,"counts":{"yes":12}}}`))
	require.True(t, s.View().Selected.RevealResults)

	require.NoError(t, s.Hide(ctx, 1))
	assert.False(t, s.View().Selected.RevealResults)

	require.NoError(t, s.Reset(ctx, 1))
	v := s.View()
	assert.Equal(t, 0, v.Tally.Total())
	assert.False(t, v.Rows[0].Completed)
}

func TestSession_PollRefreshesTallyAndPresence(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), tallies: map[int64]model.Tally{1: {Abstain: 3}}, presence: 9}
	s, _, _ := newTestSession(t, backend, 0)

	require.NoError(t, s.poll(context.Background()))
	v := s.View()
	assert.Equal(t, 9, v.Presence)
	assert.Equal(t, 3, v.Tally.Abstain)
}

func TestSession_BootstrapRetriedOnConnectAfterFailedStart(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), motionFails: 1, tallies: map[int64]model.Tally{1: {Yes: 12}}}
	sel := &memSelection{ids: map[string]int64{}}
	s := NewSession(backend, connectingDialer{}, sel, Options{SessionID: "s1", Clock: clockwork.NewFakeClockAt(t0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		v := s.View()
		return v.Connection == transport.StateConnected && len(v.Rows) == 3 && v.Tally != nil
	}, 2*time.Second, 5*time.Millisecond)
	v := s.View()
	assert.Equal(t, int64(1), v.SelectedID)
	assert.Equal(t, 12, v.Tally.Yes)
	assert.Equal(t, 2, backend.callCount("motions"))
}

func TestSession_PollBootstrapsBeforeRefreshing(t *testing.T) {
	backend := &fakeBackend{motions: motionList(), motionFails: 1, presence: 4}
	s := NewSession(backend, refusingDialer{}, nil, Options{SessionID: "s1", Clock: clockwork.NewFakeClockAt(t0)})

	require.Error(t, s.Bootstrap(context.Background()))
	require.NoError(t, s.poll(context.Background()))
	assert.Len(t, s.View().Rows, 3)
	assert.Equal(t, 0, backend.callCount("presence"))

	require.NoError(t, s.poll(context.Background()))
	assert.Equal(t, 4, s.View().Presence)
}
