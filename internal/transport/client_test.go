package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()

	testCases := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: 4 * time.Second},
		{attempts: 2, want: 5 * time.Second},
		{attempts: 3, want: 6 * time.Second},
		{attempts: 12, want: 15 * time.Second},
		{attempts: 40, want: 15 * time.Second},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, b.Delay(tc.attempts), "attempts=%d", tc.attempts)
	}
}

func TestRetryState_PollingStartsOnThirdFailure(t *testing.T) {
	r := retryState{backoff: DefaultBackoff()}

	_, poll := r.fail()
	assert.False(t, poll)
	_, poll = r.fail()
	assert.False(t, poll)
	delay, poll := r.fail()
	assert.True(t, poll)
	assert.Equal(t, 6*time.Second, delay)

	r.reset()
	delay, poll = r.fail()
	assert.False(t, poll)
	assert.Equal(t, 4*time.Second, delay)
}

type fakeConn struct {
	frames chan []byte
	writes chan []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 8),
		writes: make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(data []byte) error {
	c.writes <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// scriptedDialer fails until it runs out of errors, then hands out conns.
type scriptedDialer struct {
	mu    sync.Mutex
	fails int
	conns []*fakeConn
	dials int
}

func (d *scriptedDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fails > 0 {
		d.fails--
		return nil, errors.New("connection refused")
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more conns")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

// blockUntil waits until exactly n timers are armed on clk.
func blockUntil(t *testing.T, clk *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, n), "waiting for %d armed timers", n)
}

func TestClient_ReconnectPollAndHeartbeat(t *testing.T) {
	clk := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	conn := newFakeConn()
	dialer := &scriptedDialer{fails: 3, conns: []*fakeConn{conn}}

	states := make(chan State, 32)
	polls := make(chan struct{}, 8)
	frames := make(chan []byte, 8)
	opens := make(chan bool, 2)

	opts := DefaultOptions()
	opts.OnState = func(s State) { states <- s }
	opts.OnFrame = func(data []byte) { frames <- data }
	opts.OnOpen = func(first bool) { opens <- first }
	opts.Poll = func(ctx context.Context) error {
		polls <- struct{}{}
		return errors.New("backend unreachable")
	}
	client := NewClient(dialer, clk, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	// Two failures back off 4s then 5s without polling.
	blockUntil(t, clk, 1)
	assert.Equal(t, 1, client.Attempts())
	clk.Advance(4 * time.Second)
	blockUntil(t, clk, 1)
	assert.Equal(t, 2, client.Attempts())
	assert.Empty(t, polls)
	clk.Advance(5 * time.Second)

	// The third failure starts polling immediately, alongside the 6s redial.
	blockUntil(t, clk, 2)
	receive(t, polls)
	waitState(t, states, StateOffline)
	assert.Equal(t, 3, client.Attempts())

	clk.Advance(5 * time.Second)
	receive(t, polls)

	// The redial succeeds: polling stops and the heartbeat starts.
	clk.Advance(time.Second)
	waitState(t, states, StateConnected)
	assert.True(t, receive(t, opens))
	assert.Equal(t, 0, client.Attempts())

	blockUntil(t, clk, 1)
	clk.Advance(15 * time.Second)
	assert.JSONEq(t, `{"type":"heartbeat"}`, string(receive(t, conn.writes)))
	assert.Empty(t, polls)

	conn.frames <- []byte(`{"event":"presence_update","payload":{"count":3}}`)
	assert.Equal(t, `{"event":"presence_update","payload":{"count":3}}`, string(receive(t, frames)))

	// Losing the connection starts the schedule over.
	conn.Close()
	waitState(t, states, StateReconnecting)
	blockUntil(t, clk, 1)
	assert.Equal(t, 1, client.Attempts())

	cancel()
	receive(t, done)
}

func TestClient_PollSuccessRestoresConnectedIndicator(t *testing.T) {
	clk := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	dialer := &scriptedDialer{fails: 100}

	states := make(chan State, 32)
	opts := DefaultOptions()
	opts.Backoff.PollAfter = 1
	opts.OnState = func(s State) { states <- s }
	opts.Poll = func(ctx context.Context) error { return nil }
	client := NewClient(dialer, clk, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	waitState(t, states, StateConnected)
	require.Equal(t, 1, client.Attempts())

	cancel()
	receive(t, done)
}

func TestClient_OnOpenReportsReconnects(t *testing.T) {
	clk := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	first, second := newFakeConn(), newFakeConn()
	dialer := &scriptedDialer{conns: []*fakeConn{first, second}}

	opens := make(chan bool, 2)
	states := make(chan State, 8)
	opts := DefaultOptions()
	opts.OnOpen = func(f bool) { opens <- f }
	opts.OnState = func(s State) { states <- s }
	client := NewClient(dialer, clk, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	assert.True(t, receive(t, opens))
	first.Close()

	// Reconnecting is reported after the dead conn's heartbeat is stopped,
	// so the only armed timer left is the redial.
	waitState(t, states, StateReconnecting)
	blockUntil(t, clk, 1)
	clk.Advance(4 * time.Second)
	assert.False(t, receive(t, opens))

	cancel()
	receive(t, done)
}
