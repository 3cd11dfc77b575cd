package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the connection indicator shown to the user.
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateOffline      State = "offline"
)

var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// Options configures a Client.
type Options struct {
	Name              string
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	Backoff           Backoff

	// OnFrame receives every inbound frame in receipt order.
	OnFrame func(data []byte)
	// OnState is called whenever the indicator changes.
	OnState func(State)
	// OnOpen is called after each successful dial. first is false for
	// every connection after the initial one.
	OnOpen func(first bool)
	// Poll fetches authoritative state while the push channel is down.
	// A nil Poll disables the fallback.
	Poll func(ctx context.Context) error
}

// DefaultOptions returns a 15s heartbeat, a 5s poll and DefaultBackoff.
func DefaultOptions() Options {
	return Options{
		Name:              "transport",
		HeartbeatInterval: 15 * time.Second,
		PollInterval:      5 * time.Second,
		Backoff:           DefaultBackoff(),
	}
}

// Client maintains the push connection.
type Client struct {
	opts   Options
	dialer Dialer
	clock  clockwork.Clock

	mu    sync.Mutex
	state State
	retry retryState
	opens int

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewClient creates a client. Zero durations in opts take the defaults.
func NewClient(dialer Dialer, clk clockwork.Clock, opts Options) *Client {
	def := DefaultOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Backoff.Max <= 0 {
		opts.Backoff = def.Backoff
	}
	return &Client{
		opts:   opts,
		dialer: dialer,
		clock:  clk,
		state:  StateReconnecting,
		retry:  retryState{backoff: opts.Backoff},
	}
}

// State returns the current indicator.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of consecutive failed connections.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry.attempts
}

// Run dials, serves and redials until ctx is cancelled. No attempt is ever
// abandoned.
func (c *Client) Run(ctx context.Context) {
	log.Printf("%s: starting", c.opts.Name)
	defer c.stopPolling()

	for {
		conn, err := c.dialer.Dial(ctx)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			log.Printf("%s: shutting down", c.opts.Name)
			return
		}
		if err == nil {
			c.opened()
			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				log.Printf("%s: shutting down", c.opts.Name)
				return
			}
		}

		c.mu.Lock()
		delay, poll := c.retry.fail()
		attempts := c.retry.attempts
		c.mu.Unlock()

		c.setState(StateReconnecting)
		log.Printf("%s: connection lost (%v), retry %d in %s", c.opts.Name, err, attempts, delay)
		if poll {
			c.startPolling(ctx)
		}

		select {
		case <-ctx.Done():
			log.Printf("%s: shutting down", c.opts.Name)
			return
		case <-c.clock.After(delay):
		}
	}
}

func (c *Client) opened() {
	c.stopPolling()

	c.mu.Lock()
	c.retry.reset()
	c.opens++
	first := c.opens == 1
	c.mu.Unlock()

	c.setState(StateConnected)
	if c.opts.OnOpen != nil {
		c.opts.OnOpen(first)
	}
}

// serve reads frames until the connection fails. The heartbeat runs for
// the lifetime of the connection.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	ticker := c.clock.NewTicker(c.opts.HeartbeatInterval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.Chan():
				if err := conn.WriteFrame(heartbeatFrame); err != nil {
					log.Printf("%s: heartbeat failed: %v", c.opts.Name, err)
					conn.Close()
					return
				}
			}
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
		conn.Close()
	}()

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(data)
		}
	}
}

func (c *Client) startPolling(ctx context.Context) {
	if c.opts.Poll == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCancel != nil {
		return
	}

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done
	log.Printf("%s: falling back to polling every %s", c.opts.Name, c.opts.PollInterval)

	ticker := c.clock.NewTicker(c.opts.PollInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		c.pollOnce(pctx)
		for {
			select {
			case <-pctx.Done():
				return
			case <-ticker.Chan():
				c.pollOnce(pctx)
			}
		}
	}()
}

// stopPolling cancels the fallback and waits for it to exit.
func (c *Client) stopPolling() {
	c.mu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel, c.pollDone = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) pollOnce(ctx context.Context) {
	err := c.opts.Poll(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("%s: poll failed: %v", c.opts.Name, err)
		c.setState(StateOffline)
		return
	}
	c.setState(StateConnected)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
