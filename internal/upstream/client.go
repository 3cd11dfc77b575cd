package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"motion-live-client/internal/model"
)

// Backend error codes that callers branch on.
const (
	CodeVoteLocked    = "vote_locked"
	CodeInvalidChoice = "invalid_choice"
	CodeMotionClosed  = "motion_closed"
	CodeMotionOpen    = "motion_open"
	CodeNotOpen       = "not_open"
	CodeMissingSecs   = "missing_seconds"
)

var (
	// ErrVoteLocked matches a rejected vote change on a motion that does
	// not allow one.
	ErrVoteLocked = errors.New("vote already recorded")
	// ErrMotionOpen matches a preview refused because another motion is
	// open.
	ErrMotionOpen = errors.New("another motion is open")
)

// RequestError is a non-success answer from the backend.
type RequestError struct {
	Op     string
	Status int
	Code   string
	// Choice is the recorded choice carried by a vote_locked answer.
	Choice model.Choice
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: backend answered %d (%s)", e.Op, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: backend answered %d", e.Op, e.Status)
}

// Is lets errors.Is match the sentinels above by backend code.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrVoteLocked:
		return e.Code == CodeVoteLocked
	case ErrMotionOpen:
		return e.Code == CodeMotionOpen
	}
	return false
}

// Credentials are attached to every request and to the websocket dial.
type Credentials struct {
	Cookie    string `yaml:"cookie" env:"COOKIE"`
	CSRFToken string `yaml:"csrf_token" env:"CSRF_TOKEN"`
}

// Header returns the credential headers.
func (c Credentials) Header() http.Header {
	h := http.Header{}
	if c.Cookie != "" {
		h.Set("Cookie", c.Cookie)
	}
	if c.CSRFToken != "" {
		h.Set("X-CSRFToken", c.CSRFToken)
	}
	return h
}

// Client is a session-scoped backend client.
type Client struct {
	base    *url.URL
	session string
	creds   Credentials
	http    *http.Client
}

// NewClient creates a client for one voting session. Redirects are not
// followed; the form endpoints answer success with a redirect.
func NewClient(baseURL, session string, creds Credentials, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    base,
		session: session,
		creds:   creds,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// WebsocketURL returns the push endpoint for role ("voter" or "admin").
func (c *Client) WebsocketURL(role string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += fmt.Sprintf("/ws/motions/%s/%s/", c.session, role)
	return u.String()
}

// Origin is the origin sent with the websocket handshake.
func (c *Client) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// Header returns the credential headers for the websocket dial.
func (c *Client) Header() http.Header {
	return c.creds.Header()
}

func (c *Client) endpoint(format string, args ...any) string {
	u := *c.base
	u.Path += fmt.Sprintf("/motions/%s/", c.session) + fmt.Sprintf(format, args...)
	return u.String()
}

// envelope is the common {ok, error} wrapper of JSON answers.
type envelope struct {
	OK     *bool        `json:"ok"`
	Error  string       `json:"error"`
	Choice model.Choice `json:"choice"`
}

// do sends req and decodes a JSON body into out. A redirect counts as
// success with no body.
func (c *Client) do(req *http.Request, op string, out any) error {
	for key, values := range c.creds.Header() {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read body: %w", op, err)
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil
	}

	var env envelope
	jsonBody := len(body) > 0 && json.Unmarshal(body, &env) == nil
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (jsonBody && env.OK != nil && !*env.OK) {
		return &RequestError{Op: op, Status: resp.StatusCode, Code: env.Error, Choice: env.Choice}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	return c.do(req, op, out)
}

func (c *Client) post(ctx context.Context, op, target string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op, out)
}

// CurrentState fetches the authoritative open, preview and latest closed
// motions.
func (c *Client) CurrentState(ctx context.Context) (model.SessionState, error) {
	var state model.SessionState
	err := c.get(ctx, "current state", c.endpoint("api/current/"), &state)
	return state, err
}

// Presence returns the number of connected voters.
func (c *Client) Presence(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "presence", c.endpoint("api/presence/"), &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Tally fetches the counts of one motion.
func (c *Client) Tally(ctx context.Context, motionID int64) (model.Tally, error) {
	var out struct {
		Counts model.Tally `json:"counts"`
	}
	target := c.endpoint("api/tallies/") + "?motion_id=" + strconv.FormatInt(motionID, 10)
	if err := c.get(ctx, "tally", target, &out); err != nil {
		return model.Tally{}, err
	}
	return out.Counts, nil
}

// Motions lists the session's motions in display order.
func (c *Client) Motions(ctx context.Context) ([]model.Motion, error) {
	var out struct {
		Motions []model.Motion `json:"motions"`
	}
	if err := c.get(ctx, "motions", c.endpoint("api/motions/"), &out); err != nil {
		return nil, err
	}
	return out.Motions, nil
}

// VoteResult is the backend's record of a cast vote.
type VoteResult struct {
	Choice   model.Choice `json:"choice"`
	Previous model.Choice `json:"previous"`
	Created  bool         `json:"created"`
	Changed  bool         `json:"changed"`
}

// CastVote records choice on a motion. A rejected change returns a
// *RequestError matching ErrVoteLocked that carries the recorded choice.
func (c *Client) CastVote(ctx context.Context, motionID int64, choice model.Choice) (VoteResult, error) {
	var out VoteResult
	form := url.Values{"choice": {string(choice)}}
	err := c.post(ctx, "cast vote", c.endpoint("api/%d/vote/", motionID), form, &out)
	return out, err
}

// OpenMotion opens a motion for voting.
func (c *Client) OpenMotion(ctx context.Context, motionID int64) error {
	return c.post(ctx, "open motion", c.endpoint("%d/open/", motionID), url.Values{}, nil)
}

// CloseMotion closes a motion.
func (c *Client) CloseMotion(ctx context.Context, motionID int64) error {
	return c.post(ctx, "close motion", c.endpoint("%d/close/", motionID), url.Values{}, nil)
}

// RevealResults shows a motion's results to voters.
func (c *Client) RevealResults(ctx context.Context, motionID int64) error {
	return c.post(ctx, "reveal results", c.endpoint("%d/reveal/", motionID), url.Values{}, nil)
}

// HideResults hides a motion's results from voters.
func (c *Client) HideResults(ctx context.Context, motionID int64) error {
	return c.post(ctx, "hide results", c.endpoint("%d/hide/", motionID), url.Values{}, nil)
}

// SetTimer replaces the auto-close countdown with seconds from now.
func (c *Client) SetTimer(ctx context.Context, motionID int64, seconds int) (model.Motion, error) {
	return c.timer(ctx, motionID, url.Values{"seconds": {strconv.Itoa(seconds)}})
}

// ExtendTimer adds seconds to the remaining countdown.
func (c *Client) ExtendTimer(ctx context.Context, motionID int64, seconds int) (model.Motion, error) {
	return c.timer(ctx, motionID, url.Values{"extend": {strconv.Itoa(seconds)}})
}

func (c *Client) timer(ctx context.Context, motionID int64, form url.Values) (model.Motion, error) {
	var out struct {
		Motion model.Motion `json:"motion"`
	}
	err := c.post(ctx, "set timer", c.endpoint("api/%d/timer/", motionID), form, &out)
	return out.Motion, err
}

// BroadcastPreview pushes a motion to voter screens before it opens.
func (c *Client) BroadcastPreview(ctx context.Context, motionID int64) (model.Motion, error) {
	var out struct {
		Preview model.Motion `json:"preview"`
	}
	err := c.post(ctx, "preview", c.endpoint("%d/preview/", motionID), url.Values{}, &out)
	return out.Preview, err
}

// ResetVotes deletes every vote on a motion and returns the zeroed tally.
func (c *Client) ResetVotes(ctx context.Context, motionID int64) (model.Tally, error) {
	var out struct {
		Counts model.Tally `json:"counts"`
	}
	err := c.post(ctx, "reset votes", c.endpoint("%d/reset/", motionID), url.Values{}, &out)
	return out.Counts, err
}
