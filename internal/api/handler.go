package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"motion-live-client/internal/model"
	"motion-live-client/internal/moderator"
	"motion-live-client/internal/store"
	"motion-live-client/internal/upstream"
	"motion-live-client/internal/voter"
)

// VoterSession is the voter side the API drives.
type VoterSession interface {
	Snapshot() voter.Snapshot
	Now() time.Time
	SubmitVote(ctx context.Context, motionID int64, choice model.Choice) error
	DismissHelp()
}

// ModeratorSession is the presenter console the API drives.
type ModeratorSession interface {
	View() moderator.View
	Select(ctx context.Context, id int64) error
	Open(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64) error
	Reveal(ctx context.Context, id int64) error
	Hide(ctx context.Context, id int64) error
	Reset(ctx context.Context, id int64) error
	SetTimer(ctx context.Context, id int64, seconds int) error
	ExtendTimer(ctx context.Context, id int64, seconds int) error
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	webpush   *webpush.Options
	sessionID string
	voter     VoterSession
	moderator ModeratorSession
}

// NewHandler creates a new API handler. Attach exactly one session with
// WithVoter or WithModerator.
func NewHandler(s store.Store, webpushOptions *webpush.Options, sessionID string) *Handler {
	return &Handler{
		store:     s,
		webpush:   webpushOptions,
		sessionID: sessionID,
	}
}

// WithVoter serves the voter routes from v.
func (h *Handler) WithVoter(v VoterSession) *Handler {
	h.voter = v
	return h
}

// WithModerator serves the moderator routes from m.
func (h *Handler) WithModerator(m ModeratorSession) *Handler {
	h.moderator = m
	return h
}

// Role names the attached session.
func (h *Handler) Role() string {
	switch {
	case h.moderator != nil:
		return "moderator"
	case h.voter != nil:
		return "voter"
	}
	return ""
}

// statusFor maps session and backend errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, voter.ErrInvalidChoice):
		return http.StatusBadRequest
	case errors.Is(err, moderator.ErrUnknownMotion):
		return http.StatusNotFound
	case errors.Is(err, moderator.ErrSelectionLocked),
		errors.Is(err, moderator.ErrNoSelection),
		errors.Is(err, voter.ErrNotOpen),
		errors.Is(err, voter.ErrWrongMotion),
		errors.Is(err, voter.ErrExpired),
		errors.Is(err, voter.ErrSubmitting),
		errors.Is(err, upstream.ErrVoteLocked),
		errors.Is(err, upstream.ErrMotionOpen):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
