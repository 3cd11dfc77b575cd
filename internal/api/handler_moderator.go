package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"motion-live-client/internal/parse"
)

// GetMotions lists the session's motions with tallies and badges.
func (h *Handler) GetMotions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"motions": h.moderator.View().Rows})
}

func motionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid motion id"})
		return 0, false
	}
	return id, true
}

// MotionAction adapts a session action into a handler that answers with
// the updated console view.
func (h *Handler) MotionAction(fn func(ModeratorSession, context.Context, int64) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := motionID(c)
		if !ok {
			return
		}
		if err := fn(h.moderator, c.Request.Context(), id); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"view": h.moderator.View()})
	}
}

type postTimerRequest struct {
	Seconds *int   `json:"seconds"`
	Extend  *int   `json:"extend"`
	Input   string `json:"input"`
}

// PostTimer sets or extends a motion's auto-close timer. It accepts
// {"seconds": n}, {"extend": n} or free text such as {"input": "+30s"}.
func (h *Handler) PostTimer(c *gin.Context) {
	id, ok := motionID(c)
	if !ok {
		return
	}

	var req postTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var timer parse.Timer
	switch {
	case req.Extend != nil && *req.Extend > 0:
		timer = parse.Timer{Seconds: *req.Extend, Extend: true}
	case req.Seconds != nil && *req.Seconds >= 0:
		timer = parse.Timer{Seconds: *req.Seconds}
	case req.Input != "":
		t, err := parse.ParseTimer(req.Input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		timer = t
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds or extend is required"})
		return
	}

	var err error
	if timer.Extend {
		err = h.moderator.ExtendTimer(c.Request.Context(), id, timer.Seconds)
	} else {
		err = h.moderator.SetTimer(c.Request.Context(), id, timer.Seconds)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": h.moderator.View()})
}
