package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"motion-live-client/internal/parse"
	"motion-live-client/internal/voter"
)

type postVoteRequest struct {
	MotionID int64  `json:"motion_id" binding:"required"`
	Choice   string `json:"choice" binding:"required"`
}

// PostVote casts a ballot on the open motion. The response carries the
// view after the attempt, including its feedback line.
func (h *Handler) PostVote(c *gin.Context) {
	var req postVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	choice, err := parse.Choice(req.Choice)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %q", voter.ErrInvalidChoice, req.Choice))
		return
	}

	if err := h.voter.SubmitVote(c.Request.Context(), req.MotionID, choice); err != nil {
		body := voterView(h.voter)
		body["error"] = err.Error()
		c.AbortWithStatusJSON(statusFor(err), body)
		return
	}

	c.JSON(http.StatusOK, voterView(h.voter))
}

// PostDismissHelp hides the help dialog for this session.
func (h *Handler) PostDismissHelp(c *gin.Context) {
	h.voter.DismissHelp()
	c.Status(http.StatusNoContent)
}
