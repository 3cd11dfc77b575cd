package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"motion-live-client/internal/transport"
)

// GetStatus reports which session this process serves and its link state.
func (h *Handler) GetStatus(c *gin.Context) {
	var conn transport.State
	switch {
	case h.moderator != nil:
		conn = h.moderator.View().Connection
	case h.voter != nil:
		conn = h.voter.Snapshot().Connection
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.sessionID,
		"role":       h.Role(),
		"connection": conn,
	})
}

// GetView returns the attached session's view, computed now.
func (h *Handler) GetView(c *gin.Context) {
	switch {
	case h.moderator != nil:
		c.JSON(http.StatusOK, gin.H{"role": "moderator", "view": h.moderator.View()})
	case h.voter != nil:
		c.JSON(http.StatusOK, voterView(h.voter))
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no session attached"})
	}
}

func voterView(v VoterSession) gin.H {
	now := v.Now()
	snap := v.Snapshot()
	return gin.H{
		"role":           "voter",
		"view":           snap,
		"countdown":      snap.Countdown(now),
		"voting_enabled": snap.VotingEnabled(now),
	}
}
