package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Waiting lists unclaimed, non-stale inbound calls oldest first.
func (h Handlers) Waiting(c *gin.Context) {
	if h.Queue == nil {
		unavailable(c, "queue")
		return
	}
	waiting := h.Queue.Waiting()
	h.Metrics.SetWaitingCalls(len(waiting))
	c.JSON(http.StatusOK, gin.H{"waitingCalls": waiting})
}

type claimRequest struct {
	CallSID string `json:"callSid"`
}

// Claim lets exactly one agent answer a waiting call. Losers get 409.
func (h Handlers) Claim(c *gin.Context) {
	if h.Bridge == nil {
		unavailable(c, "bridge")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	var req claimRequest
	_ = c.ShouldBindJSON(&req)
	sid := strings.TrimSpace(req.CallSID)
	if sid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing callSid"})
		return
	}

	wc, err := h.Bridge.AcceptInbound(c.Request.Context(), s.Identity(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conferenceName": wc.ConferenceName})
}
