package httpapi

import (
	"net/http"
	"strings"

	"dialer-platform/internal/calls"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type dialRequest struct {
	To     string `json:"to"`
	LeadID string `json:"leadId"`
}

// Dial bridges the caller's browser client to a PSTN number through a fresh conference.
// The customer leg is logged so status callbacks can update it; a lead, when given, moves to dialed.
func (h Handlers) Dial(c *gin.Context) {
	if h.Bridge == nil {
		unavailable(c, "bridge")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	var req dialRequest
	_ = c.ShouldBindJSON(&req)
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing 'to' phone number"})
		return
	}

	ctx := c.Request.Context()
	out, err := h.Bridge.DialOutbound(ctx, s.Identity(), req.To)
	if err != nil {
		respondError(c, err)
		return
	}

	log := logger.FromGin(c)
	if h.Calls != nil {
		if _, err := h.Calls.Log(ctx, s.UserID, calls.LogInput{LeadID: req.LeadID, CallSID: out.CustomerCallSID}); err != nil {
			log.Warn("call log failed", "customer_call_sid", out.CustomerCallSID, "err", err)
		}
	}
	if h.Leads != nil && req.LeadID != "" {
		if _, err := h.Leads.MarkDialed(ctx, s, req.LeadID); err != nil {
			log.Warn("lead not marked dialed", "lead_id", req.LeadID, "err", err)
		}
	}
	c.JSON(http.StatusOK, out)
}

// CallStatus reports the customer leg's provider status. Legs the provider forgot read as completed.
func (h Handlers) CallStatus(c *gin.Context) {
	if h.Bridge == nil {
		unavailable(c, "bridge")
		return
	}
	sid := strings.TrimSpace(c.Param("sid"))
	if sid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing call SID"})
		return
	}
	st, err := h.Bridge.CustomerStatus(c.Request.Context(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) EndCall(c *gin.Context) {
	if h.Bridge == nil {
		unavailable(c, "bridge")
		return
	}
	if err := h.Bridge.EndCall(c.Request.Context(), c.Param("sid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LogCall records a call the client placed outside the bridge (browser-originated dials).
func (h Handlers) LogCall(c *gin.Context) {
	if h.Calls == nil {
		unavailable(c, "call log")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	var req calls.LogInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()
	call, err := h.Calls.Log(ctx, s.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Leads != nil && req.LeadID != "" {
		if _, err := h.Leads.MarkDialed(ctx, s, req.LeadID); err != nil {
			logger.FromGin(c).Warn("lead not marked dialed", "lead_id", req.LeadID, "err", err)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"call": call})
}
