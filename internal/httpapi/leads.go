package httpapi

import (
	"net/http"

	"dialer-platform/internal/leads"

	"github.com/gin-gonic/gin"
)

// ListLeads returns every lead for supervisors and the caller's own leads for agents.
func (h Handlers) ListLeads(c *gin.Context) {
	if h.Leads == nil {
		unavailable(c, "leads")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	out, err := h.Leads.List(c.Request.Context(), s, leads.Status(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

func (h Handlers) GetLead(c *gin.Context) {
	if h.Leads == nil {
		unavailable(c, "leads")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	l, err := h.Leads.Get(c.Request.Context(), s, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": l})
}

// UpdateLead records a disposition. lastCallDate is stamped on every update.
func (h Handlers) UpdateLead(c *gin.Context) {
	if h.Leads == nil {
		unavailable(c, "leads")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	var req leads.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	l, err := h.Leads.Update(c.Request.Context(), s, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Lead updated successfully", "lead": l})
}
