package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type availabilityRequest struct {
	Available *bool `json:"available"`
}

// GetAvailability returns the caller's own flag plus every online agent.
func (h Handlers) GetAvailability(c *gin.Context) {
	if h.Agents == nil {
		unavailable(c, "availability")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	identity := s.Identity()
	c.JSON(http.StatusOK, gin.H{
		"identity":     identity,
		"available":    h.Agents.IsAvailable(identity),
		"onlineAgents": h.Agents.ListAvailable(),
	})
}

// SetAvailability marks the caller online or offline. Agents only ever write their own entry.
func (h Handlers) SetAvailability(c *gin.Context) {
	if h.Agents == nil {
		unavailable(c, "availability")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "available (bool) required"})
		return
	}
	identity := s.Identity()
	if *req.Available {
		h.Agents.SetAvailable(identity)
	} else {
		h.Agents.SetUnavailable(identity)
	}
	h.Metrics.SetAvailableAgents(len(h.Agents.ListAvailable()))
	c.JSON(http.StatusOK, gin.H{"identity": identity, "available": *req.Available})
}
