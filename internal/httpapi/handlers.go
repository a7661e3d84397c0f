package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/bridge"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/inbound"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Queue       *inbound.Queue
	Agents      *inbound.Registry
	Router      telephony.InboundRouter
	Bridge      *bridge.Orchestrator
	Provider    telephony.CallControl
	VoiceTokens *telephony.VoiceTokenIssuer
	Leads       *leads.Service
	Calls       *calls.Service
	Audit       *audit.Service
	Metrics     *metrics.Metrics
	DB          *sql.DB

	// PublicURL is the base the provider calls back on.
	PublicURL string
	// PhoneNumber is the account number used as caller ID and configured by setup.
	PhoneNumber string

	Now func() time.Time
}

const msgAlreadyClaimed = "Call already answered by another agent."

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Health reports DB reachability and the active telephony provider.
func (h Handlers) Health(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if h.Provider != nil {
		out["provider"] = h.Provider.Name()
	}
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			out["status"] = "degraded"
			out["db"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, out)
			return
		}
		out["db"] = "ok"
	}
	c.JSON(http.StatusOK, out)
}

// subject returns the authenticated caller or aborts with 401.
func subject(c *gin.Context) (auth.Subject, bool) {
	s, err := auth.SubjectFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return auth.Subject{}, false
	}
	return s, true
}

// respondError maps domain errors to status codes. Unknown errors are 500s.
func respondError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "Internal server error"
	var provider *telephony.APIError
	switch {
	case errors.Is(err, inbound.ErrAlreadyClaimed):
		status, msg = http.StatusConflict, msgAlreadyClaimed
	case errors.Is(err, bridge.ErrDialInProgress):
		status, msg = http.StatusConflict, "A call is already being placed."
	case errors.Is(err, bridge.ErrInvalidArgument),
		errors.Is(err, leads.ErrInvalidArgument),
		errors.Is(err, calls.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, leads.ErrForbidden):
		status, msg = http.StatusForbidden, "You can only update your own leads"
	case errors.Is(err, leads.ErrNotFound):
		status, msg = http.StatusNotFound, "Lead not found"
	case errors.Is(err, telephony.ErrNumberNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, bridge.ErrAgentLegFailed), errors.As(err, &provider):
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func unavailable(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " not configured"})
}
