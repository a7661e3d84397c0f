package httpapi

import (
	"net/http"
	"strings"

	"dialer-platform/internal/config"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VoiceToken mints the browser client's provider access token for the caller's identity.
func (h Handlers) VoiceToken(c *gin.Context) {
	if h.VoiceTokens == nil {
		unavailable(c, "voice tokens")
		return
	}
	s, ok := subject(c)
	if !ok {
		return
	}
	tok, err := h.VoiceTokens.Issue(s.Identity())
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, tok)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a refresh token for a new pair. The refresh token is the credential.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Auth == nil {
		unavailable(c, "auth")
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// SetupNumber points the account number's voice URL at the inbound webhook.
// RBAC: admin or super_admin.
func (h Handlers) SetupNumber(c *gin.Context) {
	if h.Provider == nil {
		unavailable(c, "telephony")
		return
	}
	if h.PublicURL == "" || config.IsLocalURL(h.PublicURL) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "APP_URL must be a public HTTPS URL, not localhost."})
		return
	}
	if h.PhoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "TWILIO_PHONE_NUMBER is not configured"})
		return
	}

	ctx := c.Request.Context()
	voiceURL := strings.TrimRight(h.PublicURL, "/") + VoiceWebhookPath
	numberSID, err := h.Provider.ConfigureVoiceURL(ctx, h.PhoneNumber, voiceURL)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogNumberSetup(ctx, h.PhoneNumber, voiceURL); err != nil {
			logger.FromGin(c).Warn("audit number setup failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"numberSid": numberSID,
		"message":   "Voice URL set to " + voiceURL,
	})
}
