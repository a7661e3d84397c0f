package httpapi

import (
	"errors"
	"net/http"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Provider webhook paths. Inbound status and call status paths live with the components that register them
// as callbacks (inbound.InboundStatusPath, bridge.CallStatusPath).
const (
	VoiceWebhookPath            = "/webhooks/twilio/voice"
	OutgoingWebhookPath         = "/webhooks/twilio/outgoing"
	ConferenceStatusWebhookPath = "/webhooks/twilio/conference-status"
)

const contentTypeXML = "text/xml; charset=utf-8"

// InboundVoice parks a ringing caller in its hold conference and answers with the hold markup.
// Runs behind RequireTwilioSignature.
func (h Handlers) InboundVoice(c *gin.Context) {
	if h.Router == nil {
		unavailable(c, "inbound router")
		return
	}
	form, err := telephony.ParseTwilioInboundCall(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	res, err := h.Router.RouteInboundCall(c.Request.Context(), form.ToInboundCallRequest(h.now()))
	if err != nil {
		logger.FromGin(c).Warn("inbound call not routed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.twiml(c, func() (string, error) { return telephony.RenderTwiML(res) })
}

// OutgoingVoice answers the browser client's own dials (TwiML app voice URL) with a plain PSTN dial.
func (h Handlers) OutgoingVoice(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	to := c.Request.PostFormValue("To")
	if to == "" {
		h.twiml(c, func() (string, error) {
			return telephony.RenderTwiML(telephony.InboundCallResult{Action: telephony.InboundCallActionHangup})
		})
		return
	}
	logger.FromGin(c).Info("browser dial", "to", to, "call_sid", c.Request.PostFormValue("CallSid"))
	h.twiml(c, func() (string, error) { return telephony.DialNumberTwiML(to, h.PhoneNumber) })
}

// InboundStatus drops the waiting entry once its hold conference ends.
func (h Handlers) InboundStatus(c *gin.Context) {
	form, err := telephony.ParseConferenceStatus(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	dequeued := false
	if h.Bridge != nil {
		dequeued = h.Bridge.ConferenceEnded(form.FriendlyName)
	}
	logger.FromGin(c).Info("hold conference ended",
		"conference", form.FriendlyName,
		"event", form.Event,
		"dequeued", dequeued,
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h Handlers) ConferenceStatus(c *gin.Context) {
	form, err := telephony.ParseConferenceStatus(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	logger.FromGin(c).Info("conference event",
		"event", form.Event,
		"conference", form.FriendlyName,
		"conference_sid", form.ConferenceSid,
		"call_sid", form.CallSid,
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// CallStatusWebhook updates the logged call row for a customer leg. Legs without a row are only logged.
func (h Handlers) CallStatusWebhook(c *gin.Context) {
	form, err := telephony.ParseCallStatus(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	log := logger.FromGin(c).With("call_sid", form.CallSid, "status", string(form.CallStatus))
	log.Info("call status", "duration", form.Duration, "from", form.From, "to", form.To)

	if h.Calls != nil && form.CallSid != "" {
		_, err := h.Calls.ApplyProviderStatus(c.Request.Context(), form.CallSid, string(form.CallStatus), form.Duration)
		switch {
		case err == nil:
		case errors.Is(err, calls.ErrNotFound), errors.Is(err, calls.ErrInvalidArgument):
			log.Debug("call log not updated", "err", err)
		default:
			log.Error("call log update failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// SignatureRejected is the OnReject hook for RequireTwilioSignature.
func (h Handlers) SignatureRejected(c *gin.Context) {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	h.Metrics.WebhookRejected(path)
	if h.Audit != nil {
		if err := h.Audit.LogWebhookRejected(c.Request.Context(), path); err != nil {
			logger.FromGin(c).Warn("audit webhook rejection failed", "err", err)
		}
	}
}

func (h Handlers) twiml(c *gin.Context, render func() (string, error)) {
	body, err := render()
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate voice response"})
		return
	}
	c.Data(http.StatusOK, contentTypeXML, []byte(body))
}
