package inbound

import (
	"context"
	"errors"
	"strings"

	"dialer-platform/internal/metrics"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
)

// InboundStatusPath receives the hold conference's end event.
const InboundStatusPath = "/webhooks/twilio/inbound-status"

// Enqueuer answers the voice webhook for inbound calls: every caller is parked
// in its own hold conference and listed as waiting until an agent claims it.
type Enqueuer struct {
	Queue *Queue

	// PublicURL is the externally reachable base URL used for status callbacks.
	PublicURL string

	Metrics *metrics.Metrics
}

var _ telephony.InboundRouter = (*Enqueuer)(nil)

func (e *Enqueuer) RouteInboundCall(ctx context.Context, req telephony.InboundCallRequest) (telephony.InboundCallResult, error) {
	if e.Queue == nil {
		return telephony.InboundCallResult{}, errors.New("inbound: queue not configured")
	}
	sid := strings.TrimSpace(req.ProviderCallID)
	if sid == "" {
		return telephony.InboundCallResult{}, errors.New("inbound: call sid required")
	}

	conf := e.Queue.Enqueue(sid, req.From)
	e.Metrics.InboundEnqueued()
	logger.From(ctx).Info("inbound call waiting", "call_sid", sid, "from", req.From, "conference", conf)

	return telephony.InboundCallResult{
		Action:         telephony.InboundCallActionHold,
		Conference:     conf,
		StatusCallback: strings.TrimRight(e.PublicURL, "/") + InboundStatusPath,
	}, nil
}
