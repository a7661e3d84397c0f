package telephony

import (
	"context"
	"errors"
	"time"
)

// CallControl is the provider-agnostic REST surface the bridge drives.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic.
type CallControl interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// CreateCall places one call leg that runs the given markup when answered.
	CreateCall(ctx context.Context, req CallRequest) (CallLeg, error)
	// FetchCall returns the current status of a leg. Unknown SIDs yield ErrCallNotFound.
	FetchCall(ctx context.Context, sid string) (CallLeg, error)
	// EndCall hangs a leg up. Unknown SIDs yield ErrCallNotFound.
	EndCall(ctx context.Context, sid string) error

	// ConfigureVoiceURL points an owned phone number at voiceURL and returns the number's provider id.
	ConfigureVoiceURL(ctx context.Context, phoneNumber, voiceURL string) (string, error)
}

// InboundRouter decides what happens to a ringing inbound call.
// Provider webhook handlers depend on this abstraction only.
type InboundRouter interface {
	RouteInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error)
}

var (
	// ErrCallNotFound marks a leg the provider no longer knows about.
	ErrCallNotFound = errors.New("telephony: call not found")
	// ErrNumberNotFound marks a phone number not owned by the account.
	ErrNumberNotFound = errors.New("telephony: phone number not found")
)

// CallRequest creates one outbound leg.
type CallRequest struct {
	// To is E.164 for the PSTN or client:<identity> for a browser leg.
	To   string
	From string

	// TwiML is the inline markup executed once the leg answers.
	TwiML string

	StatusCallback       string
	StatusCallbackEvents []string
}

// CallLeg is a provider call leg snapshot.
type CallLeg struct {
	SID      string     `json:"sid"`
	Status   CallStatus `json:"status"`
	Duration int        `json:"duration"`
}

// CallStatus uses the provider's dashed spelling.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusFailed     CallStatus = "failed"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusCanceled   CallStatus = "canceled"
)

// IsTerminal reports whether the leg will not progress further.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// InboundCallRequest represents an inbound call event received from a provider.
type InboundCallRequest struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	OccurredAt time.Time `json:"occurred_at"`

	// RawPayload is optional for debugging/audit; store as JSON string.
	RawPayload string `json:"raw_payload,omitempty"`
}

// InboundCallResult is the router's answer, rendered to markup at the provider boundary.
type InboundCallResult struct {
	Action InboundCallAction `json:"action"`

	// ConnectTo is used when Action == "connect".
	ConnectTo string `json:"connect_to,omitempty"`

	// Conference and StatusCallback are used when Action == "hold".
	Conference     string `json:"conference,omitempty"`
	StatusCallback string `json:"status_callback,omitempty"`
}

type InboundCallAction string

const (
	InboundCallActionReject  InboundCallAction = "reject"
	InboundCallActionConnect InboundCallAction = "connect"
	InboundCallActionHangup  InboundCallAction = "hangup"
	// InboundCallActionHold parks the caller in a conference until an agent joins.
	InboundCallActionHold InboundCallAction = "hold"
)
