package calls

import (
	"errors"
	"strings"
	"time"
)

// Call is one logged dial attempt made by an agent, optionally tied to a lead.
//
// ProviderCallSID links the row to the telephony leg so status callbacks can update it.
type Call struct {
	ID              string     `json:"id" db:"id"`
	LeadID          string     `json:"leadId,omitempty" db:"lead_id"`
	AgentID         string     `json:"agentId" db:"agent_id"`
	ProviderCallSID string     `json:"callSid,omitempty" db:"provider_call_sid"`
	Status          CallStatus `json:"status" db:"status"`

	// DurationSeconds is the billed leg duration reported by the provider.
	DurationSeconds int `json:"duration" db:"duration_seconds"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusCanceled   CallStatus = "canceled"
)

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusInitiated, CallStatusRinging, CallStatusInProgress, CallStatusCompleted,
		CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// FromProviderStatus maps a provider leg status ("in-progress", "no-answer", ...) to a log status.
// queued folds into initiated.
func FromProviderStatus(s string) (CallStatus, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), "-", "_")
	if s == "queued" {
		return CallStatusInitiated, true
	}
	cs := CallStatus(s)
	return cs, cs.Valid()
}

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)
