package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block call flows on audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP of the request that caused the event.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CallSID string `json:"call_sid,omitempty" db:"call_sid"`
	LeadID  string `json:"lead_id,omitempty" db:"lead_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeWebhookRejected EventType = "webhook_rejected"
	EventTypeCallClaimed     EventType = "call_claimed"
	EventTypeClaimReleased   EventType = "claim_released"
	EventTypeLeadUpdated     EventType = "lead_updated"
	EventTypeNumberSetup     EventType = "number_setup"
)
