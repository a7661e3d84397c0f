package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dialer-platform/internal/auth"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Append stamps ID, time, actor and client IP (from ctx when not set) and stores e.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.ActorUserID == "" {
		if sub, err := auth.SubjectFrom(ctx); err == nil {
			e.ActorUserID = sub.UserID
			e.ActorRole = sub.Role
		}
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogWebhookRejected records a provider webhook that failed signature validation.
func (s *Service) LogWebhookRejected(ctx context.Context, path string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeWebhookRejected,
		Message: "webhook signature rejected",
		Metadata: metadata(map[string]string{
			"path": path,
		}),
	})
}

func (s *Service) LogCallClaimed(ctx context.Context, callSID string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeCallClaimed,
		CallSID: callSID,
		Message: "inbound call claimed",
	})
}

// LogClaimReleased records a claim dropped because the agent leg could not be placed.
func (s *Service) LogClaimReleased(ctx context.Context, callSID, reason string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeClaimReleased,
		CallSID:  callSID,
		Message:  "claim released",
		Metadata: metadata(map[string]string{"reason": reason}),
	})
}

func (s *Service) LogLeadUpdated(ctx context.Context, leadID string, changes map[string]string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeLeadUpdated,
		LeadID:   leadID,
		Message:  "lead updated",
		Metadata: metadata(changes),
	})
}

func (s *Service) LogNumberSetup(ctx context.Context, phoneNumber, voiceURL string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeNumberSetup,
		Message: "voice url configured",
		Metadata: metadata(map[string]string{
			"phone_number": phoneNumber,
			"voice_url":    voiceURL,
		}),
	})
}

func metadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
