package calls

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LogInput is what a client reports after placing a call.
type LogInput struct {
	LeadID   string `json:"leadId"`
	CallSID  string `json:"callSid"`
	Status   string `json:"status"`
	Duration int    `json:"duration"`
}

// Log creates a call-log row for agentID. Status defaults to initiated and accepts provider spellings.
func (s *Service) Log(ctx context.Context, agentID string, in LogInput) (Call, error) {
	if agentID == "" {
		return Call{}, fmt.Errorf("%w: agent is required", ErrInvalidArgument)
	}
	status := CallStatusInitiated
	if in.Status != "" {
		st, ok := FromProviderStatus(in.Status)
		if !ok {
			return Call{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, in.Status)
		}
		status = st
	}
	if in.Duration < 0 {
		return Call{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidArgument)
	}
	now := s.now().UTC()
	c := Call{
		ID:              uuid.NewString(),
		LeadID:          in.LeadID,
		AgentID:         agentID,
		ProviderCallSID: in.CallSID,
		Status:          status,
		DurationSeconds: in.Duration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Call{}, err
	}
	return c, nil
}

// ApplyProviderStatus records a status callback against the logged row for sid.
// Unknown statuses are rejected; ErrNotFound means no row was logged for sid.
func (s *Service) ApplyProviderStatus(ctx context.Context, sid, providerStatus string, durationSeconds int) (CallStatus, error) {
	if sid == "" {
		return "", fmt.Errorf("%w: call sid is required", ErrInvalidArgument)
	}
	st, ok := FromProviderStatus(providerStatus)
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, providerStatus)
	}
	if err := s.repo.UpdateByProviderSID(ctx, sid, st, durationSeconds, s.now().UTC()); err != nil {
		return st, err
	}
	return st, nil
}
