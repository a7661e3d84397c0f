package leads

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/rbac"
	"dialer-platform/pkg/logger"

	"github.com/google/uuid"
)

// Auditor records lead changes. Failures never block the update.
type Auditor interface {
	LogLeadUpdated(ctx context.Context, leadID string, changes map[string]string) error
}

// Service applies role scoping on top of a Repository.
// Supervisors see every lead; agents only see leads assigned to their user ID.
type Service struct {
	repo  Repository
	audit Auditor
	now   func() time.Time
}

func NewService(repo Repository, audit Auditor) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// UpdateInput is the caller-facing patch. LastCallDate is always stamped.
type UpdateInput struct {
	Status *Status `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// Create validates and stores a new lead. ID, timestamps and a default status are filled in.
func (s *Service) Create(ctx context.Context, l Lead) (Lead, error) {
	l.Name = strings.TrimSpace(l.Name)
	l.Phone = strings.TrimSpace(l.Phone)
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	if l.Name == "" || l.Phone == "" {
		return Lead{}, fmt.Errorf("%w: name and phone are required", ErrInvalidArgument)
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	if !l.Status.Valid() {
		return Lead{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, l.Status)
	}
	if l.Score < 0 || l.Score > 100 {
		return Lead{}, fmt.Errorf("%w: score must be between 0 and 100", ErrInvalidArgument)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if err := s.repo.Create(ctx, l); err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (s *Service) List(ctx context.Context, caller auth.Subject, status Status) ([]Lead, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	f := Filter{Status: status}
	if !rbac.IsSupervisor(caller.Role) {
		f.AssignedTo = caller.UserID
	}
	out, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Lead{}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Subject, id string) (Lead, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if !canTouch(caller, l) {
		return Lead{}, ErrForbidden
	}
	return l, nil
}

// Update changes status and notes and stamps LastCallDate.
func (s *Service) Update(ctx context.Context, caller auth.Subject, id string, in UpdateInput) (Lead, error) {
	// An empty status means "leave it".
	if in.Status != nil && *in.Status == "" {
		in.Status = nil
	}
	if in.Status != nil && !in.Status.Valid() {
		return Lead{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *in.Status)
	}
	if _, err := s.Get(ctx, caller, id); err != nil {
		return Lead{}, err
	}
	now := s.now().UTC()
	l, err := s.repo.Update(ctx, id, Patch{Status: in.Status, Notes: in.Notes, LastCallDate: &now}, now)
	if err != nil {
		return Lead{}, err
	}
	changes := map[string]string{"last_call_date": now.Format(time.RFC3339)}
	if in.Status != nil {
		changes["status"] = string(*in.Status)
	}
	if in.Notes != nil {
		changes["notes_len"] = strconv.Itoa(len(*in.Notes))
	}
	s.record(ctx, id, changes)
	return l, nil
}

// MarkDialed moves a lead to dialed after a call was placed from it.
func (s *Service) MarkDialed(ctx context.Context, caller auth.Subject, id string) (Lead, error) {
	st := StatusDialed
	return s.Update(ctx, caller, id, UpdateInput{Status: &st})
}

func (s *Service) record(ctx context.Context, id string, changes map[string]string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogLeadUpdated(ctx, id, changes); err != nil {
		logger.From(ctx).Warn("audit lead update failed", "lead_id", id, "err", err)
	}
}

func canTouch(caller auth.Subject, l Lead) bool {
	return rbac.IsSupervisor(caller.Role) || (caller.UserID != "" && l.AssignedTo == caller.UserID)
}
