package calls

import (
	"context"
	"sync"
	"time"
)

// Repository persists call-log rows.
type Repository interface {
	Create(ctx context.Context, c Call) error
	// UpdateByProviderSID sets status and duration on every row for sid.
	// It returns ErrNotFound when no row matches.
	UpdateByProviderSID(ctx context.Context, sid string, status CallStatus, durationSeconds int, now time.Time) error
}

type MemoryRepo struct {
	mu    sync.Mutex
	calls []Call
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Create(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return nil
}

func (r *MemoryRepo) UpdateByProviderSID(ctx context.Context, sid string, status CallStatus, durationSeconds int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for i := range r.calls {
		if r.calls[i].ProviderCallSID != sid {
			continue
		}
		r.calls[i].Status = status
		r.calls[i].DurationSeconds = durationSeconds
		r.calls[i].UpdatedAt = now
		found = true
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Calls returns a copy of the stored rows in insertion order.
func (r *MemoryRepo) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
