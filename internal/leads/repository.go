package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists leads. List returns newest first.
type Repository interface {
	Create(ctx context.Context, l Lead) error
	List(ctx context.Context, f Filter) ([]Lead, error)
	Get(ctx context.Context, id string) (Lead, error)
	Update(ctx context.Context, id string, p Patch, now time.Time) (Lead, error)
}

// MemoryRepo backs tests and local runs without a database.
type MemoryRepo struct {
	mu    sync.RWMutex
	leads map[string]Lead
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{leads: make(map[string]Lead)}
}

func (r *MemoryRepo) Create(ctx context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[l.ID] = l
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lead, 0, len(r.leads))
	for _, l := range r.leads {
		if f.AssignedTo != "" && l.AssignedTo != f.AssignedTo {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id string, p Patch, now time.Time) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
	if p.LastCallDate != nil {
		t := *p.LastCallDate
		l.LastCallDate = &t
	}
	l.UpdatedAt = now
	r.leads[id] = l
	return l, nil
}
