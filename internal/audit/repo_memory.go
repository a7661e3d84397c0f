package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps the audit trail in process. Handler, bridge and lead tests
// read it back through the call and type filters below.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// NewBoundedMemoryRepo keeps only the most recent limit events.
func NewBoundedMemoryRepo(limit int) *MemoryRepo { return &MemoryRepo{limit: limit} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append(r.events[:0:0], r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

// Events returns a copy of the trail, oldest first.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// OfType returns the events of one category, oldest first.
func (r *MemoryRepo) OfType(t EventType) []Event {
	return r.filter(func(e Event) bool { return e.Type == t })
}

// ForCall returns every event recorded against a provider call SID.
func (r *MemoryRepo) ForCall(callSID string) []Event {
	return r.filter(func(e Event) bool { return callSID != "" && e.CallSID == callSID })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
