package inbound

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks which agent identities are reachable for inbound offers.
// Membership is advisory: it gates queue polling, not claiming.
// Entries have no expiry; an agent stays listed until it goes offline explicitly.
type Registry struct {
	mu     sync.Mutex
	agents map[string]time.Time
	now    func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{agents: make(map[string]time.Time), now: now}
}

func (r *Registry) SetAvailable(identity string) {
	if identity == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[identity] = r.now()
}

func (r *Registry) SetUnavailable(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, identity)
}

func (r *Registry) IsAvailable(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[identity]
	return ok
}

// ListAvailable returns online identities in lexical order.
func (r *Registry) ListAvailable() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

// LastSeen returns when identity last went online.
func (r *Registry) LastSeen(identity string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.agents[identity]
	return t, ok
}
