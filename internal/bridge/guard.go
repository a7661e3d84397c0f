package bridge

import (
	"context"
	"sync"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// DialGuard serializes outbound dials per agent.
type DialGuard interface {
	// Acquire reports false when key already holds a dial.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type noGuard struct{}

func (noGuard) Acquire(context.Context, string) (bool, error) { return true, nil }
func (noGuard) Release(context.Context, string) error         { return nil }

// MemoryGuard is a process-local DialGuard.
type MemoryGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{active: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return false, nil
	}
	g.active[key] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
	return nil
}

const (
	defaultGuardTTL    = 30 * time.Second
	defaultGuardPrefix = "dialer:dial:"
)

// RedisGuard shares the dial guard across API instances using slot scripts with a single slot per agent.
// TTL frees the slot if an instance dies mid-dial.
type RedisGuard struct {
	Client redis.Scripter
	TTL    time.Duration
	Prefix string
}

func NewRedisGuard(client redis.Scripter) *RedisGuard {
	return &RedisGuard{Client: client, TTL: defaultGuardTTL, Prefix: defaultGuardPrefix}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return utils.AcquireSlot(ctx, g.Client, g.key(key), 1, g.ttl())
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return utils.ReleaseSlot(ctx, g.Client, g.key(key))
}

func (g *RedisGuard) key(k string) string {
	if g.Prefix == "" {
		return defaultGuardPrefix + k
	}
	return g.Prefix + k
}

func (g *RedisGuard) ttl() time.Duration {
	if g.TTL <= 0 {
		return defaultGuardTTL
	}
	return g.TTL
}
