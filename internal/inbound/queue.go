// Package inbound holds the process-local waiting-call queue, its claim set,
// and the agent availability registry.
//
// State lives in one process. Running more than one API instance needs a shared
// store with an atomic conditional write behind the same method set.
package inbound

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	conferencePrefix = "inbound-"

	// DefaultStaleAfter bounds how long an unclaimed call whose end callback never arrived stays visible.
	DefaultStaleAfter = 10 * time.Minute

	unknownCaller = "Unknown"
)

// ErrAlreadyClaimed is returned when the call was claimed by someone else or is no longer waiting.
var ErrAlreadyClaimed = errors.New("inbound: call already answered by another agent")

// WaitingCall is an inbound call parked in its hold conference.
type WaitingCall struct {
	CallSID        string    `json:"callSid"`
	CallerNumber   string    `json:"callerNumber"`
	ConferenceName string    `json:"conferenceName"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// ConferenceName is the hold room for callSID. Agent and caller legs meet there without a lookup table.
func ConferenceName(callSID string) string {
	return conferencePrefix + callSID
}

// CallSIDFromConference reverses ConferenceName. ok is false for non-inbound rooms.
func CallSIDFromConference(name string) (string, bool) {
	if !strings.HasPrefix(name, conferencePrefix) {
		return "", false
	}
	sid := strings.TrimPrefix(name, conferencePrefix)
	return sid, sid != ""
}

// Queue is the waiting-call queue plus its claim set.
// A callSID enters the claim set at most once; only Dequeue or the stale purge removes it.
type Queue struct {
	mu      sync.Mutex
	calls   map[string]WaitingCall
	order   []string
	claimed map[string]struct{}

	staleAfter time.Duration
	now        func() time.Time
}

type QueueOption func(*Queue)

// WithStaleAfter overrides DefaultStaleAfter.
func WithStaleAfter(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.staleAfter = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		calls:      make(map[string]WaitingCall),
		claimed:    make(map[string]struct{}),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue records an inbound call and returns its conference name.
// Re-enqueueing the same SID overwrites the entry and keeps its queue position.
func (q *Queue) Enqueue(callSID, callerNumber string) string {
	if strings.TrimSpace(callerNumber) == "" {
		callerNumber = unknownCaller
	}
	wc := WaitingCall{
		CallSID:        callSID,
		CallerNumber:   callerNumber,
		ConferenceName: ConferenceName(callSID),
		ReceivedAt:     q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.calls[callSID]; !exists {
		q.order = append(q.order, callSID)
	}
	q.calls[callSID] = wc
	return wc.ConferenceName
}

// Waiting purges stale entries, then returns unclaimed calls oldest first.
func (q *Queue) Waiting() []WaitingCall {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked()
	out := make([]WaitingCall, 0, len(q.order))
	for _, sid := range q.order {
		if _, taken := q.claimed[sid]; taken {
			continue
		}
		out = append(out, q.calls[sid])
	}
	return out
}

// Claim atomically marks callSID as answered.
// It fails with ErrAlreadyClaimed when the SID is already claimed or is not waiting.
func (q *Queue) Claim(callSID string) (WaitingCall, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wc, ok := q.calls[callSID]
	if !ok {
		return WaitingCall{}, ErrAlreadyClaimed
	}
	if _, taken := q.claimed[callSID]; taken {
		return WaitingCall{}, ErrAlreadyClaimed
	}
	q.claimed[callSID] = struct{}{}
	return wc, nil
}

// Dequeue drops callSID from the queue and the claim set. Absent SIDs are ignored.
func (q *Queue) Dequeue(callSID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(callSID)
}

// Len is the number of stored entries, claimed or not, before any purge.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func (q *Queue) purgeLocked() {
	cutoff := q.now().Add(-q.staleAfter)
	var stale []string
	for _, sid := range q.order {
		if q.calls[sid].ReceivedAt.Before(cutoff) {
			stale = append(stale, sid)
		}
	}
	for _, sid := range stale {
		q.removeLocked(sid)
	}
}

func (q *Queue) removeLocked(callSID string) {
	if _, ok := q.calls[callSID]; !ok {
		delete(q.claimed, callSID)
		return
	}
	delete(q.calls, callSID)
	delete(q.claimed, callSID)
	for i, sid := range q.order {
		if sid == callSID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
