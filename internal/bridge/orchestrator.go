// Package bridge places the provider call legs that join an agent's browser
// client and a customer in one conference.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dialer-platform/internal/inbound"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
)

// CallStatusPath receives progress events for outbound customer legs.
const CallStatusPath = "/webhooks/twilio/call-status"

const roomPrefix = "room-"

var (
	ErrInvalidArgument = errors.New("bridge: invalid argument")
	// ErrDialInProgress is returned while the same agent already has a dial in flight.
	ErrDialInProgress = errors.New("bridge: dial already in progress")
	// ErrAgentLegFailed wraps the provider error when the agent's leg could not be placed.
	ErrAgentLegFailed = errors.New("bridge: agent leg failed")
)

var customerLegEvents = []string{"initiated", "ringing", "answered", "completed"}

// ClaimQueue is the part of the waiting-call queue the orchestrator needs.
type ClaimQueue interface {
	Claim(callSID string) (inbound.WaitingCall, error)
	Dequeue(callSID string)
}

// Auditor records claim outcomes. Failures are logged, never returned.
type Auditor interface {
	LogCallClaimed(ctx context.Context, callSID string) error
	LogClaimReleased(ctx context.Context, callSID, reason string) error
}

// OutboundCall is the result of a successful outbound dial.
type OutboundCall struct {
	ConferenceName  string `json:"conferenceRoom"`
	CustomerCallSID string `json:"customerCallSid"`
	AgentCallSID    string `json:"agentCallSid"`
}

// LegStatus is what the client polls for the customer leg.
type LegStatus struct {
	Status   telephony.CallStatus `json:"status"`
	Duration int                  `json:"duration"`
}

type Orchestrator struct {
	Calls telephony.CallControl
	Queue ClaimQueue
	Guard DialGuard
	Audit Auditor

	// CallerID is the provider number presented on every leg.
	CallerID string
	// PublicURL is the externally reachable base URL for status callbacks.
	PublicURL string

	Metrics *metrics.Metrics
	Now     func() time.Time

	mu       sync.Mutex
	lastRoom int64
}

// DialOutbound bridges agentIdentity's browser client to the PSTN number to.
// The customer leg is placed first and holds silently until the agent leg starts the conference.
func (o *Orchestrator) DialOutbound(ctx context.Context, agentIdentity, to string) (OutboundCall, error) {
	log := logger.From(ctx)
	agentIdentity = strings.TrimSpace(agentIdentity)
	to = strings.TrimSpace(to)
	if agentIdentity == "" || to == "" {
		return OutboundCall{}, fmt.Errorf("%w: agent identity and destination are required", ErrInvalidArgument)
	}

	ok, err := o.guard().Acquire(ctx, agentIdentity)
	if err != nil {
		return OutboundCall{}, fmt.Errorf("bridge: dial guard: %w", err)
	}
	if !ok {
		o.Metrics.OutboundDial("busy")
		return OutboundCall{}, ErrDialInProgress
	}
	defer func() {
		if err := o.guard().Release(context.WithoutCancel(ctx), agentIdentity); err != nil {
			log.Warn("dial guard release failed", "identity", agentIdentity, "err", err)
		}
	}()

	room := o.nextRoom()

	customerTwiML, err := telephony.ConferenceTwiML(telephony.ConferenceJoin{Name: room, StartOnEnter: false, EndOnExit: true})
	if err != nil {
		return OutboundCall{}, err
	}
	customer, err := o.Calls.CreateCall(ctx, telephony.CallRequest{
		To:                   to,
		From:                 o.CallerID,
		TwiML:                customerTwiML,
		StatusCallback:       strings.TrimRight(o.PublicURL, "/") + CallStatusPath,
		StatusCallbackEvents: customerLegEvents,
	})
	if err != nil {
		o.Metrics.OutboundDial("failed")
		log.Error("customer leg failed", "to", to, "room", room, "err", err)
		return OutboundCall{}, fmt.Errorf("bridge: customer leg: %w", err)
	}

	agent, err := o.dialAgent(ctx, agentIdentity, room)
	if err != nil {
		o.Metrics.OutboundDial("failed")
		log.Error("agent leg failed, ending customer leg", "identity", agentIdentity, "customer_call_sid", customer.SID, "err", err)
		if endErr := o.Calls.EndCall(context.WithoutCancel(ctx), customer.SID); endErr != nil && !errors.Is(endErr, telephony.ErrCallNotFound) {
			log.Warn("customer leg cleanup failed", "customer_call_sid", customer.SID, "err", endErr)
		}
		return OutboundCall{}, fmt.Errorf("%w: %w", ErrAgentLegFailed, err)
	}

	o.Metrics.OutboundDial("ok")
	log.Info("outbound call bridged", "identity", agentIdentity, "room", room,
		"customer_call_sid", customer.SID, "agent_call_sid", agent.SID)
	return OutboundCall{ConferenceName: room, CustomerCallSID: customer.SID, AgentCallSID: agent.SID}, nil
}

// AcceptInbound claims callSID for agentIdentity and rings the agent's client into the caller's hold room.
// Losing the claim yields inbound.ErrAlreadyClaimed. A failed agent leg releases the call from the queue.
func (o *Orchestrator) AcceptInbound(ctx context.Context, agentIdentity, callSID string) (inbound.WaitingCall, error) {
	log := logger.From(ctx)
	callSID = strings.TrimSpace(callSID)
	if callSID == "" || strings.TrimSpace(agentIdentity) == "" {
		return inbound.WaitingCall{}, fmt.Errorf("%w: call sid and agent identity are required", ErrInvalidArgument)
	}

	wc, err := o.Queue.Claim(callSID)
	if err != nil {
		o.Metrics.Claim("conflict")
		log.Info("claim lost", "call_sid", callSID, "identity", agentIdentity)
		return inbound.WaitingCall{}, err
	}

	if _, err := o.dialAgent(ctx, agentIdentity, wc.ConferenceName); err != nil {
		o.Queue.Dequeue(callSID)
		o.Metrics.Claim("dial_failed")
		log.Error("agent leg failed after claim", "call_sid", callSID, "identity", agentIdentity, "err", err)
		o.audit(ctx, func(a Auditor) error { return a.LogClaimReleased(ctx, callSID, err.Error()) })
		return inbound.WaitingCall{}, fmt.Errorf("%w: %w", ErrAgentLegFailed, err)
	}

	o.Metrics.Claim("won")
	o.audit(ctx, func(a Auditor) error { return a.LogCallClaimed(ctx, callSID) })
	log.Info("inbound call claimed", "call_sid", callSID, "identity", agentIdentity, "conference", wc.ConferenceName)
	return wc, nil
}

// CustomerStatus reports the customer leg's status. A leg the provider no longer knows is reported completed.
func (o *Orchestrator) CustomerStatus(ctx context.Context, callSID string) (LegStatus, error) {
	leg, err := o.Calls.FetchCall(ctx, callSID)
	if errors.Is(err, telephony.ErrCallNotFound) {
		return LegStatus{Status: telephony.StatusCompleted}, nil
	}
	if err != nil {
		return LegStatus{}, fmt.Errorf("bridge: fetch call: %w", err)
	}
	return LegStatus{Status: leg.Status, Duration: leg.Duration}, nil
}

// EndCall hangs up callSID. Already-gone legs count as ended.
func (o *Orchestrator) EndCall(ctx context.Context, callSID string) error {
	if strings.TrimSpace(callSID) == "" {
		return fmt.Errorf("%w: call sid required", ErrInvalidArgument)
	}
	err := o.Calls.EndCall(ctx, callSID)
	if err != nil && !errors.Is(err, telephony.ErrCallNotFound) {
		return fmt.Errorf("bridge: end call: %w", err)
	}
	return nil
}

// ConferenceEnded drops the waiting entry behind an inbound hold room.
// It reports whether name belonged to an inbound call.
func (o *Orchestrator) ConferenceEnded(name string) bool {
	sid, ok := inbound.CallSIDFromConference(name)
	if !ok {
		return false
	}
	o.Queue.Dequeue(sid)
	return true
}

func (o *Orchestrator) dialAgent(ctx context.Context, identity, room string) (telephony.CallLeg, error) {
	twiml, err := telephony.ConferenceTwiML(telephony.ConferenceJoin{Name: room, StartOnEnter: true, EndOnExit: true})
	if err != nil {
		return telephony.CallLeg{}, err
	}
	return o.Calls.CreateCall(ctx, telephony.CallRequest{
		To:    "client:" + identity,
		From:  o.CallerID,
		TwiML: twiml,
	})
}

// nextRoom returns room-<unix millis>, bumped past the previous room so two dials in one millisecond never share a room.
func (o *Orchestrator) nextRoom() string {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	ms := now().UnixMilli()

	o.mu.Lock()
	if ms <= o.lastRoom {
		ms = o.lastRoom + 1
	}
	o.lastRoom = ms
	o.mu.Unlock()

	return fmt.Sprintf("%s%d", roomPrefix, ms)
}

func (o *Orchestrator) guard() DialGuard {
	if o.Guard == nil {
		return noGuard{}
	}
	return o.Guard
}

func (o *Orchestrator) audit(ctx context.Context, fn func(Auditor) error) {
	if o.Audit == nil {
		return
	}
	if err := fn(o.Audit); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}
