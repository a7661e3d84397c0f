package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/inbound"
	"dialer-platform/internal/telephony"
)

var fixedNow = time.UnixMilli(1700000000000)

func newTestOrchestrator() (*Orchestrator, *telephony.Simulator, *inbound.Queue) {
	sim := telephony.NewSimulator()
	q := inbound.NewQueue()
	o := &Orchestrator{
		Calls:     sim,
		Queue:     q,
		Guard:     NewMemoryGuard(),
		CallerID:  "+15550000000",
		PublicURL: "https://dialer.example.com",
		Now:       func() time.Time { return fixedNow },
	}
	return o, sim, q
}

func TestDialOutbound_PlacesCustomerThenAgentLeg(t *testing.T) {
	o, sim, _ := newTestOrchestrator()

	call, err := o.DialOutbound(context.Background(), "agent@example.com", "+15551234567")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if call.ConferenceName != "room-1700000000000" {
		t.Fatalf("unexpected room %q", call.ConferenceName)
	}
	if call.CustomerCallSID == "" || call.AgentCallSID == "" || call.CustomerCallSID == call.AgentCallSID {
		t.Fatalf("unexpected sids %+v", call)
	}

	created := sim.Created()
	if len(created) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(created))
	}
	customer, agent := created[0], created[1]
	if customer.To != "+15551234567" || customer.From != "+15550000000" {
		t.Fatalf("unexpected customer leg %+v", customer)
	}
	if !strings.Contains(customer.TwiML, `startConferenceOnEnter="false"`) || !strings.Contains(customer.TwiML, `endConferenceOnExit="true"`) {
		t.Fatalf("unexpected customer twiml %s", customer.TwiML)
	}
	if customer.StatusCallback != "https://dialer.example.com/webhooks/twilio/call-status" {
		t.Fatalf("unexpected status callback %q", customer.StatusCallback)
	}
	if agent.To != "client:agent@example.com" {
		t.Fatalf("unexpected agent target %q", agent.To)
	}
	if !strings.Contains(agent.TwiML, `startConferenceOnEnter="true"`) || !strings.Contains(agent.TwiML, ">room-1700000000000</Conference>") {
		t.Fatalf("unexpected agent twiml %s", agent.TwiML)
	}
}

func TestDialOutbound_RoomsAreUniqueWithinOneMillisecond(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	a, err := o.DialOutbound(context.Background(), "a@example.com", "+15551234567")
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	b, err := o.DialOutbound(context.Background(), "b@example.com", "+15551234568")
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	if a.ConferenceName == b.ConferenceName {
		t.Fatalf("expected distinct rooms, both %q", a.ConferenceName)
	}
	if b.ConferenceName != "room-1700000000001" {
		t.Fatalf("unexpected second room %q", b.ConferenceName)
	}
}

func TestDialOutbound_AgentLegFailureEndsCustomerLeg(t *testing.T) {
	o, sim, _ := newTestOrchestrator()
	sim.FailCreateTo("client:agent@example.com", errors.New("client offline"))

	_, err := o.DialOutbound(context.Background(), "agent@example.com", "+15551234567")
	if !errors.Is(err, ErrAgentLegFailed) {
		t.Fatalf("expected ErrAgentLegFailed, got %v", err)
	}

	created := sim.Created()
	if len(created) != 1 {
		t.Fatalf("expected only the customer leg, got %d", len(created))
	}
	if ended := sim.Ended(); len(ended) != 1 {
		t.Fatalf("expected customer leg to be ended, got %v", ended)
	}
}

func TestDialOutbound_CustomerLegFailure(t *testing.T) {
	o, sim, _ := newTestOrchestrator()
	sim.FailNextCreate(errors.New("invalid number"))

	if _, err := o.DialOutbound(context.Background(), "agent@example.com", "+1"); err == nil || errors.Is(err, ErrAgentLegFailed) {
		t.Fatalf("expected customer leg error, got %v", err)
	}
	if len(sim.Created()) != 0 {
		t.Fatalf("expected no agent leg after customer failure")
	}
}

func TestDialOutbound_GuardRejectsConcurrentDial(t *testing.T) {
	o, sim, _ := newTestOrchestrator()
	ctx := context.Background()

	if ok, _ := o.Guard.Acquire(ctx, "agent@example.com"); !ok {
		t.Fatalf("expected guard acquire")
	}
	if _, err := o.DialOutbound(ctx, "agent@example.com", "+15551234567"); !errors.Is(err, ErrDialInProgress) {
		t.Fatalf("expected ErrDialInProgress, got %v", err)
	}
	if len(sim.Created()) != 0 {
		t.Fatalf("expected no legs while guarded")
	}

	_ = o.Guard.Release(ctx, "agent@example.com")
	if _, err := o.DialOutbound(ctx, "agent@example.com", "+15551234567"); err != nil {
		t.Fatalf("expected dial after release, got %v", err)
	}
	// The guard is released once the dial returns.
	if _, err := o.DialOutbound(ctx, "agent@example.com", "+15551234567"); err != nil {
		t.Fatalf("expected sequential dial to succeed, got %v", err)
	}
}

func TestDialOutbound_RequiresDestination(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	if _, err := o.DialOutbound(context.Background(), "agent@example.com", " "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAcceptInbound_FirstAgentWins(t *testing.T) {
	o, sim, q := newTestOrchestrator()
	repo := audit.NewMemoryRepo()
	o.Audit = audit.NewService(repo)
	q.Enqueue("CA1", "+15551234567")

	wc, err := o.AcceptInbound(context.Background(), "a@example.com", "CA1")
	if err != nil {
		t.Fatalf("expected claim to win, got %v", err)
	}
	if wc.ConferenceName != "inbound-CA1" {
		t.Fatalf("unexpected conference %q", wc.ConferenceName)
	}

	created := sim.Created()
	if len(created) != 1 || created[0].To != "client:a@example.com" {
		t.Fatalf("unexpected legs %+v", created)
	}
	if !strings.Contains(created[0].TwiML, ">inbound-CA1</Conference>") || !strings.Contains(created[0].TwiML, `startConferenceOnEnter="true"`) {
		t.Fatalf("unexpected agent twiml %s", created[0].TwiML)
	}

	if _, err := o.AcceptInbound(context.Background(), "b@example.com", "CA1"); !errors.Is(err, inbound.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if len(sim.Created()) != 1 {
		t.Fatalf("losing agent must not be dialed")
	}

	evs := repo.ForCall("CA1")
	if len(evs) != 1 || evs[0].Type != audit.EventTypeCallClaimed {
		t.Fatalf("expected one claimed event, got %+v", evs)
	}
}

func TestAcceptInbound_AgentLegFailureReleasesCall(t *testing.T) {
	o, sim, q := newTestOrchestrator()
	repo := audit.NewMemoryRepo()
	o.Audit = audit.NewService(repo)
	q.Enqueue("CA1", "+15551234567")
	sim.FailNextCreate(errors.New("provider down"))

	_, err := o.AcceptInbound(context.Background(), "a@example.com", "CA1")
	if !errors.Is(err, ErrAgentLegFailed) {
		t.Fatalf("expected ErrAgentLegFailed, got %v", err)
	}
	if q.Len() != 0 || len(q.Waiting()) != 0 {
		t.Fatalf("expected call dequeued after failed dial")
	}

	evs := repo.ForCall("CA1")
	if len(evs) != 1 || evs[0].Type != audit.EventTypeClaimReleased {
		t.Fatalf("expected claim_released event, got %+v", evs)
	}
}

func TestCustomerStatus(t *testing.T) {
	o, sim, _ := newTestOrchestrator()
	ctx := context.Background()

	st, err := o.CustomerStatus(ctx, "CAgone")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if st.Status != telephony.StatusCompleted || st.Duration != 0 {
		t.Fatalf("expected completed/0 for unknown leg, got %+v", st)
	}

	call, err := o.DialOutbound(ctx, "agent@example.com", "+15551234567")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	sim.Script(call.CustomerCallSID, telephony.StatusRinging)
	st, err = o.CustomerStatus(ctx, call.CustomerCallSID)
	if err != nil || st.Status != telephony.StatusRinging {
		t.Fatalf("expected ringing, got %+v %v", st, err)
	}
}

func TestEndCall(t *testing.T) {
	o, sim, _ := newTestOrchestrator()
	ctx := context.Background()

	if err := o.EndCall(ctx, "CAgone"); err != nil {
		t.Fatalf("expected unknown leg to count as ended, got %v", err)
	}
	call, _ := o.DialOutbound(ctx, "agent@example.com", "+15551234567")
	if err := o.EndCall(ctx, call.CustomerCallSID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ended := sim.Ended(); len(ended) != 1 || ended[0] != call.CustomerCallSID {
		t.Fatalf("unexpected ended legs %v", ended)
	}
	if err := o.EndCall(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestConferenceEnded(t *testing.T) {
	o, _, q := newTestOrchestrator()
	q.Enqueue("CA1", "+1")

	if o.ConferenceEnded("room-1700000000000") {
		t.Fatalf("outbound rooms are not tracked")
	}
	if !o.ConferenceEnded("inbound-CA1") {
		t.Fatalf("expected inbound room to be recognized")
	}
	if q.Len() != 0 {
		t.Fatalf("expected call dequeued")
	}
}
