package dialer

import (
	"errors"

	"dialer-platform/internal/inbound"
	"dialer-platform/internal/telephony"
)

// Machine is the pure transition function of an agent session.
// It is not safe for concurrent use; Session owns one per agent.
type Machine struct {
	s Snapshot

	// attempt numbers outbound dials so late results of an abandoned dial are dropped.
	attempt uint64
	// awaitingCustomer is true from dial confirmation until the customer leg answers or ends.
	awaitingCustomer bool
	// strayLeg is set when a dial is dropped before its agent leg rang in; that leg is rejected on arrival.
	strayLeg bool
	straySeq uint64
	agentSID string

	leg     LegID
	hasLeg  bool
	lastLeg LegID

	customerPolling bool
	queuePolling    bool
	timerGen        uint64
	timerRunning    bool
	endSeq          uint64
}

func NewMachine() *Machine {
	return &Machine{s: Snapshot{
		Call:       CallState{Phase: PhaseIdle},
		Mic:        MicUnknown,
		MicEnabled: true,
	}}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	out := m.s
	if m.s.Offer != nil {
		offer := *m.s.Offer
		out.Offer = &offer
	}
	return out
}

// Handle applies msg and returns the effects to run, in order.
func (m *Machine) Handle(msg Msg) []Effect {
	var fx []Effect

	switch msg := msg.(type) {
	case DeviceRegistered:
		m.s.DeviceReady = true
		if m.s.Mic != MicDenied {
			m.s.Mic = MicGranted
		}
		m.s.Available = true
		fx = append(fx, PublishAvailability{Online: true})

	case DeviceUnregistered:
		m.s.DeviceReady = false
		fx = append(fx, m.releasePendingAgentLeg()...)
		fx = append(fx, m.hangUp()...)
		fx = append(fx, m.reset()...)
		if m.s.Available {
			m.s.Available = false
			fx = append(fx, PublishAvailability{Online: false})
		}

	case DeviceFailed:
		m.s.Error = "Device error: " + errText(msg.Err)

	case MicPermissionResolved:
		if msg.Granted {
			m.s.Mic = MicGranted
		} else {
			m.s.Mic = MicDenied
			m.s.Error = msgMicDenied
		}

	case SetAvailability:
		m.s.Available = msg.Online
		fx = append(fx, PublishAvailability{Online: msg.Online})

	case DialRequested:
		fx = append(fx, m.dial(msg)...)

	case DialCompleted:
		fx = append(fx, m.dialCompleted(msg)...)

	case LocalLegEvent:
		fx = append(fx, m.legEvent(msg)...)

	case CustomerStatusPolled:
		fx = append(fx, m.customerStatus(msg)...)

	case QueueOfferSeen:
		if m.s.Call.Phase == PhaseIdle && m.s.Available && !m.strayLeg {
			m.s.Offer = nil
			if len(msg.Calls) > 0 {
				offer := msg.Calls[0]
				m.s.Offer = &offer
			}
		}

	case AcceptOffer:
		if m.s.Offer != nil {
			sid := m.s.Offer.CallSID
			m.s.Offer = nil
			fx = append(fx, Claim{CallSID: sid})
		}

	case DismissOffer:
		m.s.Offer = nil

	case ClaimCompleted:
		if msg.Err != nil {
			m.s.Error = claimErrorText(msg.Err)
		}

	case EndCallRequested:
		if m.s.Call.Phase != PhaseIdle {
			fx = append(fx, m.releasePendingAgentLeg()...)
			fx = append(fx, m.hangUp()...)
			fx = append(fx, m.reset()...)
		}

	case ToggleMic:
		if m.hasLeg {
			m.s.MicEnabled = !m.s.MicEnabled
			fx = append(fx, MuteLeg{Leg: m.leg, Muted: !m.s.MicEnabled})
		}

	case DurationTick:
		if m.s.Call.Phase == PhaseConnected && m.timerRunning && msg.Gen == m.timerGen {
			m.s.Call.Duration++
		}

	case EndReasonExpired:
		if msg.Seq == m.endSeq {
			m.s.EndReason = ""
		}

	case StrayLegExpired:
		if msg.Seq == m.straySeq {
			m.strayLeg = false
		}

	case ClearError:
		m.s.Error = ""
	}

	return append(fx, m.reconcileQueuePoll()...)
}

func (m *Machine) dial(msg DialRequested) []Effect {
	if !m.s.DeviceReady || m.s.Mic != MicGranted {
		m.s.Error = msgDeviceNotReady
		return nil
	}
	if m.s.Call.Phase != PhaseIdle {
		return nil
	}
	m.attempt++
	m.strayLeg = false
	m.s.Error = ""
	m.s.Offer = nil
	m.s.Call = CallState{Phase: PhaseDialing, Direction: DirectionOutbound}
	return []Effect{Dial{Attempt: m.attempt, To: msg.To, LeadID: msg.LeadID}}
}

func (m *Machine) dialCompleted(msg DialCompleted) []Effect {
	if msg.Attempt != m.attempt || m.s.Call.Phase != PhaseDialing {
		return m.abandonedDial(msg)
	}
	if msg.Err != nil {
		m.s.Error = dialErrorText(msg.Err)
		fx := m.hangUp()
		return append(fx, m.reset()...)
	}

	m.s.Call.Phase = PhaseRinging
	m.s.Call.CallSID = msg.CustomerCallSID
	m.agentSID = msg.AgentCallSID
	m.awaitingCustomer = true
	m.customerPolling = true
	return []Effect{StartCustomerPoll{CallSID: msg.CustomerCallSID}}
}

// abandonedDial releases both legs of a dial that ended before its result came back.
func (m *Machine) abandonedDial(msg DialCompleted) []Effect {
	latest := msg.Attempt == m.attempt
	if msg.Err != nil {
		// No legs survive a failed dial.
		if latest {
			m.strayLeg = false
		}
		return nil
	}

	var fx []Effect
	if msg.CustomerCallSID != "" {
		fx = append(fx, EndCustomerLeg{CallSID: msg.CustomerCallSID})
	}
	if latest && !m.strayLeg {
		// Its agent leg already rang in and was let go.
		return fx
	}
	if msg.AgentCallSID != "" {
		fx = append(fx, EndAgentLeg{CallSID: msg.AgentCallSID})
	}
	if latest {
		m.straySeq++
		fx = append(fx, ScheduleStrayLegExpiry{Seq: m.straySeq, After: StrayLegTTL})
	}
	return fx
}

func (m *Machine) legEvent(msg LocalLegEvent) []Effect {
	if msg.Kind == LegIncoming {
		return m.incoming(msg.Leg)
	}
	if !m.hasLeg || msg.Leg != m.leg {
		// Events from a leg we already let go of.
		return nil
	}

	switch msg.Kind {
	case LegAccepted:
		// An outbound agent leg is accepted before the customer answers; only the customer poll may connect it.
		if m.s.Call.Direction != DirectionInbound || m.s.Call.Phase != PhaseRinging {
			return nil
		}
		m.s.Call.Phase = PhaseConnected
		return m.startTimer()

	case LegDisconnect, LegCancel:
		return m.legLost()

	case LegError:
		m.s.Error = "Call error: " + errText(msg.Err)
		return m.legLost()
	}
	return nil
}

// legLost ends the call after the held leg went away. A customer still ringing is hung up.
func (m *Machine) legLost() []Effect {
	m.hasLeg = false
	var fx []Effect
	if m.awaitingCustomer && m.s.Call.CallSID != "" {
		fx = append(fx, EndCustomerLeg{CallSID: m.s.Call.CallSID})
	}
	return append(fx, m.reset()...)
}

func (m *Machine) incoming(id LegID) []Effect {
	if id <= m.lastLeg {
		return nil
	}
	m.lastLeg = id

	if m.hasLeg {
		return []Effect{RejectLeg{Leg: id}}
	}
	if m.strayLeg && m.s.Call.Phase == PhaseIdle {
		m.strayLeg = false
		return []Effect{RejectLeg{Leg: id}}
	}

	switch {
	case m.s.Call.Phase == PhaseIdle:
		m.s.Offer = nil
		m.s.Call = CallState{Phase: PhaseRinging, Direction: DirectionInbound}
	case m.s.Call.Direction == DirectionOutbound:
		// Our own outbound agent leg: keep direction and the tracked customer SID.
		// It may ring in after the customer already answered.
	default:
		return []Effect{RejectLeg{Leg: id}}
	}

	m.leg = id
	m.hasLeg = true
	m.s.MicEnabled = true
	return []Effect{AcceptLeg{Leg: id}}
}

func (m *Machine) customerStatus(msg CustomerStatusPolled) []Effect {
	if !m.awaitingCustomer || msg.CallSID == "" || msg.CallSID != m.s.Call.CallSID {
		return nil
	}
	if msg.Err != nil {
		// Transient; the next tick retries.
		return nil
	}

	if msg.Status == telephony.StatusInProgress {
		m.awaitingCustomer = false
		m.customerPolling = false
		m.s.Call.Phase = PhaseConnected
		return append([]Effect{StopCustomerPoll{}}, m.startTimer()...)
	}

	reason, terminal := endReasons[msg.Status]
	if !terminal {
		return nil
	}

	m.endSeq++
	m.s.EndReason = reason
	fx := []Effect{ScheduleEndReasonClear{Seq: m.endSeq, After: EndReasonTTL}}
	m.awaitingCustomer = false
	if m.hasLeg {
		fx = append(fx, DisconnectLeg{Leg: m.leg})
		m.hasLeg = false
	} else {
		fx = append(fx, m.releasePendingAgentLeg()...)
	}
	return append(fx, m.reset()...)
}

func (m *Machine) startTimer() []Effect {
	m.timerGen++
	m.timerRunning = true
	return []Effect{StartDurationTimer{Gen: m.timerGen}}
}

// releasePendingAgentLeg marks an outbound agent leg that has not rung in yet so it is
// rejected on arrival, and ends it at the provider once its SID is known.
func (m *Machine) releasePendingAgentLeg() []Effect {
	if m.hasLeg || m.s.Call.Direction != DirectionOutbound {
		return nil
	}
	m.strayLeg = true
	if m.s.Call.Phase == PhaseDialing {
		// abandonedDial ends it when the dial result names it.
		return nil
	}
	m.straySeq++
	var fx []Effect
	if m.agentSID != "" {
		fx = append(fx, EndAgentLeg{CallSID: m.agentSID})
	}
	return append(fx, ScheduleStrayLegExpiry{Seq: m.straySeq, After: StrayLegTTL})
}

// hangUp releases whatever the agent is holding: the local leg and the customer leg
// when it has not answered yet or no local leg is there to end the conference.
func (m *Machine) hangUp() []Effect {
	var fx []Effect
	if m.s.Call.CallSID != "" && (m.awaitingCustomer || !m.hasLeg) {
		fx = append(fx, EndCustomerLeg{CallSID: m.s.Call.CallSID})
	}
	if m.hasLeg {
		fx = append(fx, DisconnectLeg{Leg: m.leg})
		m.hasLeg = false
	}
	return fx
}

// reset is the single cleanup path back to idle. Every poll and timer stops here.
func (m *Machine) reset() []Effect {
	var fx []Effect
	if m.customerPolling {
		fx = append(fx, StopCustomerPoll{})
		m.customerPolling = false
	}
	if m.timerRunning {
		fx = append(fx, StopDurationTimer{})
		m.timerRunning = false
	}
	m.awaitingCustomer = false
	m.hasLeg = false
	m.agentSID = ""
	m.s.MicEnabled = true
	m.s.Call = CallState{Phase: PhaseIdle}
	return fx
}

// reconcileQueuePoll keeps the queue poll running exactly while the agent is idle and available.
// A pending stray leg holds it off so the leg cannot be mistaken for a claimed call.
func (m *Machine) reconcileQueuePoll() []Effect {
	want := m.s.Available && m.s.Call.Phase == PhaseIdle && !m.strayLeg
	if !want {
		m.s.Offer = nil
	}
	switch {
	case want && !m.queuePolling:
		m.queuePolling = true
		return []Effect{StartQueuePoll{}}
	case !want && m.queuePolling:
		m.queuePolling = false
		return []Effect{StopQueuePoll{}}
	}
	return nil
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func dialErrorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "Failed to initiate call"
	}
	return "Failed to start call: " + errText(err)
}

func claimErrorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "Failed to claim call"
	}
	if errors.Is(err, inbound.ErrAlreadyClaimed) {
		return "Call already answered by another agent."
	}
	return "Failed to accept: " + errText(err)
}
