// Package dialer is the agent-side call state machine.
//
// Three signal sources feed it: the local voice device (leg events), the
// customer-leg status poll and the waiting-call queue poll. All of them are
// delivered as messages to one Machine, which decides transitions and returns
// the side effects a Session runtime then carries out.
package dialer

import (
	"time"

	"dialer-platform/internal/inbound"
	"dialer-platform/internal/telephony"
)

const (
	CustomerPollInterval = 2 * time.Second
	QueuePollInterval    = 3 * time.Second
	DurationTickInterval = time.Second
	EndReasonTTL         = 4 * time.Second
	// StrayLegTTL bounds how long an abandoned dial's agent leg is waited for.
	StrayLegTTL = 10 * time.Second

	msgDeviceNotReady = "Device not ready. Please wait."
	msgMicDenied      = "Microphone permission denied. Enable it in browser settings."
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseDialing   Phase = "dialing"
	PhaseRinging   Phase = "ringing"
	PhaseConnected Phase = "connected"
)

type Direction string

const (
	DirectionNone     Direction = ""
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type MicPermission string

const (
	MicUnknown MicPermission = "unknown"
	MicGranted MicPermission = "granted"
	MicDenied  MicPermission = "denied"
)

// CallState is the one call the agent can be on.
type CallState struct {
	Phase     Phase     `json:"state"`
	Direction Direction `json:"direction,omitempty"`
	// Duration counts seconds spent connected.
	Duration int `json:"duration"`
	// CallSID is the customer leg of an outbound call.
	CallSID string `json:"callSid,omitempty"`
}

// Snapshot is the observable session state.
type Snapshot struct {
	Call        CallState            `json:"callStatus"`
	Available   bool                 `json:"available"`
	DeviceReady bool                 `json:"deviceReady"`
	Mic         MicPermission        `json:"micPermission"`
	MicEnabled  bool                 `json:"micEnabled"`
	Offer       *inbound.WaitingCall `json:"pendingInbound,omitempty"`
	EndReason   string               `json:"callEndReason,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// LegID identifies a local call leg handed to the machine by the device.
type LegID uint64

type LegEventKind string

const (
	LegIncoming   LegEventKind = "incoming"
	LegAccepted   LegEventKind = "accept"
	LegDisconnect LegEventKind = "disconnect"
	LegCancel     LegEventKind = "cancel"
	LegError      LegEventKind = "error"
)

// endReasons maps terminal customer-leg statuses to what the agent sees.
var endReasons = map[telephony.CallStatus]string{
	telephony.StatusBusy:      "Line busy",
	telephony.StatusNoAnswer:  "No answer",
	telephony.StatusCanceled:  "Call cancelled",
	telephony.StatusFailed:    "Call failed",
	telephony.StatusCompleted: "Call ended",
}

// Msg is anything the machine reacts to.
type Msg interface{ isMsg() }

type (
	// DeviceRegistered: the voice device is ready to place and receive legs.
	DeviceRegistered struct{}
	// DeviceUnregistered tears the session down.
	DeviceUnregistered struct{}
	DeviceFailed       struct{ Err error }

	MicPermissionResolved struct{ Granted bool }

	SetAvailability struct{ Online bool }

	DialRequested struct {
		To     string
		LeadID string
	}
	DialCompleted struct {
		Attempt         uint64
		CustomerCallSID string
		AgentCallSID    string
		Err             error
	}

	LocalLegEvent struct {
		Leg  LegID
		Kind LegEventKind
		Err  error
	}

	CustomerStatusPolled struct {
		CallSID string
		Status  telephony.CallStatus
		Err     error
	}

	QueueOfferSeen struct{ Calls []inbound.WaitingCall }
	AcceptOffer    struct{}
	DismissOffer   struct{}
	ClaimCompleted struct {
		CallSID string
		Err     error
	}

	EndCallRequested struct{}
	ToggleMic        struct{}

	DurationTick     struct{ Gen uint64 }
	EndReasonExpired struct{ Seq uint64 }
	StrayLegExpired  struct{ Seq uint64 }
	ClearError       struct{}
)

func (DeviceRegistered) isMsg()      {}
func (DeviceUnregistered) isMsg()    {}
func (DeviceFailed) isMsg()          {}
func (MicPermissionResolved) isMsg() {}
func (SetAvailability) isMsg()       {}
func (DialRequested) isMsg()         {}
func (DialCompleted) isMsg()         {}
func (LocalLegEvent) isMsg()         {}
func (CustomerStatusPolled) isMsg()  {}
func (QueueOfferSeen) isMsg()        {}
func (AcceptOffer) isMsg()           {}
func (DismissOffer) isMsg()          {}
func (ClaimCompleted) isMsg()        {}
func (EndCallRequested) isMsg()      {}
func (ToggleMic) isMsg()             {}
func (DurationTick) isMsg()          {}
func (EndReasonExpired) isMsg()      {}
func (StrayLegExpired) isMsg()       {}
func (ClearError) isMsg()            {}

// Effect is work the runtime performs on the machine's behalf.
type Effect interface{ isEffect() }

type (
	PublishAvailability struct{ Online bool }

	StartQueuePoll struct{}
	StopQueuePoll  struct{}

	Dial struct {
		Attempt uint64
		To      string
		LeadID  string
	}
	// EndCustomerLeg hangs up a customer leg that never bridged.
	EndCustomerLeg struct{ CallSID string }
	// EndAgentLeg hangs up the agent leg of an abandoned dial at the provider.
	EndAgentLeg struct{ CallSID string }

	StartCustomerPoll struct{ CallSID string }
	StopCustomerPoll  struct{}

	StartDurationTimer struct{ Gen uint64 }
	StopDurationTimer  struct{}

	AcceptLeg     struct{ Leg LegID }
	RejectLeg     struct{ Leg LegID }
	DisconnectLeg struct{ Leg LegID }
	MuteLeg       struct {
		Leg   LegID
		Muted bool
	}

	Claim struct{ CallSID string }

	ScheduleEndReasonClear struct {
		Seq   uint64
		After time.Duration
	}
	ScheduleStrayLegExpiry struct {
		Seq   uint64
		After time.Duration
	}
)

func (PublishAvailability) isEffect()    {}
func (StartQueuePoll) isEffect()         {}
func (StopQueuePoll) isEffect()          {}
func (Dial) isEffect()                   {}
func (EndCustomerLeg) isEffect()         {}
func (EndAgentLeg) isEffect()            {}
func (StartCustomerPoll) isEffect()      {}
func (StopCustomerPoll) isEffect()       {}
func (StartDurationTimer) isEffect()     {}
func (StopDurationTimer) isEffect()      {}
func (AcceptLeg) isEffect()              {}
func (RejectLeg) isEffect()              {}
func (DisconnectLeg) isEffect()          {}
func (MuteLeg) isEffect()                {}
func (Claim) isEffect()                  {}
func (ScheduleEndReasonClear) isEffect() {}
func (ScheduleStrayLegExpiry) isEffect() {}
