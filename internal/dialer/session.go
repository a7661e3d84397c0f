package dialer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/bridge"
	"dialer-platform/internal/inbound"
)

// Backend is the core HTTP API as seen from an agent session.
type Backend interface {
	SetAvailability(ctx context.Context, online bool) error
	Waiting(ctx context.Context) ([]inbound.WaitingCall, error)
	Claim(ctx context.Context, callSID string) error
	Dial(ctx context.Context, to, leadID string) (bridge.OutboundCall, error)
	CustomerStatus(ctx context.Context, callSID string) (bridge.LegStatus, error)
	EndCall(ctx context.Context, callSID string) error
}

// Leg is a local call leg handle from the voice device.
type Leg interface {
	Accept() error
	Reject() error
	Disconnect() error
	Mute(muted bool) error
}

var ErrSessionClosed = errors.New("dialer: session closed")

const publishTimeout = 5 * time.Second

type snapshotReq struct{ reply chan Snapshot }

// Session runs one Machine on a single goroutine and carries out its effects.
// Device callbacks, poll results and user actions all arrive through Send.
type Session struct {
	backend Backend
	clock   Clock
	log     *slog.Logger

	// OnChange, if set, is called on the session goroutine after every message.
	OnChange func(Snapshot)

	inbox    chan any
	done     chan struct{}
	closeMu  sync.Once
	legMu    sync.Mutex
	nextLeg  LegID
	pending  map[LegID]Leg
	inflight sync.WaitGroup

	// Owned by the run goroutine.
	machine      *Machine
	legs         map[LegID]Leg
	runCtx       context.Context
	customerStop context.CancelFunc
	queueStop    context.CancelFunc
	timerStop    context.CancelFunc
	endTimer     Timer
	strayTimer   Timer
}

func NewSession(backend Backend, clock Clock, log *slog.Logger) *Session {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		backend: backend,
		clock:   clock,
		log:     log,
		inbox:   make(chan any, 64),
		done:    make(chan struct{}),
		pending: make(map[LegID]Leg),
		machine: NewMachine(),
		legs:    make(map[LegID]Leg),
	}
}

// Run processes messages until ctx is done. On exit it tears the session down:
// the agent goes offline, every poll and timer stops and held legs are disconnected.
func (s *Session) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer func() {
		s.closeMu.Do(func() { close(s.done) })
		s.inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			s.apply(DeviceUnregistered{})
			s.stopAll()
			return ctx.Err()
		case in := <-s.inbox:
			switch v := in.(type) {
			case snapshotReq:
				v.reply <- s.machine.Snapshot()
			case Msg:
				s.apply(v)
			}
		}
	}
}

// Send delivers msg to the session. It returns ErrSessionClosed after Run exits.
func (s *Session) Send(msg Msg) error {
	return s.post(msg)
}

// Snapshot asks the session goroutine for the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotReq{reply: make(chan Snapshot, 1)}
	if err := s.postCtx(ctx, req); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	}
}

// Incoming hands a new local leg to the session and returns the id its later events must carry.
func (s *Session) Incoming(leg Leg) (LegID, error) {
	s.legMu.Lock()
	s.nextLeg++
	id := s.nextLeg
	s.pending[id] = leg
	s.legMu.Unlock()

	return id, s.post(LocalLegEvent{Leg: id, Kind: LegIncoming})
}

// LegEvent reports a device callback for leg id.
func (s *Session) LegEvent(id LegID, kind LegEventKind, err error) error {
	return s.post(LocalLegEvent{Leg: id, Kind: kind, Err: err})
}

func (s *Session) Dial(to, leadID string) error { return s.post(DialRequested{To: to, LeadID: leadID}) }
func (s *Session) AcceptOffer() error           { return s.post(AcceptOffer{}) }
func (s *Session) DismissOffer() error          { return s.post(DismissOffer{}) }
func (s *Session) EndCall() error               { return s.post(EndCallRequested{}) }
func (s *Session) ToggleMic() error             { return s.post(ToggleMic{}) }
func (s *Session) ClearError() error            { return s.post(ClearError{}) }

func (s *Session) SetAvailable(online bool) error {
	return s.post(SetAvailability{Online: online})
}

func (s *Session) post(v any) error {
	return s.postCtx(context.Background(), v)
}

func (s *Session) postCtx(ctx context.Context, v any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- v:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) apply(msg Msg) {
	if ev, ok := msg.(LocalLegEvent); ok && ev.Kind == LegIncoming {
		s.adoptLeg(ev.Leg)
	}
	for _, fx := range s.machine.Handle(msg) {
		s.execute(fx)
	}
	if ev, ok := msg.(LocalLegEvent); ok {
		switch ev.Kind {
		case LegDisconnect, LegCancel, LegError:
			delete(s.legs, ev.Leg)
		}
	}
	if s.OnChange != nil {
		s.OnChange(s.machine.Snapshot())
	}
}

func (s *Session) adoptLeg(id LegID) {
	s.legMu.Lock()
	leg, ok := s.pending[id]
	delete(s.pending, id)
	s.legMu.Unlock()
	if ok {
		s.legs[id] = leg
	}
}

func (s *Session) execute(fx Effect) {
	switch fx := fx.(type) {
	case PublishAvailability:
		s.spawn(func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(s.runCtx), publishTimeout)
			defer cancel()
			if err := s.backend.SetAvailability(ctx, fx.Online); err != nil {
				s.log.Warn("availability publish failed", "online", fx.Online, "err", err)
			}
		})

	case StartQueuePoll:
		s.stop(&s.queueStop)
		s.queueStop = s.loop(QueuePollInterval, func(ctx context.Context) {
			calls, err := s.backend.Waiting(ctx)
			if err != nil {
				s.log.Debug("queue poll failed", "err", err)
				return
			}
			_ = s.post(QueueOfferSeen{Calls: calls})
		})
	case StopQueuePoll:
		s.stop(&s.queueStop)

	case Dial:
		s.spawn(func() {
			res, err := s.backend.Dial(s.runCtx, fx.To, fx.LeadID)
			_ = s.post(DialCompleted{
				Attempt:         fx.Attempt,
				CustomerCallSID: res.CustomerCallSID,
				AgentCallSID:    res.AgentCallSID,
				Err:             err,
			})
		})
	case EndCustomerLeg:
		s.endRemote(fx.CallSID, "customer leg hangup failed")
	case EndAgentLeg:
		s.endRemote(fx.CallSID, "agent leg hangup failed")

	case StartCustomerPoll:
		s.stop(&s.customerStop)
		sid := fx.CallSID
		s.customerStop = s.loop(CustomerPollInterval, func(ctx context.Context) {
			st, err := s.backend.CustomerStatus(ctx, sid)
			if ctx.Err() != nil {
				return
			}
			_ = s.post(CustomerStatusPolled{CallSID: sid, Status: st.Status, Err: err})
		})
	case StopCustomerPoll:
		s.stop(&s.customerStop)

	case StartDurationTimer:
		s.stop(&s.timerStop)
		gen := fx.Gen
		s.timerStop = s.ticker(DurationTickInterval, func() {
			_ = s.post(DurationTick{Gen: gen})
		})
	case StopDurationTimer:
		s.stop(&s.timerStop)

	case AcceptLeg:
		s.legCall(fx.Leg, false, Leg.Accept)
	case RejectLeg:
		s.legCall(fx.Leg, true, Leg.Reject)
	case DisconnectLeg:
		s.legCall(fx.Leg, true, Leg.Disconnect)
	case MuteLeg:
		muted := fx.Muted
		s.legCall(fx.Leg, false, func(l Leg) error { return l.Mute(muted) })

	case Claim:
		s.spawn(func() {
			err := s.backend.Claim(s.runCtx, fx.CallSID)
			_ = s.post(ClaimCompleted{CallSID: fx.CallSID, Err: err})
		})

	case ScheduleEndReasonClear:
		if s.endTimer != nil {
			s.endTimer.Stop()
		}
		seq := fx.Seq
		s.endTimer = s.clock.AfterFunc(fx.After, func() {
			_ = s.post(EndReasonExpired{Seq: seq})
		})
	case ScheduleStrayLegExpiry:
		if s.strayTimer != nil {
			s.strayTimer.Stop()
		}
		seq := fx.Seq
		s.strayTimer = s.clock.AfterFunc(fx.After, func() {
			_ = s.post(StrayLegExpired{Seq: seq})
		})
	}
}

// endRemote hangs up a provider call outside the run loop.
func (s *Session) endRemote(callSID, failMsg string) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.runCtx), publishTimeout)
		defer cancel()
		if err := s.backend.EndCall(ctx, callSID); err != nil {
			s.log.Warn(failMsg, "call_sid", callSID, "err", err)
		}
	})
}

func (s *Session) legCall(id LegID, release bool, fn func(Leg) error) {
	leg, ok := s.legs[id]
	if !ok {
		return
	}
	if release {
		delete(s.legs, id)
	}
	if err := fn(leg); err != nil {
		s.log.Warn("leg operation failed", "leg", id, "err", err)
		if !release {
			s.spawn(func() { _ = s.post(LocalLegEvent{Leg: id, Kind: LegError, Err: err}) })
		}
	}
}

// loop runs fn now and then every interval until the returned cancel is called.
func (s *Session) loop(every time.Duration, fn func(ctx context.Context)) context.CancelFunc {
	ctx, cancel := context.WithCancel(s.runCtx)
	s.spawn(func() {
		fn(ctx)
		t := s.clock.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	})
	return cancel
}

// ticker calls fn every interval, starting after the first interval.
func (s *Session) ticker(every time.Duration, fn func()) context.CancelFunc {
	ctx, cancel := context.WithCancel(s.runCtx)
	s.spawn(func() {
		t := s.clock.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	})
	return cancel
}

func (s *Session) stop(cancel *context.CancelFunc) {
	if *cancel != nil {
		(*cancel)()
		*cancel = nil
	}
}

func (s *Session) stopAll() {
	s.stop(&s.customerStop)
	s.stop(&s.queueStop)
	s.stop(&s.timerStop)
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
	if s.strayTimer != nil {
		s.strayTimer.Stop()
		s.strayTimer = nil
	}
	for id, leg := range s.legs {
		_ = leg.Disconnect()
		delete(s.legs, id)
	}
}

func (s *Session) spawn(fn func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
}
