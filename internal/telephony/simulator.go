package telephony

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Simulator is an in-process CallControl used for local runs without provider
// credentials and in tests. Legs never carry audio; their status advances only
// through scripted statuses or EndCall.
type Simulator struct {
	mu      sync.Mutex
	legs    map[string]*simLeg
	created []CallRequest
	ended   []string
	numbers map[string]string

	failCreate []error
	failTo     map[string][]error
}

type simLeg struct {
	status   CallStatus
	duration int
	script   []CallStatus
}

func NewSimulator() *Simulator {
	return &Simulator{
		legs:    make(map[string]*simLeg),
		numbers: make(map[string]string),
		failTo:  make(map[string][]error),
	}
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) HealthCheck(ctx context.Context) error { return nil }

// FailNextCreate makes the next CreateCall return err. Calls queue up in order.
func (s *Simulator) FailNextCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = append(s.failCreate, err)
}

// FailCreateTo makes the next CreateCall addressed to to return err.
func (s *Simulator) FailCreateTo(to string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTo[to] = append(s.failTo[to], err)
}

// Script queues statuses FetchCall will report for sid, one per fetch.
// The last status sticks.
func (s *Simulator) Script(sid string, statuses ...CallStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leg := s.legs[sid]
	if leg == nil {
		leg = &simLeg{status: StatusQueued}
		s.legs[sid] = leg
	}
	leg.script = append(leg.script, statuses...)
}

func (s *Simulator) CreateCall(ctx context.Context, req CallRequest) (CallLeg, error) {
	if err := ctx.Err(); err != nil {
		return CallLeg{}, err
	}
	if req.To == "" || req.From == "" || req.TwiML == "" {
		return CallLeg{}, errors.New("telephony: to, from and twiml are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failCreate) > 0 {
		err := s.failCreate[0]
		s.failCreate = s.failCreate[1:]
		return CallLeg{}, err
	}
	if errs := s.failTo[req.To]; len(errs) > 0 {
		s.failTo[req.To] = errs[1:]
		return CallLeg{}, errs[0]
	}
	sid := "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.legs[sid] = &simLeg{status: StatusQueued}
	s.created = append(s.created, req)
	return CallLeg{SID: sid, Status: StatusQueued}, nil
}

func (s *Simulator) FetchCall(ctx context.Context, sid string) (CallLeg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leg, ok := s.legs[sid]
	if !ok {
		return CallLeg{}, ErrCallNotFound
	}
	if len(leg.script) > 0 {
		leg.status = leg.script[0]
		leg.script = leg.script[1:]
	}
	return CallLeg{SID: sid, Status: leg.status, Duration: leg.duration}, nil
}

func (s *Simulator) EndCall(ctx context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	leg, ok := s.legs[sid]
	if !ok {
		return ErrCallNotFound
	}
	leg.status = StatusCompleted
	leg.script = nil
	s.ended = append(s.ended, sid)
	return nil
}

// AddNumber registers a phone number the simulated account owns.
func (s *Simulator) AddNumber(phoneNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.numbers[phoneNumber]; !ok {
		s.numbers[phoneNumber] = ""
	}
}

func (s *Simulator) ConfigureVoiceURL(ctx context.Context, phoneNumber, voiceURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.numbers[phoneNumber]; !ok {
		return "", ErrNumberNotFound
	}
	s.numbers[phoneNumber] = voiceURL
	return "PN" + strings.ReplaceAll(phoneNumber, "+", ""), nil
}

// Created returns every leg request accepted so far, in order.
func (s *Simulator) Created() []CallRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRequest, len(s.created))
	copy(out, s.created)
	return out
}

// Ended returns the SIDs hung up through EndCall, in order.
func (s *Simulator) Ended() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ended))
	copy(out, s.ended)
	return out
}

// VoiceURL returns the voice URL configured for phoneNumber.
func (s *Simulator) VoiceURL(phoneNumber string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numbers[phoneNumber]
}
