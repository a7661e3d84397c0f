package telephony

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TwilioInboundForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioInboundForm struct {
	CallSid     string
	AccountSid  string
	From        string
	To          string
	Direction   string
	CallStatus  string
	CallerName  string
	FromCity    string
	FromState   string
	FromCountry string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:     strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:  r.PostFormValue("AccountSid"),
		From:        normalizePhone(r.PostFormValue("From")),
		To:          normalizePhone(r.PostFormValue("To")),
		Direction:   r.PostFormValue("Direction"),
		CallStatus:  r.PostFormValue("CallStatus"),
		CallerName:  r.PostFormValue("CallerName"),
		FromCity:    r.PostFormValue("FromCity"),
		FromState:   r.PostFormValue("FromState"),
		FromCountry: r.PostFormValue("FromCountry"),
	}, nil
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

func (f TwilioInboundForm) ToInboundCallRequest(occurredAt time.Time) InboundCallRequest {
	raw, _ := json.Marshal(f)
	return InboundCallRequest{
		ProviderCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		OccurredAt:     occurredAt,
		RawPayload:     string(raw),
	}
}

// ConferenceStatusForm is posted on conference lifecycle events.
type ConferenceStatusForm struct {
	ConferenceSid string
	FriendlyName  string
	Event         string
	CallSid       string
}

func ParseConferenceStatus(r *http.Request) (ConferenceStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return ConferenceStatusForm{}, err
	}
	return ConferenceStatusForm{
		ConferenceSid: r.PostFormValue("ConferenceSid"),
		FriendlyName:  strings.TrimSpace(r.PostFormValue("FriendlyName")),
		Event:         r.PostFormValue("StatusCallbackEvent"),
		CallSid:       r.PostFormValue("CallSid"),
	}, nil
}

// CallStatusForm is posted on call leg progress events.
type CallStatusForm struct {
	CallSid    string
	CallStatus CallStatus
	Duration   int
	From       string
	To         string
}

func ParseCallStatus(r *http.Request) (CallStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return CallStatusForm{}, err
	}
	f := CallStatusForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus: CallStatus(r.PostFormValue("CallStatus")),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
	}
	if d := r.PostFormValue("CallDuration"); d != "" {
		f.Duration, _ = strconv.Atoi(d)
	}
	return f, nil
}
