package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	CallerID   string           `xml:"callerId,attr,omitempty"`
	Number     string           `xml:"Number,omitempty"`
	Sip        *twimlSip        `xml:"Sip,omitempty"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

type twimlConference struct {
	StartConferenceOnEnter bool   `xml:"startConferenceOnEnter,attr"`
	EndConferenceOnExit    bool   `xml:"endConferenceOnExit,attr"`
	Beep                   string `xml:"beep,attr"`
	StatusCallbackEvent    string `xml:"statusCallbackEvent,attr,omitempty"`
	StatusCallback         string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackMethod   string `xml:"statusCallbackMethod,attr,omitempty"`
	Name                   string `xml:",chardata"`
}

// ConferenceJoin describes one leg entering a named conference.
type ConferenceJoin struct {
	Name string

	// StartOnEnter: audio starts when this leg joins. False means the leg holds until someone else starts it.
	StartOnEnter bool
	// EndOnExit: this leg leaving tears the conference down for everyone.
	EndOnExit bool

	StatusCallback       string
	StatusCallbackEvents []string
}

func (j ConferenceJoin) element() *twimlConference {
	conf := &twimlConference{
		StartConferenceOnEnter: j.StartOnEnter,
		EndConferenceOnExit:    j.EndOnExit,
		Beep:                   "false",
		Name:                   j.Name,
	}
	if j.StatusCallback != "" {
		conf.StatusCallbackEvent = strings.Join(j.StatusCallbackEvents, " ")
		conf.StatusCallback = j.StatusCallback
		conf.StatusCallbackMethod = http.MethodPost
	}
	return conf
}

// RenderTwiML maps an InboundCallResult to TwiML.
func RenderTwiML(res InboundCallResult) (string, error) {
	var r twimlResponse

	switch res.Action {
	case InboundCallActionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "busy"})
	case InboundCallActionHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case InboundCallActionConnect:
		if strings.TrimSpace(res.ConnectTo) == "" {
			return "", errors.New("telephony: connect_to required for connect action")
		}
		d := twimlDial{}
		// Prefer SIP if it looks like sip:... otherwise treat as a PSTN number.
		if strings.HasPrefix(strings.ToLower(res.ConnectTo), "sip:") {
			d.Sip = &twimlSip{URI: res.ConnectTo}
		} else {
			d.Number = res.ConnectTo
		}
		r.Verbs = append(r.Verbs, d)
	case InboundCallActionHold:
		if strings.TrimSpace(res.Conference) == "" {
			return "", errors.New("telephony: conference required for hold action")
		}
		join := ConferenceJoin{
			Name:                 res.Conference,
			StartOnEnter:         false,
			EndOnExit:            true,
			StatusCallback:       res.StatusCallback,
			StatusCallbackEvents: []string{"end"},
		}
		r.Verbs = append(r.Verbs, twimlDial{Conference: join.element()})
	default:
		return "", errors.New("telephony: unknown inbound action")
	}

	return encode(r)
}

// ConferenceTwiML renders the markup a bridged leg runs to join its conference.
func ConferenceTwiML(j ConferenceJoin) (string, error) {
	if strings.TrimSpace(j.Name) == "" {
		return "", errors.New("telephony: conference name required")
	}
	return encode(twimlResponse{Verbs: []any{twimlDial{Conference: j.element()}}})
}

// DialNumberTwiML renders a plain PSTN dial, used for calls the browser client places itself.
func DialNumberTwiML(number, callerID string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", errors.New("telephony: number required")
	}
	return encode(twimlResponse{Verbs: []any{twimlDial{CallerID: callerID, Number: number}}})
}

func encode(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
