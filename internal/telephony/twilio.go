package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"
	twilioCodeNotFound   = 20404
)

// TwilioClient talks to the Twilio REST API over plain HTTP.
type TwilioClient struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	HTTP       *http.Client

	// Observe, if set, is called after every REST round trip.
	Observe func(operation string, start time.Time)
}

func NewTwilioClient(accountSID, authToken, baseURL string) *TwilioClient {
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioClient{
		AccountSID: accountSID,
		AuthToken:  authToken,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is the error body Twilio returns on non-2xx responses.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Is maps provider not-found responses onto ErrCallNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrCallNotFound && (e.Code == twilioCodeNotFound || e.Status == http.StatusNotFound)
}

func (p *TwilioClient) Name() string { return "twilio" }

func (p *TwilioClient) HealthCheck(ctx context.Context) error {
	return p.do(ctx, "health_check", http.MethodGet, p.accountPath(".json"), nil, nil)
}

type twilioCall struct {
	SID      string  `json:"sid"`
	Status   string  `json:"status"`
	Duration *string `json:"duration"`
}

func (c twilioCall) leg() CallLeg {
	leg := CallLeg{SID: c.SID, Status: CallStatus(c.Status)}
	if c.Duration != nil {
		leg.Duration, _ = strconv.Atoi(*c.Duration)
	}
	return leg
}

func (p *TwilioClient) CreateCall(ctx context.Context, req CallRequest) (CallLeg, error) {
	if req.To == "" || req.From == "" || req.TwiML == "" {
		return CallLeg{}, errors.New("telephony: to, from and twiml are required")
	}
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Twiml", req.TwiML)
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, ev := range req.StatusCallbackEvents {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var out twilioCall
	if err := p.do(ctx, "create_call", http.MethodPost, p.accountPath("/Calls.json"), form, &out); err != nil {
		return CallLeg{}, err
	}
	return out.leg(), nil
}

func (p *TwilioClient) FetchCall(ctx context.Context, sid string) (CallLeg, error) {
	if sid == "" {
		return CallLeg{}, ErrCallNotFound
	}
	var out twilioCall
	if err := p.do(ctx, "fetch_call", http.MethodGet, p.accountPath("/Calls/"+url.PathEscape(sid)+".json"), nil, &out); err != nil {
		return CallLeg{}, err
	}
	return out.leg(), nil
}

func (p *TwilioClient) EndCall(ctx context.Context, sid string) error {
	if sid == "" {
		return ErrCallNotFound
	}
	form := url.Values{"Status": {string(StatusCompleted)}}
	return p.do(ctx, "end_call", http.MethodPost, p.accountPath("/Calls/"+url.PathEscape(sid)+".json"), form, nil)
}

func (p *TwilioClient) ConfigureVoiceURL(ctx context.Context, phoneNumber, voiceURL string) (string, error) {
	var list struct {
		Numbers []struct {
			SID         string `json:"sid"`
			PhoneNumber string `json:"phone_number"`
		} `json:"incoming_phone_numbers"`
	}
	q := url.Values{"PhoneNumber": {phoneNumber}}
	if err := p.do(ctx, "list_numbers", http.MethodGet, p.accountPath("/IncomingPhoneNumbers.json?"+q.Encode()), nil, &list); err != nil {
		return "", err
	}
	if len(list.Numbers) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNumberNotFound, phoneNumber)
	}

	sid := list.Numbers[0].SID
	form := url.Values{"VoiceUrl": {voiceURL}, "VoiceMethod": {http.MethodPost}}
	if err := p.do(ctx, "update_number", http.MethodPost, p.accountPath("/IncomingPhoneNumbers/"+url.PathEscape(sid)+".json"), form, nil); err != nil {
		return "", err
	}
	return sid, nil
}

func (p *TwilioClient) accountPath(suffix string) string {
	return p.BaseURL + "/Accounts/" + url.PathEscape(p.AccountSID) + suffix
}

func (p *TwilioClient) do(ctx context.Context, op, method, endpoint string, form url.Values, out any) error {
	if p.Observe != nil {
		defer p.Observe(op, time.Now())
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.AccountSID, p.AuthToken)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: %s: read body: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("telephony: %s: decode: %w", op, err)
	}
	return nil
}
