package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dialer-platform/internal/bridge"
	"dialer-platform/internal/inbound"
)

// APIError is a non-2xx answer from the core API. Message is the server's {"error": ...} text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dialer: api status %d", e.Status)
	}
	return e.Message
}

// HTTPBackend talks to the core API with a bearer access token.
type HTTPBackend struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewHTTPBackend(baseURL, token string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Backend = (*HTTPBackend)(nil)

func (b *HTTPBackend) SetAvailability(ctx context.Context, online bool) error {
	return b.do(ctx, http.MethodPost, "/v1/agents/availability", map[string]bool{"available": online}, nil)
}

func (b *HTTPBackend) Waiting(ctx context.Context) ([]inbound.WaitingCall, error) {
	var out struct {
		WaitingCalls []inbound.WaitingCall `json:"waitingCalls"`
	}
	if err := b.do(ctx, http.MethodGet, "/v1/inbound/waiting", nil, &out); err != nil {
		return nil, err
	}
	return out.WaitingCalls, nil
}

func (b *HTTPBackend) Claim(ctx context.Context, callSID string) error {
	return b.do(ctx, http.MethodPost, "/v1/inbound/claim", map[string]string{"callSid": callSID}, nil)
}

func (b *HTTPBackend) Dial(ctx context.Context, to, leadID string) (bridge.OutboundCall, error) {
	var out bridge.OutboundCall
	body := map[string]string{"to": to}
	if leadID != "" {
		body["leadId"] = leadID
	}
	err := b.do(ctx, http.MethodPost, "/v1/calls", body, &out)
	return out, err
}

func (b *HTTPBackend) CustomerStatus(ctx context.Context, callSID string) (bridge.LegStatus, error) {
	var out bridge.LegStatus
	err := b.do(ctx, http.MethodGet, "/v1/calls/"+url.PathEscape(callSID)+"/status", nil, &out)
	return out, err
}

func (b *HTTPBackend) EndCall(ctx context.Context, callSID string) error {
	return b.do(ctx, http.MethodPost, "/v1/calls/"+url.PathEscape(callSID)+"/end", nil, nil)
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}

	client := b.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
