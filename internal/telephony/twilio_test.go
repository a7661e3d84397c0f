package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestTwilio(t *testing.T, h http.HandlerFunc) *TwilioClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewTwilioClient("AC1", "secret", srv.URL)
}

func TestTwilioClient_CreateCall(t *testing.T) {
	var observed []string
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Accounts/AC1/Calls.json" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC1" || pass != "secret" {
			t.Errorf("expected basic auth")
		}
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "+15551234567" || r.PostForm.Get("Twiml") == "" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		if got := r.PostForm["StatusCallbackEvent"]; len(got) != 2 {
			t.Errorf("expected two status events, got %v", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA100","status":"queued","duration":null}`))
	})
	p.Observe = func(op string, _ time.Time) { observed = append(observed, op) }

	leg, err := p.CreateCall(context.Background(), CallRequest{
		To:                   "+15551234567",
		From:                 "+15550000000",
		TwiML:                "<Response/>",
		StatusCallback:       "https://dialer.example.com/webhooks/twilio/call-status",
		StatusCallbackEvents: []string{"ringing", "completed"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if leg.SID != "CA100" || leg.Status != StatusQueued || leg.Duration != 0 {
		t.Fatalf("unexpected leg: %+v", leg)
	}
	if len(observed) != 1 || observed[0] != "create_call" {
		t.Fatalf("expected observed create_call, got %v", observed)
	}
}

func TestTwilioClient_FetchCall(t *testing.T) {
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Accounts/AC1/Calls/CA100.json":
			_, _ = w.Write([]byte(`{"sid":"CA100","status":"in-progress","duration":"17"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":404,"code":20404,"message":"The requested resource was not found"}`))
		}
	})

	leg, err := p.FetchCall(context.Background(), "CA100")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if leg.Status != StatusInProgress || leg.Duration != 17 {
		t.Fatalf("unexpected leg: %+v", leg)
	}

	_, err = p.FetchCall(context.Background(), "CA404")
	if !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 20404 {
		t.Fatalf("expected APIError with code 20404, got %v", err)
	}
}

func TestTwilioClient_EndCall(t *testing.T) {
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("Status") != "completed" {
			t.Errorf("expected Status=completed, got %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"sid":"CA100","status":"completed"}`))
	})
	if err := p.EndCall(context.Background(), "CA100"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := p.EndCall(context.Background(), ""); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound for empty sid, got %v", err)
	}
}

func TestTwilioClient_ConfigureVoiceURL(t *testing.T) {
	var updatedURL string
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/Accounts/AC1/IncomingPhoneNumbers.json":
			if r.URL.Query().Get("PhoneNumber") == "+15550000000" {
				_, _ = w.Write([]byte(`{"incoming_phone_numbers":[{"sid":"PN1","phone_number":"+15550000000"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"incoming_phone_numbers":[]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/Accounts/AC1/IncomingPhoneNumbers/PN1.json":
			_ = r.ParseForm()
			updatedURL = r.PostForm.Get("VoiceUrl")
			_, _ = w.Write([]byte(`{"sid":"PN1"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	sid, err := p.ConfigureVoiceURL(context.Background(), "+15550000000", "https://dialer.example.com/webhooks/twilio/voice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sid != "PN1" || updatedURL != "https://dialer.example.com/webhooks/twilio/voice" {
		t.Fatalf("unexpected result sid=%q url=%q", sid, updatedURL)
	}

	if _, err := p.ConfigureVoiceURL(context.Background(), "+15559999999", "x"); !errors.Is(err, ErrNumberNotFound) {
		t.Fatalf("expected ErrNumberNotFound, got %v", err)
	}
}
