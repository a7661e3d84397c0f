package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dialer-platform/internal/telephony"
)

func TestHTTPBackend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/inbound/waiting", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"waitingCalls":[{"callSid":"CA1","callerNumber":"+15551234567","conferenceName":"inbound-CA1","receivedAt":"2025-01-01T00:00:00Z"}]}`))
	})
	mux.HandleFunc("/v1/inbound/claim", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["callSid"] == "CA1" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"Call already answered by another agent."}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/v1/calls", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conferenceRoom":"room-1","customerCallSid":"CA9","agentCallSid":"CA10"}`))
	})
	mux.HandleFunc("/v1/calls/CA9/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"in-progress","duration":3}`))
	})

	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") == "Bearer tok"
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", "tok")
	ctx := context.Background()

	calls, err := b.Waiting(ctx)
	if err != nil {
		t.Fatalf("waiting: %v", err)
	}
	if len(calls) != 1 || calls[0].CallSID != "CA1" || calls[0].ConferenceName != "inbound-CA1" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if !sawAuth {
		t.Fatalf("expected bearer token")
	}

	err = b.Claim(ctx, "CA1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
	if err.Error() != "Call already answered by another agent." {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := b.Claim(ctx, "CA2"); err != nil {
		t.Fatalf("expected claim success, got %v", err)
	}

	out, err := b.Dial(ctx, "+15550009999", "lead-1")
	if err != nil || out.CustomerCallSID != "CA9" || out.AgentCallSID != "CA10" {
		t.Fatalf("unexpected dial result %+v %v", out, err)
	}

	st, err := b.CustomerStatus(ctx, "CA9")
	if err != nil || st.Status != telephony.StatusInProgress || st.Duration != 3 {
		t.Fatalf("unexpected status %+v %v", st, err)
	}

	if err := b.EndCall(ctx, "CAmissing"); err == nil {
		t.Fatalf("expected error for unknown route")
	}
}
