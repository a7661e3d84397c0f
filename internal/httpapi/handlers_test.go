package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/bridge"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/inbound"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

const (
	testPublicURL = "https://dialer.example.com"
	testNumber    = "+15550000000"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	h       Handlers
	sim     *telephony.Simulator
	queue   *inbound.Queue
	audit   *audit.MemoryRepo
	calls   *calls.MemoryRepo
	metrics *metrics.Metrics
	engine  *gin.Engine
}

// withTestIdentity stands in for auth.RequireAccessToken: X-Test-User and X-Test-Role become the subject.
func withTestIdentity(c *gin.Context) {
	if uid := c.GetHeader("X-Test-User"); uid != "" {
		s := auth.Subject{UserID: uid, Email: c.GetHeader("X-Test-Email"), Role: c.GetHeader("X-Test-Role")}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), s))
	}
	c.Next()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sim := telephony.NewSimulator()
	q := inbound.NewQueue(inbound.WithClock(func() time.Time { return testNow }))
	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo)
	m := metrics.New()
	callRepo := calls.NewMemoryRepo()

	leadSvc := leads.NewService(leads.NewMemoryRepo(), auditSvc).WithClock(func() time.Time { return testNow })
	for _, l := range []leads.Lead{
		{ID: "l1", Name: "Ada", Phone: "+15551230001", AssignedTo: "agent-a", CreatedAt: testNow.Add(-time.Hour)},
		{ID: "l2", Name: "Bob", Phone: "+15551230002", AssignedTo: "agent-b", CreatedAt: testNow},
	} {
		if _, err := leadSvc.Create(context.Background(), l); err != nil {
			t.Fatalf("seed lead: %v", err)
		}
	}

	h := Handlers{
		Queue:  q,
		Agents: inbound.NewRegistry(func() time.Time { return testNow }),
		Router: &inbound.Enqueuer{Queue: q, PublicURL: testPublicURL, Metrics: m},
		Bridge: &bridge.Orchestrator{
			Calls:     sim,
			Queue:     q,
			Guard:     bridge.NewMemoryGuard(),
			Audit:     auditSvc,
			CallerID:  testNumber,
			PublicURL: testPublicURL,
			Metrics:   m,
			Now:       func() time.Time { return testNow },
		},
		Provider: sim,
		VoiceTokens: &telephony.VoiceTokenIssuer{
			AccountSID:  "ACtest",
			APIKey:      "SKtest",
			APISecret:   "secret",
			TwimlAppSID: "APtest",
			TTL:         time.Hour,
			Now:         func() time.Time { return testNow },
		},
		Leads:       leadSvc,
		Calls:       calls.NewService(callRepo).WithClock(func() time.Time { return testNow }),
		Audit:       auditSvc,
		Metrics:     m,
		PublicURL:   testPublicURL,
		PhoneNumber: testNumber,
		Now:         func() time.Time { return testNow },
	}

	r := gin.New()
	r.Use(ClientIP())
	r.GET("/healthz", h.Health)
	v1 := r.Group("/v1", withTestIdentity)
	v1.GET("/agents/availability", h.GetAvailability)
	v1.POST("/agents/availability", h.SetAvailability)
	v1.GET("/inbound/waiting", h.Waiting)
	v1.POST("/inbound/claim", h.Claim)
	v1.POST("/calls", h.Dial)
	v1.POST("/calls/log", h.LogCall)
	v1.GET("/calls/:sid/status", h.CallStatus)
	v1.POST("/calls/:sid/end", h.EndCall)
	v1.GET("/voice/token", h.VoiceToken)
	v1.GET("/leads", h.ListLeads)
	v1.GET("/leads/:id", h.GetLead)
	v1.PATCH("/leads/:id", h.UpdateLead)
	v1.POST("/admin/setup", h.SetupNumber)

	hooks := r.Group("/webhooks/twilio")
	hooks.POST("/voice", h.InboundVoice)
	hooks.POST("/outgoing", h.OutgoingVoice)
	hooks.POST("/inbound-status", h.InboundStatus)
	hooks.POST("/conference-status", h.ConferenceStatus)
	hooks.POST("/call-status", h.CallStatusWebhook)

	return &testEnv{h: h, sim: sim, queue: q, audit: auditRepo, calls: callRepo, metrics: m, engine: r}
}

type caller struct {
	id, email, role string
}

var (
	agentA = caller{id: "agent-a", email: "a@example.com", role: "agent"}
	agentB = caller{id: "agent-b", email: "b@example.com", role: "agent"}
	admin  = caller{id: "admin-1", email: "admin@example.com", role: "admin"}
	anon   = caller{}
)

func (e *testEnv) do(as caller, method, path string, body any) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as.id != "" {
		req.Header.Set("X-Test-User", as.id)
		req.Header.Set("X-Test-Email", as.email)
		req.Header.Set("X-Test-Role", as.role)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) form(path string, vals url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorText(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func TestAvailability_SetAndGet(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(agentA, http.MethodPost, "/v1/agents/availability", gin.H{"available": true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(agentA, http.MethodGet, "/v1/agents/availability", nil)
	var got struct {
		Identity     string   `json:"identity"`
		Available    bool     `json:"available"`
		OnlineAgents []string `json:"onlineAgents"`
	}
	decode(t, w, &got)
	if got.Identity != "a@example.com" || !got.Available {
		t.Fatalf("unexpected availability %+v", got)
	}
	if len(got.OnlineAgents) != 1 || got.OnlineAgents[0] != "a@example.com" {
		t.Fatalf("unexpected online list %v", got.OnlineAgents)
	}

	e.do(agentA, http.MethodPost, "/v1/agents/availability", gin.H{"available": false})
	w = e.do(agentB, http.MethodGet, "/v1/agents/availability", nil)
	decode(t, w, &got)
	if got.Available || len(got.OnlineAgents) != 0 {
		t.Fatalf("expected nobody online, got %+v", got)
	}
}

func TestAvailability_RequiresFlag(t *testing.T) {
	e := newTestEnv(t)
	if w := e.do(agentA, http.MethodPost, "/v1/agents/availability", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUnauthenticated_RejectedBeforeQueue(t *testing.T) {
	e := newTestEnv(t)
	e.queue.Enqueue("CA1", "+15551234567")

	w := e.do(anon, http.MethodPost, "/v1/inbound/claim", gin.H{"callSid": "CA1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if n := len(e.queue.Waiting()); n != 1 {
		t.Fatalf("expected call to remain waiting, got %d", n)
	}
	if n := len(e.sim.Created()); n != 0 {
		t.Fatalf("expected no legs, got %d", n)
	}
}

func TestClaim_ConcurrentAgentsOneWinner(t *testing.T) {
	e := newTestEnv(t)
	e.queue.Enqueue("CA1", "+15551234567")

	w := e.do(agentA, http.MethodGet, "/v1/inbound/waiting", nil)
	var waiting struct {
		WaitingCalls []inbound.WaitingCall `json:"waitingCalls"`
	}
	decode(t, w, &waiting)
	if len(waiting.WaitingCalls) != 1 || waiting.WaitingCalls[0].CallerNumber != "+15551234567" {
		t.Fatalf("unexpected waiting list %+v", waiting)
	}

	var (
		wg    sync.WaitGroup
		codes = make([]int, 2)
		msgs  = make([]string, 2)
	)
	for i, as := range []caller{agentA, agentB} {
		wg.Add(1)
		go func(i int, as caller) {
			defer wg.Done()
			w := e.do(as, http.MethodPost, "/v1/inbound/claim", gin.H{"callSid": "CA1"})
			codes[i] = w.Code
			msgs[i] = w.Body.String()
		}(i, as)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for i, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
			if !strings.Contains(msgs[i], `"conferenceName":"inbound-CA1"`) {
				t.Fatalf("unexpected success body %s", msgs[i])
			}
		case http.StatusConflict:
			conflict++
			if !strings.Contains(msgs[i], msgAlreadyClaimed) {
				t.Fatalf("unexpected conflict body %s", msgs[i])
			}
		default:
			t.Fatalf("unexpected status %d: %s", code, msgs[i])
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("expected one winner and one conflict, got ok=%d conflict=%d", ok, conflict)
	}

	w = e.do(agentA, http.MethodGet, "/v1/inbound/waiting", nil)
	decode(t, w, &waiting)
	if len(waiting.WaitingCalls) != 0 {
		t.Fatalf("expected CA1 excluded after claim, got %+v", waiting.WaitingCalls)
	}
	if n := len(e.sim.Created()); n != 1 {
		t.Fatalf("expected exactly one agent leg, got %d", n)
	}
}

func TestClaim_MissingSID(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentA, http.MethodPost, "/v1/inbound/claim", gin.H{})
	if w.Code != http.StatusBadRequest || errorText(t, w) != "Missing callSid" {
		t.Fatalf("expected 400 Missing callSid, got %d %s", w.Code, w.Body.String())
	}
}

func TestClaim_AgentLegFailureReleasesCall(t *testing.T) {
	e := newTestEnv(t)
	e.queue.Enqueue("CA1", "+15551234567")
	e.sim.FailNextCreate(errors.New("client offline"))

	w := e.do(agentA, http.MethodPost, "/v1/inbound/claim", gin.H{"callSid": "CA1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if e.queue.Len() != 0 {
		t.Fatalf("expected call dequeued after failed agent leg")
	}
	events := e.audit.OfType(audit.EventTypeClaimReleased)
	if len(events) != 1 || events[0].CallSID != "CA1" {
		t.Fatalf("expected claim_released audit, got %+v", events)
	}
	if events[0].ActorUserID != "agent-a" {
		t.Fatalf("expected actor agent-a, got %q", events[0].ActorUserID)
	}
}

func TestDial_LogsCallAndMarksLead(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(agentA, http.MethodPost, "/v1/calls", gin.H{"to": "+15550009999", "leadId": "l1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out bridge.OutboundCall
	decode(t, w, &out)
	if !strings.HasPrefix(out.ConferenceName, "room-") || out.CustomerCallSID == "" || out.AgentCallSID == "" {
		t.Fatalf("unexpected dial result %+v", out)
	}

	rows := e.calls.Calls()
	if len(rows) != 1 || rows[0].ProviderCallSID != out.CustomerCallSID || rows[0].LeadID != "l1" || rows[0].AgentID != "agent-a" {
		t.Fatalf("unexpected call log %+v", rows)
	}

	w = e.do(agentA, http.MethodGet, "/v1/leads/l1", nil)
	var lead struct {
		Lead leads.Lead `json:"lead"`
	}
	decode(t, w, &lead)
	if lead.Lead.Status != leads.StatusDialed || lead.Lead.LastCallDate == nil {
		t.Fatalf("expected lead dialed, got %+v", lead.Lead)
	}
}

func TestDial_MissingTo(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentA, http.MethodPost, "/v1/calls", gin.H{"leadId": "l1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if n := len(e.sim.Created()); n != 0 {
		t.Fatalf("expected no legs, got %d", n)
	}
}

func TestDial_AgentLegFailureEndsCustomerLeg(t *testing.T) {
	e := newTestEnv(t)
	e.sim.FailCreateTo("client:a@example.com", errors.New("no client registered"))

	w := e.do(agentA, http.MethodPost, "/v1/calls", gin.H{"to": "+15550009999"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if n := len(e.sim.Ended()); n != 1 {
		t.Fatalf("expected customer leg ended, got %d", n)
	}
	if n := len(e.calls.Calls()); n != 0 {
		t.Fatalf("expected no call log for failed dial, got %d", n)
	}
}

func TestCallStatus_PollsAndTreatsUnknownAsCompleted(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentA, http.MethodPost, "/v1/calls", gin.H{"to": "+15550009999"})
	var out bridge.OutboundCall
	decode(t, w, &out)
	e.sim.Script(out.CustomerCallSID, telephony.StatusRinging, telephony.StatusInProgress)

	var st bridge.LegStatus
	decode(t, e.do(agentA, http.MethodGet, "/v1/calls/"+out.CustomerCallSID+"/status", nil), &st)
	if st.Status != telephony.StatusRinging {
		t.Fatalf("expected ringing, got %q", st.Status)
	}
	decode(t, e.do(agentA, http.MethodGet, "/v1/calls/"+out.CustomerCallSID+"/status", nil), &st)
	if st.Status != telephony.StatusInProgress {
		t.Fatalf("expected in-progress, got %q", st.Status)
	}

	decode(t, e.do(agentA, http.MethodGet, "/v1/calls/CAgone/status", nil), &st)
	if st.Status != telephony.StatusCompleted || st.Duration != 0 {
		t.Fatalf("expected completed/0 for unknown leg, got %+v", st)
	}
}

func TestEndCall(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentA, http.MethodPost, "/v1/calls", gin.H{"to": "+15550009999"})
	var out bridge.OutboundCall
	decode(t, w, &out)

	w = e.do(agentA, http.MethodPost, "/v1/calls/"+out.CustomerCallSID+"/end", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ended := e.sim.Ended(); len(ended) != 1 || ended[0] != out.CustomerCallSID {
		t.Fatalf("unexpected ended legs %v", ended)
	}
	if w := e.do(agentA, http.MethodPost, "/v1/calls/CAgone/end", nil); w.Code != http.StatusOK {
		t.Fatalf("expected already-gone leg to count as ended, got %d", w.Code)
	}
}

func TestLogCall_CreatesRowAndMarksLead(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentB, http.MethodPost, "/v1/calls/log", gin.H{"leadId": "l2", "callSid": "CAbrowser", "status": "ringing"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	rows := e.calls.Calls()
	if len(rows) != 1 || rows[0].Status != calls.CallStatusRinging || rows[0].AgentID != "agent-b" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if w := e.do(agentB, http.MethodPost, "/v1/calls/log", gin.H{"status": "answered"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestLeads_ScopingAndForbiddenPatch(t *testing.T) {
	e := newTestEnv(t)

	var list struct {
		Leads []leads.Lead `json:"leads"`
	}
	decode(t, e.do(agentA, http.MethodGet, "/v1/leads", nil), &list)
	if len(list.Leads) != 1 || list.Leads[0].ID != "l1" {
		t.Fatalf("expected only l1 for agent a, got %+v", list.Leads)
	}
	decode(t, e.do(admin, http.MethodGet, "/v1/leads", nil), &list)
	if len(list.Leads) != 2 || list.Leads[0].ID != "l2" {
		t.Fatalf("expected both leads newest first for admin, got %+v", list.Leads)
	}

	w := e.do(agentA, http.MethodPatch, "/v1/leads/l2", gin.H{"status": "interested"})
	if w.Code != http.StatusForbidden || errorText(t, w) != "You can only update your own leads" {
		t.Fatalf("expected 403, got %d %s", w.Code, w.Body.String())
	}

	w = e.do(agentA, http.MethodPatch, "/v1/leads/l1", gin.H{"status": "callback", "notes": "call after 5pm"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var updated struct {
		Lead leads.Lead `json:"lead"`
	}
	decode(t, w, &updated)
	if updated.Lead.Status != leads.StatusCallback || updated.Lead.Notes != "call after 5pm" {
		t.Fatalf("unexpected lead %+v", updated.Lead)
	}

	if w := e.do(admin, http.MethodGet, "/v1/leads/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := e.do(admin, http.MethodPatch, "/v1/leads/l1", gin.H{"status": "archived"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", w.Code)
	}
}

func TestLeads_EmptyStatusKeepsExisting(t *testing.T) {
	e := newTestEnv(t)
	if w := e.do(agentA, http.MethodPatch, "/v1/leads/l1", gin.H{"status": "callback"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w := e.do(agentA, http.MethodPatch, "/v1/leads/l1", gin.H{"status": "", "notes": "left voicemail"})
	if w.Code != http.StatusOK {
		t.Fatalf("empty status must be accepted, got %d %s", w.Code, w.Body.String())
	}
	var updated struct {
		Lead leads.Lead `json:"lead"`
	}
	decode(t, w, &updated)
	if updated.Lead.Status != leads.StatusCallback || updated.Lead.Notes != "left voicemail" {
		t.Fatalf("unexpected lead %+v", updated.Lead)
	}
}

func TestVoiceToken(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentA, http.MethodGet, "/v1/voice/token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var tok telephony.VoiceToken
	decode(t, w, &tok)
	if tok.Token == "" || tok.Identity != "a@example.com" {
		t.Fatalf("unexpected token %+v", tok)
	}
}

func TestSetupNumber(t *testing.T) {
	e := newTestEnv(t)

	if w := e.do(admin, http.MethodPost, "/v1/admin/setup", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unowned number, got %d", w.Code)
	}

	e.sim.AddNumber(testNumber)
	w := e.do(admin, http.MethodPost, "/v1/admin/setup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if got := e.sim.VoiceURL(testNumber); got != testPublicURL+VoiceWebhookPath {
		t.Fatalf("unexpected voice url %q", got)
	}
	events := e.audit.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeNumberSetup {
		t.Fatalf("expected number_setup audit, got %+v", events)
	}
}

func TestSetupNumber_RejectsLocalhost(t *testing.T) {
	e := newTestEnv(t)
	e.h.PublicURL = "http://localhost:8080"
	e.engine = gin.New()
	e.engine.POST("/v1/admin/setup", withTestIdentity, e.h.SetupNumber)

	if w := e.do(admin, http.MethodPost, "/v1/admin/setup", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestInboundVoiceWebhook_EnqueuesAndHolds(t *testing.T) {
	e := newTestEnv(t)

	w := e.form("/webhooks/twilio/voice", url.Values{"CallSid": {"CA9"}, "From": {"+15551234567"}, "To": {testNumber}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{
		`>inbound-CA9</Conference>`,
		`startConferenceOnEnter="false"`,
		`endConferenceOnExit="true"`,
		`statusCallbackEvent="end"`,
		`statusCallback="https://dialer.example.com/webhooks/twilio/inbound-status"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	waiting := e.queue.Waiting()
	if len(waiting) != 1 || waiting[0].CallSID != "CA9" || waiting[0].CallerNumber != "+15551234567" {
		t.Fatalf("unexpected queue %+v", waiting)
	}

	if w := e.form("/webhooks/twilio/voice", url.Values{"From": {"+1"}}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing CallSid, got %d", w.Code)
	}
}

func TestInboundStatusWebhook_Dequeues(t *testing.T) {
	e := newTestEnv(t)
	e.queue.Enqueue("CA9", "+15551234567")

	w := e.form("/webhooks/twilio/inbound-status", url.Values{"FriendlyName": {"inbound-CA9"}, "StatusCallbackEvent": {"conference-end"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if e.queue.Len() != 0 {
		t.Fatalf("expected CA9 dequeued")
	}
}

func TestOutgoingWebhook(t *testing.T) {
	e := newTestEnv(t)

	w := e.form("/webhooks/twilio/outgoing", url.Values{"To": {"+15550009999"}})
	body := w.Body.String()
	if w.Code != http.StatusOK || !strings.Contains(body, "<Number>+15550009999</Number>") || !strings.Contains(body, `callerId="+15550000000"`) {
		t.Fatalf("unexpected outgoing twiml %d %s", w.Code, body)
	}

	w = e.form("/webhooks/twilio/outgoing", url.Values{})
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected hangup without To, got %s", w.Body.String())
	}
}

func TestCallStatusWebhook_UpdatesLoggedCall(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(agentA, http.MethodPost, "/v1/calls", gin.H{"to": "+15550009999"})
	var out bridge.OutboundCall
	decode(t, w, &out)

	w = e.form("/webhooks/twilio/call-status", url.Values{
		"CallSid":      {out.CustomerCallSID},
		"CallStatus":   {"completed"},
		"CallDuration": {"37"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rows := e.calls.Calls()
	if len(rows) != 1 || rows[0].Status != calls.CallStatusCompleted || rows[0].DurationSeconds != 37 {
		t.Fatalf("unexpected call log %+v", rows)
	}

	w = e.form("/webhooks/twilio/call-status", url.Values{"CallSid": {"CAother"}, "CallStatus": {"ringing"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected unknown legs to be acknowledged, got %d", w.Code)
	}
}

func TestConferenceStatusWebhook(t *testing.T) {
	e := newTestEnv(t)
	w := e.form("/webhooks/twilio/conference-status", url.Values{"StatusCallbackEvent": {"participant-join"}, "FriendlyName": {"room-1"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestSignatureRejected_CountsAndAudits(t *testing.T) {
	e := newTestEnv(t)
	r := gin.New()
	r.Use(ClientIP())
	r.POST(VoiceWebhookPath, telephony.RequireTwilioSignature(telephony.SignatureOptions{
		AuthToken:     "token",
		PublicBaseURL: testPublicURL,
		OnReject:      e.h.SignatureRejected,
	}), e.h.InboundVoice)

	req := httptest.NewRequest(http.MethodPost, VoiceWebhookPath, strings.NewReader("CallSid=CA1&From=%2B1555"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "bogus")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if e.queue.Len() != 0 {
		t.Fatalf("rejected webhook must not reach the queue")
	}
	events := e.audit.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeWebhookRejected {
		t.Fatalf("expected webhook_rejected audit, got %+v", events)
	}

	scrape := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if want := `dialer_webhook_rejections_total{endpoint="/webhooks/twilio/voice"} 1`; !strings.Contains(scrape.Body.String(), want) {
		t.Fatalf("expected %s in scrape", want)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(anon, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"provider":"simulator"`) {
		t.Fatalf("unexpected health %d %s", w.Code, w.Body.String())
	}
}
