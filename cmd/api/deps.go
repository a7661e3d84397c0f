package main

import (
	"database/sql"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/bridge"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/config"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/inbound"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/telephony"
)

// simulatorCallerID is used as caller ID when a local run has no account number.
const simulatorCallerID = "+15005550006"

type deps struct {
	db       *sql.DB
	auth     *auth.Manager
	provider telephony.CallControl
	guard    bridge.DialGuard
	metrics  *metrics.Metrics
}

// newProvider returns the in-process simulator for local runs without credentials, Twilio otherwise.
func newProvider(cfg config.Config, m *metrics.Metrics) telephony.CallControl {
	if cfg.App.Env == "local" && !cfg.HasTwilioCredentials() {
		sim := telephony.NewSimulator()
		if cfg.Twilio.PhoneNumber != "" {
			sim.AddNumber(cfg.Twilio.PhoneNumber)
		}
		return sim
	}
	tc := telephony.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.APIBaseURL)
	tc.Observe = m.ObserveProvider
	return tc
}

// newHandlers wires the process-local queue, registry and bridge to the SQL-backed collaborators.
func newHandlers(cfg config.Config, d deps) httpapi.Handlers {
	publicURL := cfg.PublicURL()
	callerID := cfg.Twilio.PhoneNumber
	if _, ok := d.provider.(*telephony.Simulator); ok && callerID == "" {
		callerID = simulatorCallerID
	}

	queue := inbound.NewQueue(inbound.WithStaleAfter(cfg.Queue.StaleAfter))
	auditSvc := audit.NewService(audit.NewSQLRepo(d.db, cfg.Store.Driver))

	return httpapi.Handlers{
		Auth:   d.auth,
		Queue:  queue,
		Agents: inbound.NewRegistry(time.Now),
		Router: &inbound.Enqueuer{Queue: queue, PublicURL: publicURL, Metrics: d.metrics},
		Bridge: &bridge.Orchestrator{
			Calls:     d.provider,
			Queue:     queue,
			Guard:     d.guard,
			Audit:     auditSvc,
			CallerID:  callerID,
			PublicURL: publicURL,
			Metrics:   d.metrics,
		},
		Provider:    d.provider,
		VoiceTokens: &telephony.VoiceTokenIssuer{
			AccountSID:  cfg.Twilio.AccountSID,
			APIKey:      cfg.Twilio.APIKey,
			APISecret:   cfg.Twilio.APISecret,
			TwimlAppSID: cfg.Twilio.TwimlAppSID,
			TTL:         cfg.Twilio.VoiceTokenTTL,
		},
		Leads:       leads.NewService(leads.NewSQLRepo(d.db, cfg.Store.Driver), auditSvc),
		Calls:       calls.NewService(calls.NewSQLRepo(d.db, cfg.Store.Driver)),
		Audit:       auditSvc,
		Metrics:     d.metrics,
		DB:          d.db,
		PublicURL:   publicURL,
		PhoneNumber: callerID,
	}
}
