// Package hotline provides the crisis hotline bounded context module.
// This file wires the incident store, the activation limiter, the bridge
// lock and the provider client into the service and mounts its routes.
package hotline

import (
	"fmt"

	"hotline_backend/internal/events"
	apphttp "hotline_backend/internal/http"
	"hotline_backend/internal/hotline/handler"
	"hotline_backend/internal/hotline/policy"
	"hotline_backend/internal/hotline/ports"
	"hotline_backend/internal/hotline/repository"
	"hotline_backend/internal/hotline/service"
	"hotline_backend/internal/lock"
	"hotline_backend/internal/ratelimit"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/config"
	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"
	"hotline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the configuration the hotline module reads.
type Config interface {
	config.HotlineConfig
	config.TelephonyConfig
}

// Module is the hotline bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the hotline module with all its dependencies.
func NewModule(pool *pgxpool.Pool, store kv.Store, calls ports.CallPlacer, bus events.Publisher, val *validator.Validator, cfg Config, log *logger.Logger) (*Module, error) {
	tiers, err := policy.Load(cfg.GetTierPolicyFile())
	if err != nil {
		return nil, fmt.Errorf("hotline module: %w", err)
	}

	svc := service.New(service.Deps{
		Incidents: repository.NewIncidents(pool),
		Subjects:  repository.NewSubjects(pool),
		Calls:     calls,
		Locks:     lock.NewManager(store, log),
		Limiter:   ratelimit.New(store, cfg.GetActivationLimit(), cfg.GetActivationWindow(), log),
		Events:    bus,
		Policy:    tiers,
		Log:       log,
	}, service.Options{
		PublicBaseURL:    cfg.GetPublicBaseURL(),
		CallerID:         cfg.GetTwilioFromNumber(),
		OperatorNumber:   cfg.GetTwilioOperatorNumber(),
		Production:       cfg.IsProduction(),
		DevBypass:        cfg.GetDevBypass(),
		DevIdentityEmail: cfg.GetDevIdentityEmail(),
		DevCallerE164:    cfg.GetDevCallerE164(),
		PhoneRegion:      cfg.GetDefaultPhoneRegion(),
		StaleAfter:       cfg.GetStaleAfter(),
	})

	h := handler.New(svc, val, telephony.NewVerifier(cfg.GetTwilioAuthToken()), handler.Options{
		PublicBaseURL:   cfg.GetPublicBaseURL(),
		Production:      cfg.IsProduction(),
		SignatureBypass: cfg.GetSignatureBypass(),
	}, log)

	return &Module{handler: h, service: svc}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "hotline"
}

// Service returns the hotline service for the reaper loop and the scheduler.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts hotline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Member routes resolve identity when a token is present; the service
	// decides whether an anonymous caller may proceed.
	member := ctx.Member
	member.POST("/hotline/activate", m.handler.Activate)
	member.POST("/hotline/activate-compat", m.handler.ActivateCompat)
	member.POST("/hotline/end-session", m.handler.EndSession)
	member.GET("/me/active-session", m.handler.ActiveSession)
	member.GET("/me/last-incident", m.handler.LastIncident)

	// Provider webhooks authenticate by signature, not by token.
	ctx.V1.POST("/twilio/call-status", m.handler.CallStatus)
	ctx.V1.GET("/hotline/twiml", m.handler.Markup)
	ctx.V1.POST("/hotline/twiml", m.handler.Markup)

	ctx.Public.GET("/incidents/:incidentId", m.handler.GetIncident)
	ctx.Protected.GET("/partners/presence", m.handler.Presence)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
