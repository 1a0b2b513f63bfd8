package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Footprint/internal/metrics"
	"github.com/soaringjerry/Footprint/internal/middleware"
	"github.com/soaringjerry/Footprint/internal/services"
)

type Options struct {
	Store          Store
	Files          services.AttachmentStore
	Auth           *middleware.Authenticator
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	TokenTTL       time.Duration
	CallTimeout    time.Duration
	MaxUploadBytes int64
	// Now overrides the clock used for submission periods.
	Now func() time.Time
}

type Router struct {
	auth        *services.AuthService
	submissions *services.SubmissionService
	profiles    *services.ProfileService
	authn       *middleware.Authenticator
	metrics     *metrics.Metrics
	maxUpload   int64
}

func NewRouter(opts Options) *Router {
	if opts.Store == nil {
		opts.Store = newMemoryStore()
	}
	if opts.Auth == nil {
		opts.Auth = middleware.NewAuthenticator("footprint-dev-secret", services.NewSessionRegistry())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	auth := services.NewAuthService(opts.Store, opts.Store, opts.Files, opts.Auth.Sessions(), opts.Auth.SignToken, opts.Logger)
	auth.SetTokenTTL(opts.TokenTTL)
	subs := services.NewSubmissionService(opts.Store, opts.Files, opts.Logger)
	subs.SetClock(opts.Now)
	profiles := services.NewProfileService(opts.Store, opts.Logger)
	if opts.CallTimeout > 0 {
		auth.SetCallTimeout(opts.CallTimeout)
		subs.SetCallTimeout(opts.CallTimeout)
		profiles.SetCallTimeout(opts.CallTimeout)
	}
	return &Router{
		auth:        auth,
		submissions: subs,
		profiles:    profiles,
		authn:       opts.Auth,
		metrics:     opts.Metrics,
		maxUpload:   opts.MaxUploadBytes,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	public := middleware.PublicOnly
	session := middleware.RequireSession

	rt.route(mux, "POST /api/auth/signup/individual", public, rt.handleSignupIndividual)
	rt.route(mux, "POST /api/auth/signup/organization", public, rt.handleSignupOrganization)
	rt.route(mux, "POST /api/auth/login", public, rt.handleLogin)
	rt.route(mux, "POST /api/auth/logout", session, rt.handleLogout)

	rt.route(mux, "GET /api/me", session, rt.handleMe)
	rt.route(mux, "POST /api/me/dependents", session, rt.handleAddDependent)

	rt.route(mux, "GET /api/estimate", nil, rt.handleEstimate)

	rt.route(mux, "GET /api/submissions/current", session, rt.handleCurrent)
	rt.route(mux, "POST /api/submissions", session, rt.handleSubmit)
	rt.route(mux, "PUT /api/submissions/{period}/attachments/{category}", session, rt.handleReupload)
	rt.route(mux, "GET /api/submissions/history", session, rt.handleHistory)
	rt.route(mux, "GET /api/submissions/export", session, rt.handleExport)
	rt.route(mux, "GET /api/dashboard", session, rt.handleDashboard)
}

func (rt *Router) route(mux *http.ServeMux, pattern string, guard func(http.Handler) http.Handler, h http.HandlerFunc) {
	var handler http.Handler = h
	if guard != nil {
		handler = guard(handler)
	}
	handler = rt.authn.WithAuth(handler)
	if rt.metrics != nil {
		handler = middleware.Instrument(pattern, rt.metrics.ObserveRequest)(handler)
	}
	mux.Handle(pattern, handler)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if se, ok := services.AsServiceError(err); ok {
		return string(se.Code)
	}
	return "error"
}
