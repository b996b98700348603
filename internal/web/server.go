// Package web serves the loyalty console: sign-in and registration, customer lookup, and the
// rewards dashboard.
package web

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/guard"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/observability"
)

// DefaultCookieName holds the access token between requests.
const DefaultCookieName = "loyalty_access_token"

const (
	pathLogin    = "/login"
	pathRegister = "/register"
	pathLookup   = "/customer-lookup"
	pathDash     = "/dashboard"
)

// ClientFactory returns a backend client bound to accessToken; "" yields a signed-out client.
type ClientFactory func(accessToken string) backend.Client

// Config tunes the console.
type Config struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// Server holds the console's handlers.
type Server struct {
	clients  ClientFactory
	logger   *zap.Logger
	validate *validator.Validate
	pages    pages
	cfg      Config
}

// NewServer constructs a Server.
func NewServer(clients ClientFactory, logger *zap.Logger, cfg Config) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	tmpl, err := loadPages()
	if err != nil {
		return nil, err
	}
	validate, err := newValidator()
	if err != nil {
		return nil, err
	}
	return &Server{
		clients:  clients,
		logger:   logger,
		validate: validate,
		pages:    tmpl,
		cfg:      cfg,
	}, nil
}

// Routes mounts the console.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)

		r.Get(pathLogin, s.loginPage)
		r.Post(pathLogin, s.login)
		r.Get(pathRegister, s.registerPage)
		r.Post(pathRegister, s.register)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware(stateFromRequest))

			r.Get(pathLookup, s.lookupPage)
			r.Post(pathLookup, s.lookup)
			r.Post("/customers", s.addCustomer)
			r.Get(pathDash, s.dashboard)
			r.Post(pathDash+"/points", s.awardPoints)
			r.Post(pathDash+"/redeem", s.redeem)
		})
	})

	r.Get("/", redirectTo(pathLookup))
	r.NotFound(redirectTo(pathLookup))
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		observability.ObserveRequest(route, status, elapsed)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func redirectTo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusSeeOther)
	}
}

func dashboardURL(phone string) string {
	return pathDash + "?" + url.Values{"phone": {phone}}.Encode()
}
