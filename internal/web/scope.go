package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/auth"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/session"
)

type scopeKey struct{}

// requestScope is the backend client and session store built for one request.
type requestScope struct {
	client backend.Client
	store  *session.Store
	nav    *pendingRedirect
}

// pendingRedirect records where the session store wants the operator to go.
type pendingRedirect struct {
	path string
}

func (p *pendingRedirect) Navigate(path string) { p.path = path }

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.TokenFromRequest(r, s.cfg.CookieName)
		if err != nil {
			token = ""
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := s.clients(token)
		nav := &pendingRedirect{}
		store := session.New(ctx, client, nav, s.logger)
		defer store.Close()

		if token != "" && !store.IsAuthenticated() {
			s.clearCookie(w)
		}

		ctx = context.WithValue(ctx, scopeKey{}, &requestScope{client: client, store: store, nav: nav})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func scopeFrom(ctx context.Context) *requestScope {
	scope, _ := ctx.Value(scopeKey{}).(*requestScope)
	return scope
}

func stateFromRequest(r *http.Request) session.State {
	scope := scopeFrom(r.Context())
	if scope == nil {
		return session.Unknown()
	}
	return scope.store.State()
}

func (s *Server) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}
