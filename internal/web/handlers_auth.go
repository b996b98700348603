package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageLogin, loginView{page: s.basePage(r, "Sign in")})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	form := parseLogin(r)
	view := loginView{page: s.basePage(r, "Sign in"), Email: form.Email}
	if err := s.validate.Struct(form); err != nil {
		view.Errors = fieldErrors(err)
		s.render(w, r, http.StatusUnprocessableEntity, pageLogin, view)
		return
	}

	scope := scopeFrom(r.Context())
	if _, err := scope.store.Login(r.Context(), form.Email, form.Password); err != nil {
		log := s.requestLogger(r)
		if errors.Is(err, backend.ErrInvalidCredentials) || errors.Is(err, backend.ErrEmailNotConfirmed) {
			log.Info("login rejected", zap.String("email", form.Email), zap.Error(err))
			view.Error = msgLoginFailed
			s.render(w, r, http.StatusUnauthorized, pageLogin, view)
			return
		}
		log.Error("login failed", zap.String("email", form.Email), zap.Error(err))
		view.Error = msgLoginError
		s.render(w, r, http.StatusBadGateway, pageLogin, view)
		return
	}

	s.setCookie(w, scope.store.AccessToken())
	http.Redirect(w, r, pathLookup, http.StatusSeeOther)
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageRegister, loginView{page: s.basePage(r, "Register")})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	form := parseRegister(r)
	view := loginView{page: s.basePage(r, "Register"), Email: form.Email}
	if err := s.validate.Struct(form); err != nil {
		view.Errors = fieldErrors(err)
		s.render(w, r, http.StatusUnprocessableEntity, pageRegister, view)
		return
	}

	scope := scopeFrom(r.Context())
	if _, err := scope.store.Register(r.Context(), form.Email, form.Password); err != nil {
		s.requestLogger(r).Warn("registration failed", zap.String("email", form.Email), zap.Error(err))
		view.Error = msgRegisterFailed
		s.render(w, r, http.StatusConflict, pageRegister, view)
		return
	}

	view.Title = "Sign in"
	view.Email = ""
	view.Notice = msgRegistered
	s.render(w, r, http.StatusCreated, pageLogin, view)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r.Context())
	if err := scope.store.Logout(r.Context()); err != nil {
		s.requestLogger(r).Warn("logout", zap.Error(err))
	}
	s.clearCookie(w)

	target := scope.nav.path
	if target == "" {
		target = pathLogin
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
