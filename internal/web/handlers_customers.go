package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
)

func (s *Server) accessor(r *http.Request) *rewards.Accessor {
	return rewards.NewAccessor(scopeFrom(r.Context()).client, s.requestLogger(r))
}

func (s *Server) lookupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageLookup, lookupView{page: s.basePage(r, "Customer lookup")})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) {
	form := parseLookup(r)
	view := lookupView{page: s.basePage(r, "Customer lookup"), Phone: form.Phone}
	if err := s.validate.Struct(form); err != nil {
		view.Errors = fieldErrors(err)
		s.render(w, r, http.StatusUnprocessableEntity, pageLookup, view)
		return
	}

	rec, err := s.accessor(r).Lookup(r.Context(), form.Phone)
	if err != nil {
		status := http.StatusNotFound
		if !errors.Is(err, rewards.ErrNotFound) {
			status = http.StatusBadGateway
			s.requestLogger(r).Error("lookup rewards", zap.String("phone", form.Phone), zap.Error(err))
		}
		view.Error = msgLookupNotFound
		s.render(w, r, status, pageLookup, view)
		return
	}
	http.Redirect(w, r, dashboardURL(rec.Phone), http.StatusSeeOther)
}

func (s *Server) addCustomer(w http.ResponseWriter, r *http.Request) {
	form, parseErrs := parseCustomer(r)
	view := lookupView{page: s.basePage(r, "Customer lookup"), Customer: form, ShowAdd: true}

	errs := parseErrs
	if err := s.validate.Struct(form); err != nil {
		if errs == nil {
			errs = map[string]string{}
		}
		for field, msg := range fieldErrors(err) {
			if _, seen := errs[field]; !seen {
				errs[field] = msg
			}
		}
	}
	if len(errs) > 0 {
		if msg, ok := errs["phone"]; ok {
			delete(errs, "phone")
			errs["add_phone"] = msg
		}
		view.Errors = errs
		s.render(w, r, http.StatusUnprocessableEntity, pageLookup, view)
		return
	}

	operator, ok := identityOf(r)
	if !ok {
		view.Error = msgNotAuthenticated
		s.render(w, r, http.StatusUnauthorized, pageLookup, view)
		return
	}

	rec, err := s.accessor(r).AddCustomer(r.Context(), rewards.CustomerRewards{
		Phone:       form.Phone,
		FirstName:   form.FirstName,
		LastName:    form.LastName,
		TotalPoints: form.TotalPoints,
		Email:       operator.Email,
	})
	if err != nil {
		s.requestLogger(r).Error("add customer", zap.String("phone", form.Phone), zap.Error(err))
		view.Error = msgAddCustomerFailed
		s.render(w, r, statusFor(err), pageLookup, view)
		return
	}
	http.Redirect(w, r, dashboardURL(rec.Phone), http.StatusSeeOther)
}
