// Package guard decides whether a request may reach a protected page.
package guard

import (
	"net/http"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/session"
)

// Decision is the outcome of Check.
type Decision struct {
	Allow    bool
	Redirect string
}

// Check allows authenticated sessions and sends everything else, including the unresolved
// Unknown state, to the login page.
func Check(state session.State) Decision {
	if state.IsAuthenticated() {
		return Decision{Allow: true}
	}
	return Decision{Redirect: session.LoginPath}
}

// Resolver finds the session state for a request.
type Resolver func(*http.Request) session.State

// Middleware applies Check to every request passing through it.
func Middleware(resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Check(resolve(r))
			if !decision.Allow {
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
