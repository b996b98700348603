package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/session"
)

func TestCheck(t *testing.T) {
	cases := map[string]struct {
		state session.State
		want  Decision
	}{
		"unknown":       {state: session.Unknown(), want: Decision{Redirect: "/login"}},
		"anonymous":     {state: session.Anonymous(), want: Decision{Redirect: "/login"}},
		"authenticated": {state: session.Authenticated(session.Identity{ID: "u1"}), want: Decision{Allow: true}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Check(tc.state))
		})
	}
}

func TestMiddleware(t *testing.T) {
	state := session.Anonymous()
	protected := Middleware(func(*http.Request) session.State { return state })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	state = session.Authenticated(session.Identity{ID: "u1"})
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
