package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend/memory"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
)

type harness struct {
	t       *testing.T
	backend *memory.Backend
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := memory.New(memory.Options{Tables: rewards.Schema(), SessionTTL: time.Hour})
	_, err := b.CreateUser(context.Background(), "clerk@example.com", "secret", "", true)
	require.NoError(t, err)

	srv, err := NewServer(func(token string) backend.Client { return b.Client(token) }, zaptest.NewLogger(t), Config{})
	require.NoError(t, err)
	return &harness{t: t, backend: b, handler: srv.Routes()}
}

func (h *harness) do(method, target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signIn() *http.Cookie {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/login", url.Values{"email": {"clerk@example.com"}, "password": {"secret"}}, nil)
	require.Equal(h.t, http.StatusSeeOther, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	h.t.Fatal("no session cookie issued")
	return nil
}

func (h *harness) addCustomer(cookie *http.Cookie, phone string, points string) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.do(http.MethodPost, "/customers", url.Values{
		"first_name":   {"Ada"},
		"last_name":    {"Lovelace"},
		"phone":        {phone},
		"total_points": {points},
	}, cookie)
}

func TestGuardedPagesRedirectToLogin(t *testing.T) {
	h := newHarness(t)
	for _, target := range []string{"/customer-lookup", "/dashboard?phone=5551234567"} {
		rec := h.do(http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code, target)
		assert.Equal(t, "/login", rec.Header().Get("Location"), target)
	}

	rec := h.do(http.MethodPost, "/dashboard/points", url.Values{"phone": {"5551234567"}, "award": {"google_review"}}, nil)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRootAndUnknownPathsRedirectToLookup(t *testing.T) {
	h := newHarness(t)
	for _, target := range []string{"/", "/no/such/page"} {
		rec := h.do(http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/customer-lookup", rec.Header().Get("Location"))
	}
}

func TestHealthz(t *testing.T) {
	rec := newHarness(t).do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login", url.Values{"email": {"not-an-email"}, "password": {""}}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be a valid email address")

	rec = h.do(http.MethodPost, "/login", url.Values{"email": {"clerk@example.com"}, "password": {"wrong"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), msgLoginFailed)

	cookie := h.signIn()
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	rec = h.do(http.MethodGet, "/customer-lookup", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Look Up Customer Rewards")
	assert.Contains(t, rec.Body.String(), "clerk@example.com")
}

func TestRegisterDoesNotSignIn(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/register", url.Values{"email": {"new@example.com"}, "password": {"hunter22"}}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), msgRegistered)
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, DefaultCookieName, c.Name)
	}

	rec = h.do(http.MethodPost, "/login", url.Values{"email": {"new@example.com"}, "password": {"hunter22"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/register", url.Values{"email": {"new@example.com"}, "password": {"hunter22"}}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), msgRegisterFailed)
}

func TestLookupAndAddCustomer(t *testing.T) {
	h := newHarness(t)
	cookie := h.signIn()

	rec := h.do(http.MethodPost, "/customer-lookup", url.Values{"phone": {"(555) 123-4567"}}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), msgLookupNotFound)

	rec = h.do(http.MethodPost, "/customer-lookup", url.Values{"phone": {"555-1234"}}, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be a 10-digit phone number")

	rec = h.addCustomer(cookie, "(555) 123-4567", "-5")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be zero or more")

	rec = h.addCustomer(cookie, "(555) 123-4567", "200")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?phone=5551234567", rec.Header().Get("Location"))

	rec = h.addCustomer(cookie, "5551234567", "0")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), msgAddCustomerFailed)

	rec = h.do(http.MethodPost, "/customer-lookup", url.Values{"phone": {"555.123.4567"}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?phone=5551234567", rec.Header().Get("Location"))

	stored, err := rewards.NewAccessor(h.backend.ServiceClient(), nil).Lookup(context.Background(), "5551234567")
	require.NoError(t, err)
	assert.Equal(t, "clerk@example.com", stored.Email)
}

func TestDashboardAwardAndRedeem(t *testing.T) {
	h := newHarness(t)
	cookie := h.signIn()
	require.Equal(t, http.StatusSeeOther, h.addCustomer(cookie, "5551234567", "200").Code)

	catalog := rewards.NewAccessor(h.backend.ServiceClient(), nil)
	coffee, err := catalog.AddReward(context.Background(), rewards.AvailableReward{Description: "Free coffee", PointCost: 1000})
	require.NoError(t, err)
	trip, err := catalog.AddReward(context.Background(), rewards.AvailableReward{Description: "Weekend trip", PointCost: 50000})
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/dashboard?phone=5551234567", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, `id="total-points">200<`)
	assert.Contains(t, body, "Free coffee (1000 points)")

	rec = h.do(http.MethodPost, "/dashboard/points", url.Values{"phone": {"5551234567"}, "award": {"google_review"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?phone=5551234567", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/dashboard?phone=5551234567", nil, cookie)
	body = rec.Body.String()
	assert.Contains(t, body, `id="total-points">1200<`)
	assert.Contains(t, body, "Received 1000 points for Google review")

	rec = h.do(http.MethodPost, "/dashboard/redeem", url.Values{"phone": {"5551234567"}, "reward_id": {itoa(trip.ID)}}, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), msgInsufficientPoints)
	assert.Contains(t, rec.Body.String(), `id="total-points">1200<`)

	rec = h.do(http.MethodPost, "/dashboard/redeem", url.Values{"phone": {"5551234567"}, "reward_id": {itoa(coffee.ID)}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = h.do(http.MethodGet, "/dashboard?phone=5551234567", nil, cookie)
	body = rec.Body.String()
	assert.Contains(t, body, `id="total-points">200<`)
	assert.Contains(t, body, "Redeemed Free coffee for 1000 points")
}

func TestDashboardWithoutCustomer(t *testing.T) {
	h := newHarness(t)
	cookie := h.signIn()

	rec := h.do(http.MethodGet, "/dashboard?phone=5550000000", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), msgNoRewardsInfo)

	rec = h.do(http.MethodPost, "/dashboard/points", url.Values{"phone": {"5550000000"}, "award": {"social_sharing"}}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), msgNoRewardsInfo)

	rec = h.do(http.MethodPost, "/dashboard/points", url.Values{"phone": {"5550000000"}, "award": {"free_money"}}, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), msgUpdateFailed)
}

func TestLogoutEndsSession(t *testing.T) {
	h := newHarness(t)
	cookie := h.signIn()

	rec := h.do(http.MethodPost, "/logout", nil, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, DefaultCookieName, cleared[0].Name)
	assert.Equal(t, -1, cleared[0].MaxAge)

	rec = h.do(http.MethodGet, "/customer-lookup", nil, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5551234567", normalizePhone("(555) 123-4567"))
	assert.Equal(t, "", normalizePhone("n/a"))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		rewards.ErrNotFound:           http.StatusNotFound,
		rewards.ErrInsufficientPoints: http.StatusConflict,
		rewards.ErrConcurrentUpdate:   http.StatusConflict,
		rewards.ErrInvalidAmount:      http.StatusUnprocessableEntity,
		backend.ErrDuplicate:          http.StatusConflict,
		backend.ErrNotAuthenticated:   http.StatusUnauthorized,
		backend.ErrUnknownTable:       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
