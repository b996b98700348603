package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend/memory"
)

func newBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(memory.Options{SessionTTL: time.Hour})
	_, err := b.CreateUser(context.Background(), "clerk@example.com", "secret", "5550001111", true)
	require.NoError(t, err)
	return b
}

type recordingNavigator struct {
	paths []string
}

func (n *recordingNavigator) Navigate(path string) { n.paths = append(n.paths, path) }

func TestNewResolvesAnonymousWithoutSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, newBackend(t).Client(""), nil, zaptest.NewLogger(t))
	require.Equal(t, Anonymous(), s.State())
	require.False(t, s.IsAuthenticated())
}

func TestNewRestoresLiveSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newBackend(t)

	sess, err := b.Client("").SignIn(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)

	s := New(ctx, b.Client(sess.AccessToken), nil, zaptest.NewLogger(t))
	id, ok := s.Identity()
	require.True(t, ok)
	require.Equal(t, "clerk@example.com", id.Email)
	require.Equal(t, sess.AccessToken, s.AccessToken())
}

func TestNewTreatsBackendErrorAsAnonymous(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, &brokenClient{Client: newBackend(t).Client("")}, nil, zaptest.NewLogger(t))
	require.Equal(t, StatusAnonymous, s.State().Status)
}

func TestLoginAndLogout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nav := &recordingNavigator{}
	s := New(ctx, newBackend(t).Client(""), nav, zaptest.NewLogger(t))

	_, err := s.Login(ctx, "clerk@example.com", "nope")
	require.ErrorIs(t, err, ErrAuthFailure)
	require.ErrorIs(t, err, backend.ErrInvalidCredentials)
	require.Equal(t, Anonymous(), s.State())

	id, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "5550001111", id.Phone)
	require.Equal(t, Authenticated(id), s.State())
	require.NotEmpty(t, s.AccessToken())

	require.NoError(t, s.Logout(ctx))
	require.Equal(t, Anonymous(), s.State())
	require.Empty(t, s.AccessToken())
	require.Equal(t, []string{LoginPath}, nav.paths)
}

func TestLogoutIsAnonymousEvenWhenBackendFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newStickyClient(newBackend(t).Client(""))
	nav := &recordingNavigator{}
	s := New(ctx, client, nav, zaptest.NewLogger(t))
	_, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)

	err = s.Logout(ctx)
	require.Error(t, err)
	require.Equal(t, Anonymous(), s.State())
	require.Equal(t, []string{LoginPath}, nav.paths)

	client.emit(t, s, backend.EventSignedIn)
	require.Equal(t, Anonymous(), s.State())
	require.Empty(t, s.AccessToken())
}

func TestFailedLoginDropsSessionTheClientKeeps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newStickyClient(newBackend(t).Client(""))
	s := New(ctx, client, nil, zaptest.NewLogger(t))
	_, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)

	_, err = s.Login(ctx, "clerk@example.com", "wrong")
	require.ErrorIs(t, err, ErrAuthFailure)
	client.emit(t, s, backend.EventSignedIn)
	require.Equal(t, Anonymous(), s.State())

	id, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)
	client.emit(t, s, backend.EventSignedIn)
	require.Equal(t, Authenticated(id), s.State())
}

func TestRegisterNeverAuthenticates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, newBackend(t).Client(""), nil, zaptest.NewLogger(t))

	id, err := s.Register(ctx, "new@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "new@example.com", id.Email)
	require.False(t, s.IsAuthenticated())

	id, err = s.Register(ctx, "clerk@example.com", "pw")
	require.Nil(t, id)
	require.ErrorIs(t, err, ErrAuthFailure)
	require.ErrorIs(t, err, backend.ErrUserExists)
}

func TestSubscribeSeesCurrentThenDistinctChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, newBackend(t).Client(""), nil, zaptest.NewLogger(t))
	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.Equal(t, Anonymous(), <-states)

	_, _ = s.Login(ctx, "clerk@example.com", "wrong")
	select {
	case st := <-states:
		t.Fatalf("unexpected duplicate state %v", st)
	default:
	}

	id, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, Authenticated(id), <-states)
}

func TestSlowSubscriberSeesLatestState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, newBackend(t).Client(""), nil, zaptest.NewLogger(t))
	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	_, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	require.Equal(t, Anonymous(), <-states)
}

func TestSignedOutElsewhereIsObserved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newBackend(t).Client("")
	s := New(ctx, client, nil, zaptest.NewLogger(t))
	_, err := s.Login(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, client.SignOut(ctx))
	require.Eventually(t, func() bool {
		return s.State() == Anonymous()
	}, time.Second, 5*time.Millisecond)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, newBackend(t).Client(""), nil, zaptest.NewLogger(t))
	states, _ := s.Subscribe()
	<-states

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-states:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

type brokenClient struct {
	backend.Client
}

func (c *brokenClient) GetSession(context.Context) (*backend.Session, error) {
	return nil, errors.New("backend unreachable")
}

// stickyClient fails SignOut without dropping its session and lets tests publish auth events.
type stickyClient struct {
	backend.Client
	events  backend.AuthEvents
	lookups atomic.Int64
}

func newStickyClient(c backend.Client) *stickyClient {
	return &stickyClient{Client: c}
}

func (c *stickyClient) SignOut(context.Context) error {
	return errors.New("network down")
}

func (c *stickyClient) GetSession(ctx context.Context) (*backend.Session, error) {
	defer c.lookups.Add(1)
	return c.Client.GetSession(ctx)
}

func (c *stickyClient) OnAuthStateChange() (<-chan backend.AuthEvent, func()) {
	return c.events.Subscribe()
}

// emit publishes an event and waits until the store has resynced from it.
func (c *stickyClient) emit(t *testing.T, s *Store, typ backend.AuthEventType) {
	t.Helper()
	before := c.lookups.Load()
	c.events.Publish(backend.AuthEvent{Type: typ})
	require.Eventually(t, func() bool {
		return c.lookups.Load() > before
	}, time.Second, 5*time.Millisecond)
	s.transition.Lock()
	s.transition.Unlock()
}
