// Package session tracks whether the console operator is signed in. A Store is built per
// request around that request's backend client and follows the client's auth events.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/observability"
)

// LoginPath is where Logout sends the operator.
const LoginPath = "/login"

// ErrAuthFailure wraps every failed sign-in or sign-up.
var ErrAuthFailure = errors.New("authentication failed")

// Navigator moves the operator to another page.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Store holds the session state for one client.
type Store struct {
	client backend.AuthClient
	nav    Navigator
	logger *zap.Logger

	// transition serialises Login, Logout and resync.
	transition sync.Mutex
	// ended is the token of the session the operator left through Logout or a failed Login.
	// A client that still reports it is treated as signed out until the next Login succeeds.
	ended string

	mu      sync.Mutex
	state   State
	session *backend.Session
	subs    map[int]chan State
	nextID  int
	closed  bool
	unwatch func()
}

// New resolves the client's current session and then follows its auth events until ctx ends.
func New(ctx context.Context, client backend.AuthClient, nav Navigator, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	s := &Store{
		client: client,
		nav:    nav,
		logger: logger,
		state:  Unknown(),
		subs:   make(map[int]chan State),
	}

	events, unwatch := client.OnAuthStateChange()
	s.unwatch = unwatch

	s.resync(ctx)

	go s.watch(ctx, events)
	return s
}

func (s *Store) watch(ctx context.Context, events <-chan backend.AuthEvent) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			s.resync(ctx)
		}
	}
}

// resync replaces the state with whatever the client currently reports. Events only say that
// something changed; the client is the source of truth.
func (s *Store) resync(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()

	sess, err := s.client.GetSession(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("refresh session failed", zap.Error(err))
		s.set(Anonymous(), nil)
	case sess == nil:
		s.set(Anonymous(), nil)
	case s.ended != "" && sess.AccessToken == s.ended:
		s.set(Anonymous(), nil)
	default:
		s.set(Authenticated(identityOf(sess.User)), sess)
	}
}

// Login signs in. On failure the store is Anonymous and the error wraps ErrAuthFailure.
func (s *Store) Login(ctx context.Context, email, password string) (Identity, error) {
	s.transition.Lock()
	defer s.transition.Unlock()

	sess, err := s.client.SignIn(ctx, email, password)
	observability.RecordAuthAttempt("login", err == nil)
	if err != nil {
		s.endSession()
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	id := identityOf(sess.User)
	s.ended = ""
	s.set(Authenticated(id), sess)
	return id, nil
}

// Register creates an account. It never changes the session state.
func (s *Store) Register(ctx context.Context, email, password string) (*Identity, error) {
	user, err := s.client.SignUp(ctx, email, password)
	observability.RecordAuthAttempt("register", err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	id := identityOf(*user)
	return &id, nil
}

// Logout signs out and navigates to the login page. The store is Anonymous afterwards even
// when the backend call fails; that failure is still returned.
func (s *Store) Logout(ctx context.Context) error {
	s.transition.Lock()
	err := s.client.SignOut(ctx)
	if err != nil {
		s.logger.Warn("sign out failed", zap.Error(err))
	}
	s.endSession()
	s.transition.Unlock()

	s.nav.Navigate(LoginPath)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated reports whether an operator is signed in.
func (s *Store) IsAuthenticated() bool {
	return s.State().IsAuthenticated()
}

// Identity returns the signed-in operator.
func (s *Store) Identity() (Identity, bool) {
	st := s.State()
	return st.Identity, st.IsAuthenticated()
}

// AccessToken returns the token of the live session, or "".
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// Subscribe delivers the current state and then every change. A subscriber that falls behind
// only sees the latest state. cancel closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	ch <- s.state
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops following auth events and closes all subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	unwatch := s.unwatch
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

// endSession drops to Anonymous and remembers the dropped token. Callers hold transition.
func (s *Store) endSession() {
	if token := s.AccessToken(); token != "" {
		s.ended = token
	}
	s.set(Anonymous(), nil)
}

func (s *Store) set(next State, sess *backend.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = sess
	if next == s.state {
		return
	}
	s.state = next
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
