// Package backend defines the boundary to the hosted backend the loyalty console delegates to:
// email/password authentication with an auth-state channel, and a generic row API over named
// record sets.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoRows is returned by Single when the filter matched nothing.
	ErrNoRows = errors.New("no rows matched")
	// ErrMultipleRows is returned by Single when the filter matched more than one row.
	ErrMultipleRows = errors.New("multiple rows matched")
	// ErrDuplicate is returned when an insert or update violates a unique column.
	ErrDuplicate = errors.New("duplicate value for unique column")
	// ErrUnknownTable is returned for tables the backend does not expose.
	ErrUnknownTable = errors.New("unknown table")
	// ErrInvalidQuery is returned for malformed identifiers or empty writes.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotAuthenticated is returned by data operations on a client without a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailNotConfirmed is returned when signing in before the address was confirmed.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrUserExists is returned by SignUp for an address that is already registered.
	ErrUserExists = errors.New("user already registered")
)

// Row is a single record as returned by the row API, keyed by column name.
type Row map[string]any

// User is an account known to the backend.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Session is a signed-in user together with its access token.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// AuthEventType names an auth-state transition reported by a client.
type AuthEventType string

const (
	EventSignedIn  AuthEventType = "SIGNED_IN"
	EventSignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered on the channel returned by OnAuthStateChange.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}

// AuthClient covers the authentication half of the backend.
type AuthClient interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp creates an account. It never signs the caller in.
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	// GetSession returns the client's live session, or nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
	// OnAuthStateChange subscribes to this client's auth events. The returned func
	// unsubscribes and closes the channel.
	OnAuthStateChange() (<-chan AuthEvent, func())
}

// Executor runs row operations against a record set.
type Executor interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)
	Update(ctx context.Context, q Query, values Row) ([]Row, error)
}

// Client is a backend handle bound to at most one session.
type Client interface {
	AuthClient
	Executor
}

// TableSpec describes a record set exposed through the row API.
type TableSpec struct {
	Name string
	// Unique lists columns whose values must not repeat across rows.
	Unique []string
	// Watch records inserts and updates in the change feed.
	Watch bool
}
