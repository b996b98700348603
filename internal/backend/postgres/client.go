package postgres

import (
	"context"
	"sync"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

// Client is a backend.Client bound to one Backend.
type Client struct {
	backend *Backend
	service bool

	mu     sync.Mutex
	token  string
	events backend.AuthEvents
}

var _ backend.Client = (*Client)(nil)

// SignIn verifies credentials, opens a session and binds it to the client.
func (c *Client) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	sess, err := c.backend.signIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = sess.AccessToken
	c.mu.Unlock()

	c.events.Publish(backend.AuthEvent{Type: backend.EventSignedIn, Session: sess})
	return sess, nil
}

// SignUp registers an account; it is confirmed only when the backend autoconfirms.
func (c *Client) SignUp(ctx context.Context, email, password string) (*backend.User, error) {
	return c.backend.CreateUser(ctx, email, password, "", c.backend.opts.Autoconfirm)
}

// SignOut revokes the bound session, if any, and reports SIGNED_OUT. The client is signed out
// locally even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()

	var err error
	if token != "" {
		err = c.backend.revoke(ctx, token)
	}
	c.events.Publish(backend.AuthEvent{Type: backend.EventSignedOut})
	return err
}

// GetSession returns the bound session while it is live.
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	return c.backend.lookupSession(ctx, token)
}

// OnAuthStateChange subscribes to this client's auth events.
func (c *Client) OnAuthStateChange() (<-chan backend.AuthEvent, func()) {
	return c.events.Subscribe()
}

// Select implements backend.Executor.
func (c *Client) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	if err := c.authorize(ctx); err != nil {
		return nil, err
	}
	return c.backend.selectRows(ctx, q)
}

// Insert implements backend.Executor.
func (c *Client) Insert(ctx context.Context, table string, rows []backend.Row) ([]backend.Row, error) {
	if err := c.authorize(ctx); err != nil {
		return nil, err
	}
	return c.backend.insertRows(ctx, table, rows)
}

// Update implements backend.Executor.
func (c *Client) Update(ctx context.Context, q backend.Query, values backend.Row) ([]backend.Row, error) {
	if err := c.authorize(ctx); err != nil {
		return nil, err
	}
	return c.backend.updateRows(ctx, q, values)
}

func (c *Client) authorize(ctx context.Context) error {
	if c.service {
		return nil
	}
	sess, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return backend.ErrNotAuthenticated
	}
	return nil
}
