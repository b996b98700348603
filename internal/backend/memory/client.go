package memory

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

// SignIn verifies credentials and binds the new session to the client.
func (c *Client) SignIn(_ context.Context, email, password string) (*backend.Session, error) {
	sess, err := c.backend.signIn(email, password)
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

// SignOut revokes the bound session, if any, and reports SIGNED_OUT.
func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()

	if token != "" {
		c.backend.revoke(token)
	}
	c.events.Publish(backend.AuthEvent{Type: backend.EventSignedOut})
	return nil
}

// GetSession returns the bound session while it is live.
func (c *Client) GetSession(_ context.Context) (*backend.Session, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	return c.backend.lookupSession(token), nil
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
	return c.backend.selectRows(q)
}

// Insert implements backend.Executor.
func (c *Client) Insert(ctx context.Context, table string, rows []backend.Row) ([]backend.Row, error) {
	if err := c.authorize(ctx); err != nil {
		return nil, err
	}
	return c.backend.insertRows(table, rows)
}

// Update implements backend.Executor.
func (c *Client) Update(ctx context.Context, q backend.Query, values backend.Row) ([]backend.Row, error) {
	if err := c.authorize(ctx); err != nil {
		return nil, err
	}
	return c.backend.updateRows(q, values)
}

func (c *Client) authorize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.service {
		return nil
	}
	sess, _ := c.GetSession(ctx)
	if sess == nil {
		return backend.ErrNotAuthenticated
	}
	return nil
}
