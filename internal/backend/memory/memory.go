// Package memory implements the backend boundary in process, with the same auth and row
// semantics as the Postgres backend. It backs tests and BACKEND=memory local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/auth"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

// Options configures a Backend.
type Options struct {
	Tables      []backend.TableSpec
	SessionTTL  time.Duration
	Autoconfirm bool
	Now         func() time.Time
}

type userRecord struct {
	user         backend.User
	passwordHash string
}

type sessionRecord struct {
	userEmail string
	expiresAt time.Time
	revoked   bool
}

type table struct {
	spec   backend.TableSpec
	rows   []backend.Row
	nextID int64
}

// Backend holds all accounts, sessions and record sets.
type Backend struct {
	mu       sync.Mutex
	opts     Options
	users    map[string]*userRecord
	sessions map[string]*sessionRecord
	tables   map[string]*table
}

// New creates an empty Backend exposing opts.Tables.
func New(opts Options) *Backend {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Backend{
		opts:     opts,
		users:    make(map[string]*userRecord),
		sessions: make(map[string]*sessionRecord),
		tables:   make(map[string]*table),
	}
	for _, spec := range opts.Tables {
		b.tables[spec.Name] = &table{spec: spec}
	}
	return b
}

// Client returns a client restored from accessToken; an empty token yields a signed-out client.
func (b *Backend) Client(accessToken string) *Client {
	return &Client{backend: b, token: accessToken}
}

// ServiceClient returns a client whose row operations skip the session check.
func (b *Backend) ServiceClient() *Client {
	return &Client{backend: b, service: true}
}

// CreateUser registers an account directly, optionally already confirmed.
func (b *Backend) CreateUser(_ context.Context, email, password, phone string, confirmed bool) (*backend.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := b.users[key]; exists {
		return nil, backend.ErrUserExists
	}
	now := b.opts.Now().UTC()
	user := backend.User{ID: uuid.NewString(), Email: key, Phone: phone, CreatedAt: now}
	if confirmed {
		user.ConfirmedAt = &now
	}
	b.users[key] = &userRecord{user: user, passwordHash: hash}
	return &user, nil
}

// ConfirmUser marks an account as confirmed.
func (b *Backend) ConfirmUser(_ context.Context, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.users[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("confirm %s: %w", email, backend.ErrNoRows)
	}
	now := b.opts.Now().UTC()
	rec.user.ConfirmedAt = &now
	return nil
}

func (b *Backend) signIn(email, password string) (*backend.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.users[normalizeEmail(email)]
	if !ok || !auth.CheckPassword(password, rec.passwordHash) {
		return nil, backend.ErrInvalidCredentials
	}
	if rec.user.ConfirmedAt == nil {
		return nil, backend.ErrEmailNotConfirmed
	}

	token := uuid.NewString()
	expires := b.opts.Now().Add(b.opts.SessionTTL)
	b.sessions[token] = &sessionRecord{userEmail: rec.user.Email, expiresAt: expires}
	return &backend.Session{AccessToken: token, ExpiresAt: expires, User: rec.user}, nil
}

func (b *Backend) lookupSession(token string) *backend.Session {
	if token == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[token]
	if !ok || sess.revoked || !b.opts.Now().Before(sess.expiresAt) {
		return nil
	}
	rec, ok := b.users[sess.userEmail]
	if !ok {
		return nil
	}
	return &backend.Session{AccessToken: token, ExpiresAt: sess.expiresAt, User: rec.user}
}

func (b *Backend) revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sess, ok := b.sessions[token]; ok {
		sess.revoked = true
	}
}

func (b *Backend) table(name string) (*table, error) {
	if err := backend.ValidateIdentifier(name); err != nil {
		return nil, err
	}
	t, ok := b.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownTable, name)
	}
	return t, nil
}

func (b *Backend) selectRows(q backend.Query) ([]backend.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table(q.Table)
	if err != nil {
		return nil, err
	}

	out := make([]backend.Row, 0)
	for _, row := range t.rows {
		if matches(row, q.Filters) {
			out = append(out, cloneRow(row))
		}
	}
	if q.Order != nil {
		col, asc := q.Order.Column, q.Order.Ascending
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][col], out[j][col])
			if asc {
				return c < 0
			}
			return c > 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (b *Backend) insertRows(tableName string, rows []backend.Row) ([]backend.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table(tableName)
	if err != nil {
		return nil, err
	}

	staged := make([]backend.Row, 0, len(rows))
	nextID := t.nextID
	for _, row := range rows {
		if len(row) == 0 {
			return nil, fmt.Errorf("%w: empty row", backend.ErrInvalidQuery)
		}
		stored := cloneRow(row)
		for col := range stored {
			if err := backend.ValidateIdentifier(col); err != nil {
				return nil, err
			}
		}
		if _, ok := stored["id"]; !ok {
			nextID++
			stored["id"] = nextID
		}
		if err := t.checkUnique(stored, append(t.rows, staged...), nil); err != nil {
			return nil, err
		}
		staged = append(staged, stored)
	}

	t.nextID = nextID
	t.rows = append(t.rows, staged...)
	out := make([]backend.Row, 0, len(staged))
	for _, row := range staged {
		out = append(out, cloneRow(row))
	}
	return out, nil
}

func (b *Backend) updateRows(q backend.Query, values backend.Row) ([]backend.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	for col := range values {
		if err := backend.ValidateIdentifier(col); err != nil {
			return nil, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.table(q.Table)
	if err != nil {
		return nil, err
	}

	idx := make([]int, 0)
	for i, row := range t.rows {
		if matches(row, q.Filters) {
			idx = append(idx, i)
		}
	}

	updated := make([]backend.Row, 0, len(idx))
	for _, i := range idx {
		next := cloneRow(t.rows[i])
		for col, v := range values {
			next[col] = v
		}
		if err := t.checkUnique(next, t.rows, &i); err != nil {
			return nil, err
		}
		updated = append(updated, next)
	}
	for n, i := range idx {
		t.rows[i] = updated[n]
	}

	out := make([]backend.Row, 0, len(updated))
	for _, row := range updated {
		out = append(out, cloneRow(row))
	}
	return out, nil
}

func (t *table) checkUnique(candidate backend.Row, existing []backend.Row, skip *int) error {
	for _, col := range t.spec.Unique {
		v, ok := candidate[col]
		if !ok || v == nil {
			continue
		}
		for i, row := range existing {
			if skip != nil && i == *skip {
				continue
			}
			if compareValues(row[col], v) == 0 {
				return fmt.Errorf("%w: %s.%s", backend.ErrDuplicate, t.spec.Name, col)
			}
		}
	}
	return nil
}

func matches(row backend.Row, filters []backend.Filter) bool {
	for _, f := range filters {
		if compareValues(row[f.Column], f.Value) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders numbers numerically, times chronologically and everything else by its
// string form. nil sorts first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func cloneRow(row backend.Row) backend.Row {
	out := make(backend.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
