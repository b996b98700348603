// Package postgres implements the backend boundary on PostgreSQL: bcrypt credentials, JWT
// access tokens over revocable sessions, a generic row API over allowlisted tables, and a
// transactional change feed written to the outbox.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/auth"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Options configures a Backend.
type Options struct {
	Auth        auth.Config
	SessionTTL  time.Duration
	Autoconfirm bool
	Tables      []backend.TableSpec
	Now         func() time.Time
}

// Backend owns the pool and hands out clients.
type Backend struct {
	pool   *pgxpool.Pool
	opts   Options
	tables map[string]backend.TableSpec
}

// New constructs a Backend over pool.
func New(pool *pgxpool.Pool, opts Options) *Backend {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tables := make(map[string]backend.TableSpec, len(opts.Tables))
	for _, spec := range opts.Tables {
		tables[spec.Name] = spec
	}
	return &Backend{pool: pool, opts: opts, tables: tables}
}

// Migrate applies the embedded schema. It is idempotent.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
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
func (b *Backend) CreateUser(ctx context.Context, email, password, phone string, confirmed bool) (*backend.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := backend.User{ID: uuid.NewString(), Email: normalizeEmail(email), Phone: phone}
	if confirmed {
		now := b.opts.Now().UTC()
		user.ConfirmedAt = &now
	}

	const stmt = `INSERT INTO auth_users (id, email, phone, password_hash, confirmed_at)
        VALUES ($1,$2,$3,$4,$5) RETURNING created_at`

	row := b.pool.QueryRow(ctx, stmt, user.ID, user.Email, nullIfEmpty(phone), hash, user.ConfirmedAt)
	if err := row.Scan(&user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, backend.ErrUserExists
		}
		return nil, err
	}
	return &user, nil
}

// ConfirmUser marks an account as confirmed.
func (b *Backend) ConfirmUser(ctx context.Context, email string) error {
	tag, err := b.pool.Exec(ctx,
		`UPDATE auth_users SET confirmed_at = COALESCE(confirmed_at, $2) WHERE email = $1`,
		normalizeEmail(email), b.opts.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("confirm %s: %w", email, backend.ErrNoRows)
	}
	return nil
}

func (b *Backend) signIn(ctx context.Context, email, password string) (*backend.Session, error) {
	const query = `SELECT id::text, email, COALESCE(phone, ''), password_hash, confirmed_at, created_at
        FROM auth_users WHERE email = $1`

	var (
		user backend.User
		hash string
	)
	err := b.pool.QueryRow(ctx, query, normalizeEmail(email)).
		Scan(&user.ID, &user.Email, &user.Phone, &hash, &user.ConfirmedAt, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, backend.ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, hash) {
		return nil, backend.ErrInvalidCredentials
	}
	if user.ConfirmedAt == nil {
		return nil, backend.ErrEmailNotConfirmed
	}

	now := b.opts.Now()
	sessionID := uuid.NewString()
	expires := now.Add(b.opts.SessionTTL)
	if _, err := b.pool.Exec(ctx,
		`INSERT INTO auth_sessions (id, user_id, expires_at) VALUES ($1,$2,$3)`,
		sessionID, user.ID, expires); err != nil {
		return nil, err
	}

	token, err := auth.Issue(auth.Claims{
		Subject:   user.ID,
		SessionID: sessionID,
		Email:     user.Email,
		Phone:     user.Phone,
		ExpiresAt: expires,
	}, b.opts.Auth, now)
	if err != nil {
		return nil, err
	}
	return &backend.Session{AccessToken: token, ExpiresAt: expires, User: user}, nil
}

// lookupSession returns nil for tokens that fail validation or whose session was revoked.
func (b *Backend) lookupSession(ctx context.Context, token string) (*backend.Session, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := auth.Parse(token, b.opts.Auth)
	if err != nil {
		return nil, nil
	}

	const query = `SELECT u.id::text, u.email, COALESCE(u.phone, ''), u.confirmed_at, u.created_at, s.expires_at
        FROM auth_sessions s JOIN auth_users u ON u.id = s.user_id
        WHERE s.id = $1 AND s.user_id = $2 AND s.revoked_at IS NULL AND s.expires_at > $3`

	var sess backend.Session
	err = b.pool.QueryRow(ctx, query, claims.SessionID, claims.Subject, b.opts.Now()).
		Scan(&sess.User.ID, &sess.User.Email, &sess.User.Phone, &sess.User.ConfirmedAt, &sess.User.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.AccessToken = token
	return &sess, nil
}

func (b *Backend) revoke(ctx context.Context, token string) error {
	claims, err := auth.Parse(token, b.opts.Auth)
	if err != nil {
		return nil
	}
	_, err = b.pool.Exec(ctx,
		`UPDATE auth_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		claims.SessionID, b.opts.Now())
	return err
}

func (b *Backend) table(name string) (backend.TableSpec, error) {
	spec, ok := b.tables[name]
	if !ok {
		return backend.TableSpec{}, fmt.Errorf("%w: %s", backend.ErrUnknownTable, name)
	}
	return spec, nil
}

func (b *Backend) selectRows(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	if _, err := b.table(q.Table); err != nil {
		return nil, err
	}
	stmt, args, err := compileSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (b *Backend) insertRows(ctx context.Context, table string, rows []backend.Row) ([]backend.Row, error) {
	spec, err := b.table(table)
	if err != nil {
		return nil, err
	}

	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]backend.Row, 0, len(rows))
	for _, row := range rows {
		stmt, args, err := compileInsert(table, row)
		if err != nil {
			return nil, err
		}
		result, err := tx.Query(ctx, stmt, args...)
		if err != nil {
			return nil, mapWriteError(err)
		}
		stored, err := collect(result)
		if err != nil {
			return nil, mapWriteError(err)
		}
		out = append(out, stored...)
	}

	if spec.Watch {
		if err := recordChanges(ctx, tx, table, changeInserted, out, b.opts.Now()); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) updateRows(ctx context.Context, q backend.Query, values backend.Row) ([]backend.Row, error) {
	spec, err := b.table(q.Table)
	if err != nil {
		return nil, err
	}
	stmt, args, err := compileUpdate(q, values)
	if err != nil {
		return nil, err
	}

	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	out, err := collect(result)
	if err != nil {
		return nil, mapWriteError(err)
	}

	if spec.Watch {
		if err := recordChanges(ctx, tx, q.Table, changeUpdated, out, b.opts.Now()); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func collect(rows pgx.Rows) ([]backend.Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, backend.Row(m))
	}
	return out, nil
}

func mapWriteError(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", backend.ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
