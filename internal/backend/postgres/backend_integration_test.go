//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/auth"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

func startBackend(t *testing.T) (*Backend, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("loyalty"),
		postgrescontainer.WithUsername("loyalty"),
		postgrescontainer.WithPassword("loyalty"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	b := New(pool, Options{
		Auth:       auth.Config{Secret: "integration", Issuer: "loyalty.test"},
		SessionTTL: time.Hour,
		Tables: []backend.TableSpec{
			{Name: "customer_rewards", Unique: []string{"phone"}, Watch: true},
			{Name: "recent_activities", Watch: true},
			{Name: "available_rewards", Unique: []string{"description"}},
		},
	})
	require.NoError(t, b.Migrate(ctx))
	require.NoError(t, b.Migrate(ctx), "migrations must be re-runnable")
	return b, pool
}

func TestSessionsSurviveAcrossClients(t *testing.T) {
	ctx := context.Background()
	b, _ := startBackend(t)

	_, err := b.CreateUser(ctx, "clerk@example.com", "secret", "", false)
	require.NoError(t, err)

	_, err = b.CreateUser(ctx, "CLERK@example.com", "other", "", false)
	require.ErrorIs(t, err, backend.ErrUserExists)

	client := b.Client("")
	_, err = client.SignIn(ctx, "clerk@example.com", "secret")
	require.ErrorIs(t, err, backend.ErrEmailNotConfirmed)

	require.NoError(t, b.ConfirmUser(ctx, "clerk@example.com"))
	sess, err := client.SignIn(ctx, "clerk@example.com", "secret")
	require.NoError(t, err)

	restored, err := b.Client(sess.AccessToken).GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, sess.User.ID, restored.User.ID)

	require.NoError(t, client.SignOut(ctx))
	restored, err = b.Client(sess.AccessToken).GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, restored)
}

func TestWatchedWritesLandInOutbox(t *testing.T) {
	ctx := context.Background()
	b, pool := startBackend(t)
	svc := b.ServiceClient()

	_, err := backend.From(svc, "customer_rewards").Insert(ctx, backend.Row{
		"phone": "5551234567", "first_name": "Ada", "last_name": "Lovelace", "total_points": 200,
	})
	require.NoError(t, err)

	_, err = backend.From(svc, "customer_rewards").Insert(ctx, backend.Row{
		"phone": "5551234567", "first_name": "Dup", "last_name": "Dup", "total_points": 0,
	})
	require.ErrorIs(t, err, backend.ErrDuplicate)

	updated, err := backend.From(svc, "customer_rewards").
		Eq("phone", "5551234567").Eq("total_points", 200).
		Update(ctx, backend.Row{"total_points": 1200})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	stale, err := backend.From(svc, "customer_rewards").
		Eq("phone", "5551234567").Eq("total_points", 200).
		Update(ctx, backend.Row{"total_points": 0})
	require.NoError(t, err)
	require.Empty(t, stale)

	_, err = backend.From(svc, "available_rewards").Insert(ctx, backend.Row{"description": "Free coffee", "point_cost": 300})
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = 'customer_rewards_changes'`).Scan(&count))
	require.Equal(t, 2, count)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_type = 'available_rewards'`).Scan(&count))
	require.Zero(t, count)
}

func TestRowsRequireLiveSession(t *testing.T) {
	ctx := context.Background()
	b, _ := startBackend(t)

	_, err := backend.From(b.Client(""), "customer_rewards").Select(ctx)
	require.ErrorIs(t, err, backend.ErrNotAuthenticated)

	_, err = backend.From(b.ServiceClient(), "auth_users").Select(ctx)
	require.ErrorIs(t, err, backend.ErrUnknownTable)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
