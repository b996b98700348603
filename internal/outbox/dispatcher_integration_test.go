//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/auth"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend/postgres"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
)

func startPostgres(t *testing.T) (*pgxpool.Pool, *postgres.Backend) {
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

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			return false
		}
		return true
	}, 30*time.Second, time.Second)
	t.Cleanup(pool.Close)

	b := postgres.New(pool, postgres.Options{
		Auth:   auth.Config{Secret: "integration", Issuer: "loyalty.test"},
		Tables: rewards.Schema(),
	})
	require.NoError(t, b.Migrate(ctx))
	return pool, b
}

func TestDispatcherPublishesChangeFeed(t *testing.T) {
	ctx := context.Background()
	pool, b := startPostgres(t)

	acc := rewards.NewAccessor(b.ServiceClient(), zaptest.NewLogger(t))
	_, err := acc.AddCustomer(ctx, rewards.CustomerRewards{Phone: "5551234567", FirstName: "Ada", LastName: "Lovelace", TotalPoints: 200})
	require.NoError(t, err)
	_, err = acc.AwardPoints(ctx, "5551234567", 1000, "Google review")
	require.NoError(t, err)

	writer := &recordingWriter{}
	d := NewDispatcher(pool, writer, zaptest.NewLogger(t), time.Second, 10)
	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Len(t, writer.batches["customer_rewards_changes"], 2)
	require.Len(t, writer.batches["recent_activities_changes"], 1)

	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "published rows are not redelivered")
}

type slowWriter struct {
	recordingWriter
	delay time.Duration
}

func (w *slowWriter) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	time.Sleep(w.delay)
	return w.recordingWriter.WriteMessages(ctx, topic, msgs...)
}

func batchDurationSum(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, batchDuration.Write(&m))
	return m.GetHistogram().GetSampleSum()
}

func TestBatchDurationCoversDelivery(t *testing.T) {
	ctx := context.Background()
	pool, b := startPostgres(t)

	_, err := backend.From(b.ServiceClient(), rewards.TableCustomerRewards).Insert(ctx, backend.Row{
		"phone": "5551234567", "first_name": "Ada", "last_name": "Lovelace", "total_points": 0,
	})
	require.NoError(t, err)

	before := batchDurationSum(t)
	writer := &slowWriter{delay: 200 * time.Millisecond}
	n, err := NewDispatcher(pool, writer, zaptest.NewLogger(t), time.Second, 10).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.GreaterOrEqual(t, batchDurationSum(t)-before, 0.2)
}

func TestFailedDeliveryIsReplayedFromDLQ(t *testing.T) {
	ctx := context.Background()
	pool, b := startPostgres(t)

	_, err := backend.From(b.ServiceClient(), rewards.TableCustomerRewards).Insert(ctx, backend.Row{
		"phone": "5551234567", "first_name": "Ada", "last_name": "Lovelace", "total_points": 0,
	})
	require.NoError(t, err)

	d := NewDispatcher(pool, &recordingWriter{err: errors.New("broker down")}, zaptest.NewLogger(t), time.Second, 10)
	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var queued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&queued))
	require.Equal(t, 1, queued)

	report, err := NewDLQManager(pool, zaptest.NewLogger(t), 3, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, ReplayReport{Requeued: 1}, report)

	writer := &recordingWriter{}
	n, err = NewDispatcher(pool, writer, zaptest.NewLogger(t), time.Second, 10).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, writer.batches["customer_rewards_changes"], 1)
}
