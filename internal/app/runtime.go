// Package app opens the configured backend and the resources the loyalty binaries share.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/auth"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend/memory"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend/postgres"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/config"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/outbox"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
)

// ErrRequiresPostgres is returned for operations that only the Postgres backend supports.
var ErrRequiresPostgres = errors.New("operation requires the postgres backend")

// Backend is what the binaries need from either backend implementation.
type Backend interface {
	Migrate(ctx context.Context) error
	Client(accessToken string) backend.Client
	ServiceClient() backend.Executor
	CreateUser(ctx context.Context, email, password, phone string, confirmed bool) (*backend.User, error)
	ConfirmUser(ctx context.Context, email string) error
}

// Runtime bundles an opened backend with its pool. Pool is nil for the memory backend.
type Runtime struct {
	Backend Backend
	Pool    *pgxpool.Pool
	Config  config.Config
	Logger  *zap.Logger
}

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	switch cfg.Backend {
	case config.BackendMemory:
		rt.Backend = memoryBackend{memory.New(memory.Options{
			Tables:      rewards.Schema(),
			SessionTTL:  cfg.SessionTTL,
			Autoconfirm: cfg.AuthAutoconfirm,
		})}
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.Pool = pool
		rt.Backend = postgresBackend{postgres.New(pool, postgres.Options{
			Auth:        auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
			SessionTTL:  cfg.SessionTTL,
			Autoconfirm: cfg.AuthAutoconfirm,
			Tables:      rewards.Schema(),
		})}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	logger.Info("backend opened", zap.String("backend", cfg.Backend))
	return rt, nil
}

// Rewards returns an accessor running with service privileges.
func (r *Runtime) Rewards() *rewards.Accessor {
	return rewards.NewAccessor(r.Backend.ServiceClient(), r.Logger)
}

// DLQManager returns a replay manager for the outbox dead-letter table.
func (r *Runtime) DLQManager() (*outbox.DLQManager, error) {
	if r.Pool == nil {
		return nil, ErrRequiresPostgres
	}
	return outbox.NewDLQManager(r.Pool, r.Logger.Named("dlq"), r.Config.DLQMaxRetries, r.Config.DLQBaseDelay), nil
}

// Close releases the pool, if any.
func (r *Runtime) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

type memoryBackend struct{ *memory.Backend }

// Migrate is a no-op; tables exist from construction.
func (memoryBackend) Migrate(context.Context) error { return nil }

func (b memoryBackend) Client(token string) backend.Client { return b.Backend.Client(token) }

func (b memoryBackend) ServiceClient() backend.Executor { return b.Backend.ServiceClient() }

type postgresBackend struct{ *postgres.Backend }

func (b postgresBackend) Client(token string) backend.Client { return b.Backend.Client(token) }

func (b postgresBackend) ServiceClient() backend.Executor { return b.Backend.ServiceClient() }
