//go:build integration

// Package pgtest starts a PostgreSQL container with the embedded schema for
// integration tests. Run with: go test -tags integration ./...
package pgtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"kabala/internal/core/id"
	"kabala/internal/core/tenant"
	"kabala/internal/infrastructure/migration"
	"kabala/internal/infrastructure/storage/postgres"
)

var (
	// Shared container for all tests in a package
	sharedMu  sync.Mutex
	sharedDSN string
)

// DB is a migrated database shared by the tests of one package.
type DB struct {
	Pool      *pgxpool.Pool
	TxManager *postgres.TxManager
	Registry  *tenant.PostgresRegistry
}

// New returns a pool on the shared container, starting and migrating it on
// first use. Tests isolate their data by creating their own tenants.
func New(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	dsn := sharedContainer(t)

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             dsn,
		MaxConns:        32,
		ApplicationName: "kabala-integration",
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &DB{
		Pool:      pool,
		TxManager: postgres.NewTxManager(pool, 30*time.Second),
		Registry:  tenant.NewPostgresRegistry(pool),
	}
}

func sharedContainer(t *testing.T) string {
	t.Helper()

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedDSN != "" {
		return sharedDSN
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("kabala_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	m, err := migration.New(pool)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Close())

	sharedDSN = dsn
	return dsn
}

// Tenant registers a fresh active tenant and returns its id.
func (db *DB) Tenant(t *testing.T) string {
	t.Helper()
	tenantID := id.New().String()
	tn := &tenant.Tenant{
		ID:          tenantID,
		Slug:        "t-" + tenantID,
		DisplayName: t.Name(),
		Status:      tenant.StatusActive,
	}
	require.NoError(t, db.Registry.Create(context.Background(), tn))
	return tn.ID
}
