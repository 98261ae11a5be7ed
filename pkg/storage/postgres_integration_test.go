package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const skipIntegrationTests = "STOREFRONT_SKIP_INTEGRATION_TESTS"

// PostgresStoreSuite runs the store contract against a real PostgreSQL.
type PostgresStoreSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	store       *Postgres
	logger      *slog.Logger
	ctx         context.Context
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")
	for i := range 10 {
		if err = s.dbPool.Ping(s.ctx); err == nil {
			break
		}
		s.logger.Info("Waiting for PostgreSQL", "attempt", i+1)
		time.Sleep(2 * time.Second)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	require.NoError(s.T(), Migrate(connStr), "Failed to apply migrations")
	// a second run is a no-op
	require.NoError(s.T(), Migrate(connStr))

	s.store = NewPostgres(s.dbPool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE client_state")
	require.NoError(s.T(), err, "Failed to truncate client_state")
}

func TestPostgresStoreIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) TestContract() {
	runStoreContract(s.T(), s.store)
}

func (s *PostgresStoreSuite) TestUpsertTouchesUpdatedAt() {
	s.Require().NoError(s.store.Set(s.ctx, "cart", []byte("[]")))
	var first time.Time
	s.Require().NoError(s.dbPool.QueryRow(s.ctx, `SELECT updated_at FROM client_state WHERE key = 'cart'`).Scan(&first))

	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.store.Set(s.ctx, "cart", []byte(`[{"id":1}]`)))
	var second time.Time
	s.Require().NoError(s.dbPool.QueryRow(s.ctx, `SELECT updated_at FROM client_state WHERE key = 'cart'`).Scan(&second))

	s.True(second.After(first))
}
