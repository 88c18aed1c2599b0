// Package testsupport starts throwaway PostgreSQL and Redis containers for
// integration tests and reads Prometheus metrics for assertions.
package testsupport

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/pawmatch/internal/config"
	"github.com/rafaeljc/pawmatch/internal/database"
)

// PostgresContainer is an ephemeral, fully migrated PostgreSQL.
type PostgresContainer struct {
	Container        testcontainers.Container
	DB               *pgxpool.Pool
	ConnectionString string
}

// Terminate closes the pool and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// Truncate empties every application table, for isolation between subtests.
func (c *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := c.DB.Exec(ctx, `TRUNCATE shop_subscriptions, product_rules, pet_profiles, match_events, shop_settings RESTART IDENTITY`)
	return err
}

// StartPostgresContainer runs postgres:16-alpine and applies the embedded
// migrations with the same code path the service uses at startup.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pawmatch_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	dbCfg := &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}

	if err := database.Migrate(dbCfg.MigrationURL()); err != nil {
		_ = ctr.Terminate(ctx)
		return nil, err
	}

	pool, err := database.NewPostgresPool(ctx, dbCfg)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	return &PostgresContainer{Container: ctr, DB: pool, ConnectionString: connStr}, nil
}
