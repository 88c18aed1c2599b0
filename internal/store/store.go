// Package store is the PostgreSQL data access layer for rules, pet profiles,
// subscriptions, match analytics and shop settings.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/pawmatch/internal/billing"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
	"github.com/rafaeljc/pawmatch/internal/settings"
)

var (
	// ErrDuplicateRuleName is returned when a shop already has a rule with the same name.
	ErrDuplicateRuleName = errors.New("a rule with this name already exists")

	// ErrRuleNotFound is returned by deletes that matched nothing.
	ErrRuleNotFound = errors.New("rule not found")
)

// Compile-time checks against the consumers' interfaces.
var (
	_ RuleRepository                 = (*PostgresStore)(nil)
	_ ProfileRepository              = (*PostgresStore)(nil)
	_ billing.RuleStore              = (*PostgresStore)(nil)
	_ billing.SubscriptionRepository = (*PostgresStore)(nil)
	_ ruleengine.AnalyticsRecorder   = (*PostgresStore)(nil)
	_ settings.Source                = (*PostgresStore)(nil)
)

// PostgresStore implements every repository on a single pgx pool.
type PostgresStore struct {
	db           *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore creates a repository on the given connection pool.
// Each repository call gets queryTimeout as its deadline; zero disables it.
func NewPostgresStore(db *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db, queryTimeout: queryTimeout}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}
