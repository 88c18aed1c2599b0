package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rafaeljc/pawmatch/internal/billing"
)

func (s *PostgresStore) GetPlanAndUsage(ctx context.Context, shop string) (billing.Subscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var plan string
	var usage int
	err := s.db.QueryRow(ctx, `SELECT plan, usage_count FROM shop_subscriptions WHERE shop = $1`, shop).Scan(&plan, &usage)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Subscription{}, billing.ErrSessionNotFound
	}
	if err != nil {
		return billing.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}

	tier, err := billing.ParseTier(plan)
	if err != nil {
		return billing.Subscription{}, err
	}
	return billing.Subscription{Shop: shop, Tier: tier, Usage: usage}, nil
}

// IncrementUsage adds one in a single statement so concurrent matches never lose updates.
func (s *PostgresStore) IncrementUsage(ctx context.Context, shop string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `
		UPDATE shop_subscriptions
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE shop = $1
	`, shop)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrSessionNotFound
	}
	return nil
}

// EnsureSubscription creates a FREE subscription for a newly seen shop.
// Existing records are left untouched.
func (s *PostgresStore) EnsureSubscription(ctx context.Context, shop string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO shop_subscriptions (shop, plan) VALUES ($1, $2)
		ON CONFLICT (shop) DO NOTHING
	`, shop, string(billing.TierFree))
	if err != nil {
		return fmt.Errorf("failed to ensure subscription: %w", err)
	}
	return nil
}

// RecordMatch appends one analytics event.
func (s *PostgresStore) RecordMatch(ctx context.Context, shop, profileID, ruleID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.Exec(ctx, `INSERT INTO match_events (shop, profile_id, rule_id) VALUES ($1, $2, $3)`, shop, profileID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to record match: %w", err)
	}
	return nil
}
