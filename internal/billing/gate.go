package billing

import (
	"context"
	"fmt"
	"log/slog"
)

// SubscriptionRepository loads and meters shop subscriptions.
type SubscriptionRepository interface {
	// GetPlanAndUsage returns ErrSessionNotFound when the shop has no record.
	GetPlanAndUsage(ctx context.Context, shop string) (Subscription, error)

	// IncrementUsage adds exactly one to the usage counter, atomically at the storage layer.
	IncrementUsage(ctx context.Context, shop string) error
}

// UsageStatus is the quota view shown to merchants and storefront widgets.
type UsageStatus struct {
	Plan  Plan `json:"plan"`
	Usage int  `json:"usage"`

	// Remaining is -1 for unlimited plans.
	Remaining int `json:"remaining"`

	// Disabled drives the limited storefront state once the quota is exhausted.
	Disabled bool `json:"disabled"`
}

// Gate is the metered usage gate.
//
// Checking and consuming are separate calls and are not locked together:
// two concurrent requests near the cap can both pass the check. Metering is
// approximate by contract.
type Gate struct {
	subs    SubscriptionRepository
	catalog *Catalog
	logger  *slog.Logger
}

// NewGate creates a usage gate. If logger is nil, it defaults to slog.Default().
func NewGate(logger *slog.Logger, subs SubscriptionRepository, catalog *Catalog) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if subs == nil {
		panic("billing: subscription repository cannot be nil")
	}
	if catalog == nil {
		panic("billing: plan catalog cannot be nil")
	}
	return &Gate{subs: subs, catalog: catalog, logger: logger}
}

// IsUnderLimit reports whether the shop may record one more match.
func (g *Gate) IsUnderLimit(ctx context.Context, shop string) (bool, error) {
	plan, sub, err := g.load(ctx, shop)
	if err != nil {
		return false, err
	}
	return plan.AllowsMatch(sub.Usage), nil
}

// RecordMatch consumes one unit of the shop's quota.
func (g *Gate) RecordMatch(ctx context.Context, shop string) error {
	if err := g.subs.IncrementUsage(ctx, shop); err != nil {
		return fmt.Errorf("failed to increment usage for shop %q: %w", shop, err)
	}
	return nil
}

// Status returns the shop's plan, usage and whether matching is disabled.
func (g *Gate) Status(ctx context.Context, shop string) (UsageStatus, error) {
	plan, sub, err := g.load(ctx, shop)
	if err != nil {
		return UsageStatus{}, err
	}

	remaining := -1
	if !plan.UnlimitedMatches() {
		remaining = max(plan.Limits.MaxMatches-sub.Usage, 0)
	}

	return UsageStatus{
		Plan:      plan,
		Usage:     sub.Usage,
		Remaining: remaining,
		Disabled:  !plan.AllowsMatch(sub.Usage),
	}, nil
}

// PlanFor resolves the shop's current plan.
func (g *Gate) PlanFor(ctx context.Context, shop string) (Plan, error) {
	plan, _, err := g.load(ctx, shop)
	return plan, err
}

func (g *Gate) load(ctx context.Context, shop string) (Plan, Subscription, error) {
	sub, err := g.subs.GetPlanAndUsage(ctx, shop)
	if err != nil {
		return Plan{}, Subscription{}, fmt.Errorf("failed to load subscription for shop %q: %w", shop, err)
	}

	plan, err := g.catalog.Plan(sub.Tier)
	if err != nil {
		g.logger.Error("subscription references an unknown plan",
			slog.String("shop", shop),
			slog.String("tier", string(sub.Tier)),
		)
		return Plan{}, Subscription{}, err
	}

	return plan, sub, nil
}
