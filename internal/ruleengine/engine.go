package ruleengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/pawmatch/internal/observability"
)

// UsageGate answers whether a shop may record one more match and consumes a unit.
type UsageGate interface {
	IsUnderLimit(ctx context.Context, shop string) (bool, error)
	RecordMatch(ctx context.Context, shop string) error
}

// AnalyticsRecorder persists match events. Calls are best-effort.
type AnalyticsRecorder interface {
	RecordMatch(ctx context.Context, shop, profileID, ruleID string) error
}

// Dispatcher schedules a side effect without blocking the caller.
// Failures are handled (logged) by the dispatcher, never returned.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, task func(ctx context.Context) error)
}

const (
	modeBatch   = "batch"
	modeProduct = "product"

	// Task names, also used as metric labels.
	TaskRecordAnalytics = "analytics.record_match"
	TaskIncrementUsage  = "usage.increment"
)

// Engine orchestrates condition evaluation, prioritization and usage gating.
// It holds no per-shop state; concurrent calls are safe.
type Engine struct {
	gate       UsageGate
	analytics  AnalyticsRecorder
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, gate UsageGate, analytics AnalyticsRecorder, dispatcher Dispatcher) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		panic("ruleengine: usage gate cannot be nil")
	}
	if analytics == nil {
		panic("ruleengine: analytics recorder cannot be nil")
	}
	if dispatcher == nil {
		panic("ruleengine: dispatcher cannot be nil")
	}

	return &Engine{
		gate:       gate,
		analytics:  analytics,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Match returns every product recommended for the profile (batch mode).
//
// A shop over its quota gets no matches at all and no side effects are recorded.
// Otherwise the product IDs of all passing active rules are unioned in
// first-encounter order, and a single analytics event plus a single usage
// increment are dispatched when at least one rule matched.
//
// The analytics event is credited to the last rule that matched while iterating
// in priority order, i.e. the lowest-priority matching rule.
func (e *Engine) Match(ctx context.Context, profile PetProfile, rules []Rule) ([]string, error) {
	underLimit, err := e.gate.IsUnderLimit(ctx, profile.Shop)
	if err != nil {
		return nil, fmt.Errorf("failed to check usage limit: %w", err)
	}
	if !underLimit {
		observability.MatchEvaluations.WithLabelValues(modeBatch, "limited").Inc()
		e.logger.Debug("usage limit reached, skipping match", slog.String("shop", profile.Shop))
		return []string{}, nil
	}

	productIDs := []string{}
	seen := make(map[string]struct{})
	matched := false
	var attributedRuleID string

	for _, rule := range Order(rules) {
		if !rule.IsActive {
			continue
		}
		if !Evaluate(profile, rule.Conditions) {
			continue
		}

		matched = true
		attributedRuleID = rule.ID

		for _, id := range rule.ProductIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			productIDs = append(productIDs, id)
		}
	}

	if !matched {
		observability.MatchEvaluations.WithLabelValues(modeBatch, "unmatched").Inc()
		return productIDs, nil
	}

	observability.MatchEvaluations.WithLabelValues(modeBatch, "matched").Inc()
	e.recordMatch(ctx, profile, attributedRuleID)

	return productIDs, nil
}

// IsProductMatched decides whether a single product is recommended for the profile.
//
//   - No active rule targets the product: it is recommended to everyone (fallback).
//     This path is free, so the quota is neither checked nor consumed.
//   - A shop over its quota gets isMatched=false with BILLING_LIMIT_REACHED.
//   - Otherwise the first passing rule in priority order wins and is recorded.
//
// MISSING_WEIGHT is reported whenever a targeting rule constrains weight and the
// profile has none, regardless of the outcome.
func (e *Engine) IsProductMatched(ctx context.Context, profile PetProfile, rules []Rule, productID string) (MatchResult, error) {
	result := MatchResult{PetID: profile.ID, Warnings: []Warning{}}

	targeting := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive && rule.Targets(productID) {
			targeting = append(targeting, rule)
		}
	}

	if len(targeting) == 0 {
		observability.MatchEvaluations.WithLabelValues(modeProduct, "fallback").Inc()
		result.IsMatched = true
		return result, nil
	}

	for _, rule := range targeting {
		for _, w := range Diagnose(profile, rule.Conditions) {
			result.Warnings = appendUnique(result.Warnings, w)
		}
	}

	underLimit, err := e.gate.IsUnderLimit(ctx, profile.Shop)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to check usage limit: %w", err)
	}
	if !underLimit {
		observability.MatchEvaluations.WithLabelValues(modeProduct, "limited").Inc()
		result.Warnings = appendUnique(result.Warnings, WarningBillingLimitReached)
		return result, nil
	}

	for _, rule := range Order(targeting) {
		if !Evaluate(profile, rule.Conditions) {
			continue
		}

		observability.MatchEvaluations.WithLabelValues(modeProduct, "matched").Inc()
		e.recordMatch(ctx, profile, rule.ID)
		result.IsMatched = true
		return result, nil
	}

	observability.MatchEvaluations.WithLabelValues(modeProduct, "unmatched").Inc()
	return result, nil
}

// recordMatch schedules the analytics event and the usage increment as two
// independent side effects. The check in IsUnderLimit and this increment are
// not locked together; concurrent requests near the cap may overshoot it slightly.
func (e *Engine) recordMatch(ctx context.Context, profile PetProfile, ruleID string) {
	shop, profileID := profile.Shop, profile.ID

	e.dispatcher.Dispatch(ctx, TaskRecordAnalytics, func(ctx context.Context) error {
		return e.analytics.RecordMatch(ctx, shop, profileID, ruleID)
	})
	e.dispatcher.Dispatch(ctx, TaskIncrementUsage, func(ctx context.Context) error {
		return e.gate.RecordMatch(ctx, shop)
	})
}

func appendUnique(warnings []Warning, w Warning) []Warning {
	for _, existing := range warnings {
		if existing == w {
			return warnings
		}
	}
	return append(warnings, w)
}
