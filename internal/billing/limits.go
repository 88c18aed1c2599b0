package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rafaeljc/pawmatch/internal/ruleengine"
)

// RuleStore is the read side of rule persistence the guard needs.
// Lookups return (nil, nil) when nothing matches.
type RuleStore interface {
	GetRule(ctx context.Context, shop, id string) (*ruleengine.Rule, error)
	FindRuleByName(ctx context.Context, shop, name string) (*ruleengine.Rule, error)
	// CountRules counts the shop's active rules.
	CountRules(ctx context.Context, shop string) (int, error)
}

// PlanResolver resolves a shop's current plan.
type PlanResolver interface {
	PlanFor(ctx context.Context, shop string) (Plan, error)
}

// RuleDraft is the part of a rule being authored that the guard inspects.
type RuleDraft struct {
	// ID is empty when creating.
	ID         string
	Name       string
	ProductIDs []string
}

// RuleLimitGuard validates rule upserts before they are persisted.
type RuleLimitGuard struct {
	rules RuleStore
	plans PlanResolver
}

// NewRuleLimitGuard creates a guard.
func NewRuleLimitGuard(rules RuleStore, plans PlanResolver) *RuleLimitGuard {
	if rules == nil {
		panic("billing: rule store cannot be nil")
	}
	if plans == nil {
		panic("billing: plan resolver cannot be nil")
	}
	return &RuleLimitGuard{rules: rules, plans: plans}
}

// ValidateUpsert returns nil when the draft may be persisted.
//
// Rejections are *ValidationError (structural problems, duplicate names) or
// *PlanLimitError (creating beyond the plan's rule ceiling). The ceiling is
// compared against the shop's active rules but applies to every creation.
// Editing an existing rule is never limited, even at the cap and even when the
// edit reactivates it. Any other error is infrastructure.
func (g *RuleLimitGuard) ValidateUpsert(ctx context.Context, shop string, draft RuleDraft) error {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "Rule name is required"}
	}
	if len(draft.ProductIDs) == 0 {
		return &ValidationError{Field: "product_ids", Message: "Select at least one product"}
	}

	id := strings.TrimSpace(draft.ID)
	isEdit := false
	if id != "" {
		existing, err := g.rules.GetRule(ctx, shop, id)
		if err != nil {
			return fmt.Errorf("failed to load rule %q: %w", id, err)
		}
		isEdit = existing != nil
	}

	sameName, err := g.rules.FindRuleByName(ctx, shop, name)
	if err != nil {
		return fmt.Errorf("failed to look up rule name: %w", err)
	}
	if sameName != nil && (!isEdit || sameName.ID != id) {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("A rule named %q already exists", name)}
	}

	if isEdit {
		return nil
	}

	plan, err := g.plans.PlanFor(ctx, shop)
	if err != nil {
		return err
	}
	if plan.Limits.MaxRules == 0 {
		return nil
	}

	count, err := g.rules.CountRules(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	if count >= plan.Limits.MaxRules {
		return &PlanLimitError{Tier: plan.Tier, MaxRules: plan.Limits.MaxRules}
	}

	return nil
}
