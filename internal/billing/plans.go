// Package billing enforces per-shop subscription limits: the metered match
// quota consulted on every storefront match, and the rule-count ceiling
// consulted when merchants author rules.
package billing

import (
	"fmt"
	"slices"
	"strings"
)

// Tier identifies a subscription plan.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// ParseTier normalizes a stored tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
}

// Feature is a capability unlocked by a plan.
type Feature string

const (
	FeatureBasicRules       Feature = "basic_rules"
	FeatureWeightConditions Feature = "weight_conditions"
	FeatureCustomAttributes Feature = "custom_attributes"
	FeatureAnalytics        Feature = "analytics"
	FeatureBulkOperations   Feature = "bulk_operations"
	FeaturePrioritySupport  Feature = "priority_support"
)

// tierFeatures lists what each tier adds on top of the tier below it, which
// keeps features a strict superset as tiers go up.
var tierFeatures = []struct {
	tier  Tier
	added []Feature
}{
	{TierFree, []Feature{FeatureBasicRules, FeatureWeightConditions}},
	{TierPro, []Feature{FeatureCustomAttributes, FeatureAnalytics, FeatureBulkOperations}},
	{TierEnterprise, []Feature{FeaturePrioritySupport}},
}

// Limits are the numeric ceilings of a plan. Zero means unlimited.
type Limits struct {
	MaxMatches int `json:"max_matches"`
	MaxRules   int `json:"max_rules"`
}

// Plan is a tier with its configured limits and features.
type Plan struct {
	Tier     Tier      `json:"tier"`
	Limits   Limits    `json:"limits"`
	Features []Feature `json:"features"`
}

// HasFeature reports whether the plan includes f.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// UnlimitedMatches reports whether the plan is exempt from match metering.
// Enterprise is exempt by policy, whatever its numeric limit says.
func (p Plan) UnlimitedMatches() bool {
	return p.Tier == TierEnterprise || p.Limits.MaxMatches == 0
}

// AllowsMatch reports whether one more match may be recorded at the given usage.
// The cap itself is not under limit: usage == MaxMatches denies.
func (p Plan) AllowsMatch(usage int) bool {
	if p.UnlimitedMatches() {
		return true
	}
	return usage < p.Limits.MaxMatches
}

// Catalog maps tiers to plans. Limits are configured per tier.
type Catalog struct {
	plans map[Tier]Plan
}

// NewCatalog builds a catalog from per-tier limits. Tiers missing from limits
// get zero (unlimited) values, so callers should always configure all three.
func NewCatalog(limits map[Tier]Limits) *Catalog {
	plans := make(map[Tier]Plan, len(tierFeatures))
	var features []Feature
	for _, tf := range tierFeatures {
		features = append(features, tf.added...)
		plans[tf.tier] = Plan{
			Tier:     tf.tier,
			Limits:   limits[tf.tier],
			Features: slices.Clone(features),
		}
	}
	return &Catalog{plans: plans}
}

// Plan returns the plan for a tier.
func (c *Catalog) Plan(tier Tier) (Plan, error) {
	p, ok := c.plans[tier]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, tier)
	}
	return p, nil
}

// Subscription is the per-shop plan assignment and running usage counter for
// the current billing period.
type Subscription struct {
	Shop  string
	Tier  Tier
	Usage int
}
