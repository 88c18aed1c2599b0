package config

import "fmt"

// PlanLimits holds the numeric ceilings of one tier. Zero means unlimited.
type PlanLimits struct {
	MaxMatches int
	MaxRules   int
}

// BillingConfig carries per-tier limits. Tiers and their features are fixed;
// only the ceilings are tunable.
type BillingConfig struct {
	FreeMaxMatches       int `envconfig:"FREE_MAX_MATCHES" default:"100" validate:"min=0"`
	FreeMaxRules         int `envconfig:"FREE_MAX_RULES" default:"5" validate:"min=0"`
	ProMaxMatches        int `envconfig:"PRO_MAX_MATCHES" default:"5000" validate:"min=0"`
	ProMaxRules          int `envconfig:"PRO_MAX_RULES" default:"50" validate:"min=0"`
	EnterpriseMaxMatches int `envconfig:"ENTERPRISE_MAX_MATCHES" default:"0" validate:"min=0"`
	EnterpriseMaxRules   int `envconfig:"ENTERPRISE_MAX_RULES" default:"0" validate:"min=0"`
}

// Free returns the FREE tier limits.
func (c *BillingConfig) Free() PlanLimits {
	return PlanLimits{MaxMatches: c.FreeMaxMatches, MaxRules: c.FreeMaxRules}
}

// Pro returns the PRO tier limits.
func (c *BillingConfig) Pro() PlanLimits {
	return PlanLimits{MaxMatches: c.ProMaxMatches, MaxRules: c.ProMaxRules}
}

// Enterprise returns the ENTERPRISE tier limits.
func (c *BillingConfig) Enterprise() PlanLimits {
	return PlanLimits{MaxMatches: c.EnterpriseMaxMatches, MaxRules: c.EnterpriseMaxRules}
}

// Validate checks that tiers are ordered: a higher tier never has a tighter
// ceiling than the tier below it.
func (c *BillingConfig) Validate() error {
	tiers := []struct {
		name   string
		limits PlanLimits
	}{
		{"FREE", c.Free()},
		{"PRO", c.Pro()},
		{"ENTERPRISE", c.Enterprise()},
	}

	for i := 1; i < len(tiers); i++ {
		lower, higher := tiers[i-1], tiers[i]
		if tighter(higher.limits.MaxMatches, lower.limits.MaxMatches) {
			return fmt.Errorf("billing: %s max matches (%d) is tighter than %s (%d)",
				higher.name, higher.limits.MaxMatches, lower.name, lower.limits.MaxMatches)
		}
		if tighter(higher.limits.MaxRules, lower.limits.MaxRules) {
			return fmt.Errorf("billing: %s max rules (%d) is tighter than %s (%d)",
				higher.name, higher.limits.MaxRules, lower.name, lower.limits.MaxRules)
		}
	}
	return nil
}

// tighter reports whether limit a is stricter than b, treating 0 as unlimited.
func tighter(a, b int) bool {
	if a == 0 {
		return false
	}
	return b == 0 || a < b
}
