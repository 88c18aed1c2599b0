package ruleengine

import "slices"

// Evaluate reports whether the profile satisfies the conditions.
// It is pure and total: filters run in a fixed order and the first failing
// dimension short-circuits. A rule with no constraints matches every profile.
func Evaluate(profile PetProfile, conds Conditions) bool {
	// 1. Type
	if len(conds.PetTypes) > 0 && !slices.Contains(conds.PetTypes, profile.Type) {
		return false
	}

	// 2. Breed
	if len(conds.Breeds) > 0 && !slices.Contains(conds.Breeds, profile.Breed) {
		return false
	}

	// 3. Weight. Fail closed: a weight constraint requires a known weight.
	if conds.WeightRange.Constrained() {
		if profile.WeightGram == nil {
			return false
		}
		w := *profile.WeightGram
		if conds.WeightRange.Min != nil && w < *conds.WeightRange.Min {
			return false
		}
		if conds.WeightRange.Max != nil && w > *conds.WeightRange.Max {
			return false
		}
	}

	// 4. Attribute equality
	for key, want := range conds.Attributes {
		got, ok := profile.Attributes[key]
		if !ok || got != want {
			return false
		}
	}

	return true
}

// Diagnose lists the data the profile is missing for the conditions to be
// evaluated meaningfully. It is independent of the match outcome.
func Diagnose(profile PetProfile, conds Conditions) []Warning {
	var warnings []Warning
	if conds.WeightRange.Constrained() && profile.WeightGram == nil {
		warnings = append(warnings, WarningMissingWeight)
	}
	return warnings
}
