package ruleengine

import (
	"cmp"
	"slices"
)

// Order returns the rules sorted by priority, highest first.
// The sort is stable: rules sharing a priority keep their input order.
// The input slice is left untouched.
func Order(rules []Rule) []Rule {
	ordered := slices.Clone(rules)
	slices.SortStableFunc(ordered, func(a, b Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return ordered
}
