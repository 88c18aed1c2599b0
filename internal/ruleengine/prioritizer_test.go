package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ruleIDs(rules []Rule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

func TestOrder(t *testing.T) {
	t.Parallel()

	t.Run("Should sort by priority descending", func(t *testing.T) {
		t.Parallel()

		rules := []Rule{{ID: "low", Priority: 1}, {ID: "high", Priority: 10}, {ID: "mid", Priority: 5}}

		assert.Equal(t, []string{"high", "mid", "low"}, ruleIDs(Order(rules)))
	})

	t.Run("Should keep input order for equal priorities", func(t *testing.T) {
		t.Parallel()

		rules := []Rule{
			{ID: "a", Priority: 1},
			{ID: "b", Priority: 3},
			{ID: "c", Priority: 1},
			{ID: "d", Priority: 3},
			{ID: "e", Priority: 1},
		}

		assert.Equal(t, []string{"b", "d", "a", "c", "e"}, ruleIDs(Order(rules)))
	})

	t.Run("Should not mutate the input", func(t *testing.T) {
		t.Parallel()

		rules := []Rule{{ID: "low", Priority: 1}, {ID: "high", Priority: 10}}

		_ = Order(rules)

		assert.Equal(t, []string{"low", "high"}, ruleIDs(rules))
	})

	t.Run("Should handle negative priorities and empty input", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, Order(nil))
		assert.Equal(t, []string{"zero", "neg"}, ruleIDs(Order([]Rule{{ID: "neg", Priority: -5}, {ID: "zero"}})))
	})
}
