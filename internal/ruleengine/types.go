// Package ruleengine matches pet profiles to product recommendations.
// Shops author prioritized rules whose conditions describe the pets a set of
// products is meant for; the engine evaluates those conditions against a
// profile and gates every consuming match through the shop's usage quota.
package ruleengine

import (
	"encoding/json"
	"time"
)

// PetProfile is the read-only view of a pet the engine matches against.
type PetProfile struct {
	ID         string `json:"id"`
	Shop       string `json:"shop"`
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`

	// Type is the species category, a free-form key into the shop taxonomy (e.g. "Dog").
	Type  string `json:"type"`
	Breed string `json:"breed"`

	// WeightGram is nil when the owner never provided a weight.
	WeightGram *int       `json:"weight_gram"`
	Birthday   *time.Time `json:"birthday,omitempty"`

	// Attributes holds extended matching data such as energy level.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// WeightRange bounds a pet's weight in grams. Either bound may be absent.
type WeightRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Constrained reports whether the range restricts anything at all.
func (w *WeightRange) Constrained() bool {
	return w != nil && (w.Min != nil || w.Max != nil)
}

// Conditions is the canonical predicate of a rule.
// Every empty or absent field means "no constraint on this dimension".
type Conditions struct {
	PetTypes    []string          `json:"petTypes,omitempty"`
	Breeds      []string          `json:"breeds,omitempty"`
	WeightRange *WeightRange      `json:"weightRange,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Rule is a merchant-authored product rule.
type Rule struct {
	ID       string `json:"id"`
	Shop     string `json:"shop"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	IsActive bool   `json:"is_active"`

	// Conditions is populated by CompileRules from RawConditions.
	Conditions Conditions `json:"conditions"`

	// RawConditions is the persisted JSON, possibly in a legacy shape.
	RawConditions json.RawMessage `json:"-"`

	// ProductIDs is an ordered set of target product identifiers.
	ProductIDs []string `json:"product_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Targets reports whether the rule recommends the given product.
func (r *Rule) Targets(productID string) bool {
	for _, id := range r.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Warning is a diagnostic code attached to a MatchResult.
type Warning string

const (
	// WarningMissingWeight: a rule targeting the product constrains weight but the pet has none.
	WarningMissingWeight Warning = "MISSING_WEIGHT"

	// WarningBillingLimitReached: the shop has consumed its match quota.
	WarningBillingLimitReached Warning = "BILLING_LIMIT_REACHED"
)

// MatchResult is produced fresh on every single-product evaluation. It is never cached.
type MatchResult struct {
	PetID     string    `json:"petId"`
	IsMatched bool      `json:"isMatched"`
	Warnings  []Warning `json:"warnings"`
}
