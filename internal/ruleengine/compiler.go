package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MaxConditionValues limits the size of a single petTypes/breeds list.
	// Taxonomies are small; anything bigger is a malformed import.
	MaxConditionValues = 1_000
)

// persistedConditions is every shape the conditions column has held over time.
// Older rows stored breeds under a singular "breed" key, either as an array or
// as a single string.
type persistedConditions struct {
	PetTypes    []string          `json:"petTypes"`
	Breeds      []string          `json:"breeds"`
	Breed       json.RawMessage   `json:"breed"`
	WeightRange *WeightRange      `json:"weightRange"`
	Attributes  map[string]any    `json:"attributes"`
}

// CompileRules normalizes RawConditions into Conditions for every rule.
// This must be called after loading rules from storage and before evaluation,
// so the evaluator never sees legacy shapes.
func CompileRules(rules []Rule) error {
	for i := range rules {
		conds, err := CompileConditions(rules[i].RawConditions)
		if err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rules[i].ID, err)
		}
		rules[i].Conditions = conds
	}
	return nil
}

// CompileConditions parses persisted conditions JSON into the canonical structure.
// Empty input and JSON null both yield wildcard conditions.
func CompileConditions(raw json.RawMessage) (Conditions, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Conditions{}, nil
	}

	var data persistedConditions
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return Conditions{}, fmt.Errorf("invalid conditions: %w", err)
	}

	breeds := data.Breeds
	if len(breeds) == 0 && len(data.Breed) > 0 {
		legacy, err := parseLegacyBreed(data.Breed)
		if err != nil {
			return Conditions{}, err
		}
		breeds = legacy
	}

	conds := Conditions{
		PetTypes:   compactValues(data.PetTypes),
		Breeds:     compactValues(breeds),
		Attributes: NormalizeAttributes(data.Attributes),
	}

	if len(conds.PetTypes) > MaxConditionValues || len(conds.Breeds) > MaxConditionValues {
		return Conditions{}, fmt.Errorf("conditions exceed maximum size of %d values per list", MaxConditionValues)
	}

	if data.WeightRange.Constrained() {
		if err := validateWeightRange(data.WeightRange); err != nil {
			return Conditions{}, err
		}
		conds.WeightRange = data.WeightRange
	}

	return conds, nil
}

// parseLegacyBreed accepts `"breed": ["A","B"]`, `"breed": "A"` and `"breed": null`.
func parseLegacyBreed(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("invalid legacy breed value: %s", string(raw))
	}
	if single == "" {
		return nil, nil
	}
	return []string{single}, nil
}

func validateWeightRange(w *WeightRange) error {
	if w.Min != nil && *w.Min < 0 {
		return fmt.Errorf("weight range min must be non-negative, got %d", *w.Min)
	}
	if w.Max != nil && *w.Max < 0 {
		return fmt.Errorf("weight range max must be non-negative, got %d", *w.Max)
	}
	if w.Min != nil && w.Max != nil && *w.Min > *w.Max {
		return fmt.Errorf("weight range min %d exceeds max %d", *w.Min, *w.Max)
	}
	return nil
}

// compactValues trims entries and drops blanks, so [""] never turns a wildcard into "match nothing".
func compactValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
