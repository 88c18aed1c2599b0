package api

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/rafaeljc/pawmatch/internal/ruleengine"
	"github.com/rafaeljc/pawmatch/internal/settings"
	"github.com/rafaeljc/pawmatch/internal/weight"
)

const (
	maxRuleNameLength = 255
	maxRuleProducts   = 250
	maxBulkDeleteIDs  = 100
	maxPetTypes       = 50
	maxBreedsPerType  = 500
	maxPriority       = 1_000_000
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidJSON     = "ERR_INVALID_JSON"
	CodeInvalidInput    = "ERR_INVALID_INPUT"
	CodeInvalidQuery    = "ERR_INVALID_QUERY_PARAM"
	CodeBodyTooLarge    = "ERR_BODY_TOO_LARGE"
	CodeConflict        = "ERR_CONFLICT"
	CodePlanLimit       = "ERR_PLAN_LIMIT"
	CodePlanFeature     = "ERR_PLAN_FEATURE"
	CodeUnauthorized    = "ERR_UNAUTHORIZED"
	CodeNotFound        = "ERR_NOT_FOUND"
	CodeProfileNotFound = "ERR_PROFILE_NOT_FOUND"
	CodeTimeout         = "ERR_TIMEOUT"
	CodeInternal        = "ERR_INTERNAL"
)

// RuleRequest is the payload of POST /api/v1/rules. An ID that does not
// exist for the shop is treated as a new rule.
type RuleRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`

	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active,omitempty"`

	// Conditions accepts the canonical shape and the legacy "breed" key.
	Conditions json.RawMessage `json:"conditions,omitempty"`

	ProductIDs []string `json:"product_ids"`
}

// Sanitize trims identifiers and drops blank or repeated product IDs.
func (r *RuleRequest) Sanitize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)

	seen := make(map[string]struct{}, len(r.ProductIDs))
	ids := make([]string, 0, len(r.ProductIDs))
	for _, id := range r.ProductIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.ProductIDs = ids
}

// Validate checks structural limits. Name uniqueness and plan ceilings are
// checked later by the rule guard.
func (r *RuleRequest) Validate() *ErrorResponse {
	if len(r.Name) > maxRuleNameLength {
		return invalidField("name", "Name must be at most 255 characters")
	}
	if r.Priority < -maxPriority || r.Priority > maxPriority {
		return invalidField("priority", "Priority is out of range")
	}
	if len(r.ProductIDs) > maxRuleProducts {
		return invalidField("product_ids", "A rule can target at most 250 products")
	}
	return nil
}

// Active resolves the IsActive default.
func (r *RuleRequest) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// Rule is the rule resource.
type Rule struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Priority   int                   `json:"priority"`
	IsActive   bool                  `json:"is_active"`
	Conditions ruleengine.Conditions `json:"conditions"`
	ProductIDs []string              `json:"product_ids"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func ruleResponse(r *ruleengine.Rule) Rule {
	products := r.ProductIDs
	if products == nil {
		products = []string{}
	}
	return Rule{
		ID:         r.ID,
		Name:       r.Name,
		Priority:   r.Priority,
		IsActive:   r.IsActive,
		Conditions: r.Conditions,
		ProductIDs: products,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// BulkDeleteRequest is the payload of POST /api/v1/rules/bulk-delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (r *BulkDeleteRequest) Validate() *ErrorResponse {
	if len(r.IDs) == 0 {
		return invalidField("ids", "Select at least one rule")
	}
	if len(r.IDs) > maxBulkDeleteIDs {
		return invalidField("ids", "At most 100 rules can be deleted at once")
	}
	return nil
}

// BulkDeleteResponse reports how many rules were removed.
type BulkDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// MatchRequest is the payload of POST /api/v1/storefront/match.
type MatchRequest struct {
	ProfileID string `json:"profile_id"`
}

func (r *MatchRequest) Sanitize() {
	r.ProfileID = strings.TrimSpace(r.ProfileID)
}

func (r *MatchRequest) Validate() *ErrorResponse {
	if r.ProfileID == "" {
		return invalidField("profile_id", "profile_id is required")
	}
	return nil
}

// MatchResponse lists the recommended products in priority order.
type MatchResponse struct {
	ProductIDs []string `json:"product_ids"`
}

// Settings is the storefront settings resource.
type Settings struct {
	PetTypes map[string][]string `json:"pet_types"`

	// Types is the sorted list of PetTypes keys, for dropdowns.
	Types      []string    `json:"types"`
	WeightUnit weight.Unit `json:"weight_unit"`
}

func settingsResponse(s settings.Settings) Settings {
	return Settings{PetTypes: s.PetTypes, Types: s.TypeLabels(), WeightUnit: s.WeightUnit}
}

// SettingsRequest is the payload of PUT /api/v1/settings.
type SettingsRequest struct {
	PetTypes   map[string][]string `json:"pet_types"`
	WeightUnit string              `json:"weight_unit"`
}

// Sanitize trims labels and breeds and merges labels that collide after trimming.
func (r *SettingsRequest) Sanitize() {
	r.WeightUnit = strings.ToLower(strings.TrimSpace(r.WeightUnit))

	cleaned := make(map[string][]string, len(r.PetTypes))
	for label, breeds := range r.PetTypes {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		for _, b := range breeds {
			if b = strings.TrimSpace(b); b != "" && !slices.Contains(cleaned[label], b) {
				cleaned[label] = append(cleaned[label], b)
			}
		}
		if cleaned[label] == nil {
			cleaned[label] = []string{}
		}
	}
	r.PetTypes = cleaned
}

func (r *SettingsRequest) Validate() *ErrorResponse {
	if len(r.PetTypes) == 0 {
		return invalidField("pet_types", "Configure at least one pet type")
	}
	if len(r.PetTypes) > maxPetTypes {
		return invalidField("pet_types", "At most 50 pet types are supported")
	}
	for label, breeds := range r.PetTypes {
		if len(breeds) > maxBreedsPerType {
			return invalidField("pet_types", "Too many breeds for "+label)
		}
	}
	switch r.WeightUnit {
	case "", "kg", "kgs", "lb", "lbs":
	default:
		return invalidField("weight_unit", "weight_unit must be kg or lbs")
	}
	return nil
}

func (r *SettingsRequest) toSettings() settings.Settings {
	return settings.Settings{PetTypes: r.PetTypes, WeightUnit: weight.ParseUnit(r.WeightUnit)}
}

// Profile is the storefront view of a pet, with weight in the shop's unit.
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Breed      string            `json:"breed"`
	Weight     *float64          `json:"weight"`
	WeightText string            `json:"weight_text"`
	WeightUnit weight.Unit       `json:"weight_unit"`
	Birthday   string            `json:"birthday,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func profileResponse(p *ruleengine.PetProfile, unit weight.Unit) Profile {
	resp := Profile{
		ID:         p.ID,
		Name:       p.Name,
		Type:       p.Type,
		Breed:      p.Breed,
		Weight:     weight.FromGrams(p.WeightGram, unit),
		WeightText: weight.Format(p.WeightGram, unit),
		WeightUnit: unit,
		Attributes: p.Attributes,
	}
	if p.Birthday != nil {
		resp.Birthday = p.Birthday.Format(time.DateOnly)
	}
	return resp
}

// PaginatedResponse wraps list endpoints.
type PaginatedResponse struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail points at the offending field.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func invalidField(field, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    CodeInvalidInput,
		Message: message,
		Details: []ErrorDetail{{Field: field, Issue: message}},
	}
}
