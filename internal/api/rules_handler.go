package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rafaeljc/pawmatch/internal/billing"
	"github.com/rafaeljc/pawmatch/internal/logger"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// handleListRules serves GET /api/v1/rules?page=&page_size=.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidQuery, Message: err.Error()})
		return
	}
	pageSize, err := parseOptionalInt(r, "page_size", defaultPageSize)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidQuery, Message: err.Error()})
		return
	}

	// Out-of-range values are clamped rather than rejected.
	page = max(page, 1)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	rules, total, err := a.deps.Rules.ListRules(r.Context(), ShopFromContext(r.Context()), pageSize, (page-1)*pageSize)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	dtos := make([]Rule, len(rules))
	for i := range rules {
		dtos[i] = ruleResponse(&rules[i])
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	writeJSON(w, r, http.StatusOK, PaginatedResponse{
		Data: dtos,
		Pagination: Pagination{
			TotalItems:  total,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	})
}

// handleUpsertRule serves POST /api/v1/rules. It answers 201 when a rule was
// created and 200 when an existing one was updated.
func (a *API) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	shop := ShopFromContext(ctx)

	var req RuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeJSON(w, r, http.StatusBadRequest, errResp)
		return
	}

	conditions, err := ruleengine.CompileConditions(req.Conditions)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, invalidField("conditions", err.Error()))
		return
	}

	if err := a.deps.Guard.ValidateUpsert(ctx, shop, billing.RuleDraft{ID: req.ID, Name: req.Name, ProductIDs: req.ProductIDs}); err != nil {
		a.writeError(w, r, err)
		return
	}

	if len(conditions.Attributes) > 0 {
		plan, err := a.deps.Usage.PlanFor(ctx, shop)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if !plan.HasFeature(billing.FeatureCustomAttributes) {
			writeJSON(w, r, http.StatusForbidden, ErrorResponse{
				Code:    CodePlanFeature,
				Message: fmt.Sprintf("Attribute conditions are not available on the %s plan", plan.Tier),
			})
			return
		}
	}

	rule := &ruleengine.Rule{
		ID:         req.ID,
		Shop:       shop,
		Name:       req.Name,
		Priority:   req.Priority,
		IsActive:   req.Active(),
		Conditions: conditions,
		ProductIDs: req.ProductIDs,
	}
	if err := a.deps.Rules.UpsertRule(ctx, rule); err != nil {
		a.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if rule.ID != req.ID {
		status = http.StatusCreated
	}

	log.Info("rule saved", slog.String("rule_id", rule.ID), slog.Bool("created", status == http.StatusCreated))
	writeJSON(w, r, status, ruleResponse(rule))
}

// handleDeleteRule serves DELETE /api/v1/rules/{id}.
func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.deps.Rules.DeleteRule(r.Context(), ShopFromContext(r.Context()), id); err != nil {
		a.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("rule deleted", slog.String("rule_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleBulkDeleteRules serves POST /api/v1/rules/bulk-delete.
func (a *API) handleBulkDeleteRules(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errResp := req.Validate(); errResp != nil {
		writeJSON(w, r, http.StatusBadRequest, errResp)
		return
	}

	n, err := a.deps.Rules.DeleteRules(r.Context(), ShopFromContext(r.Context()), req.IDs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("rules deleted", slog.Int("requested", len(req.IDs)), slog.Int64("deleted", n))
	writeJSON(w, r, http.StatusOK, BulkDeleteResponse{Deleted: n})
}

// handleUsage serves GET /api/v1/usage.
func (a *API) handleUsage(w http.ResponseWriter, r *http.Request) {
	status, err := a.deps.Usage.Status(r.Context(), ShopFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// parseOptionalInt returns def when the parameter is absent and an error only
// when it is present but not an integer.
func parseOptionalInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return v, nil
}
