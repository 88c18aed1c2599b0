package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rafaeljc/pawmatch/internal/logger"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
)

// handleMatch serves POST /api/v1/storefront/match.
func (a *API) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeJSON(w, r, http.StatusBadRequest, errResp)
		return
	}

	profile, rules, ok := a.loadMatchInputs(w, r, req.ProfileID)
	if !ok {
		return
	}

	productIDs, err := a.deps.Engine.Match(r.Context(), *profile, rules)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MatchResponse{ProductIDs: productIDs})
}

// handleProductMatch serves GET /api/v1/storefront/products/{productID}/match?profile_id=.
func (a *API) handleProductMatch(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	profileID := strings.TrimSpace(r.URL.Query().Get("profile_id"))
	if profileID == "" {
		writeJSON(w, r, http.StatusBadRequest, invalidField("profile_id", "profile_id is required"))
		return
	}

	profile, rules, ok := a.loadMatchInputs(w, r, profileID)
	if !ok {
		return
	}

	result, err := a.deps.Engine.IsProductMatched(r.Context(), *profile, rules, productID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetProfile serves GET /api/v1/storefront/profiles/{profileID}, with
// the weight expressed in the shop's display unit.
func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := ShopFromContext(ctx)

	profile, err := a.deps.Profiles.GetProfile(ctx, shop, chi.URLParam(r, "profileID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if profile == nil {
		writeProfileNotFound(w, r)
		return
	}

	st, err := a.deps.Settings.Get(ctx, shop)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profileResponse(profile, st.WeightUnit))
}

// loadMatchInputs fetches the profile and the shop's active rules, writing
// the error response itself on failure.
func (a *API) loadMatchInputs(w http.ResponseWriter, r *http.Request, profileID string) (*ruleengine.PetProfile, []ruleengine.Rule, bool) {
	ctx := r.Context()
	shop := ShopFromContext(ctx)

	profile, err := a.deps.Profiles.GetProfile(ctx, shop, profileID)
	if err != nil {
		a.writeError(w, r, err)
		return nil, nil, false
	}
	if profile == nil {
		logger.FromContext(ctx).Debug("profile not found")
		writeProfileNotFound(w, r)
		return nil, nil, false
	}

	rules, err := a.deps.Rules.FindActiveRules(ctx, shop)
	if err != nil {
		a.writeError(w, r, err)
		return nil, nil, false
	}
	return profile, rules, true
}

func writeProfileNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, ErrorResponse{Code: CodeProfileNotFound, Message: "Pet profile not found"})
}
