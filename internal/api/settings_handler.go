package api

import (
	"log/slog"
	"net/http"

	"github.com/rafaeljc/pawmatch/internal/logger"
)

// handleGetSettings serves the settings for both the admin and the storefront.
func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.deps.Settings.Get(r.Context(), ShopFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, settingsResponse(st))
}

// handlePutSettings serves PUT /api/v1/settings. Other replicas may keep
// serving the previous settings until their in-memory entry expires.
func (a *API) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := ShopFromContext(ctx)

	var req SettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeJSON(w, r, http.StatusBadRequest, errResp)
		return
	}

	st := req.toSettings()
	if err := a.deps.SettingsStore.SaveSettings(ctx, shop, st); err != nil {
		a.writeError(w, r, err)
		return
	}

	// The write already succeeded; a failed invalidation only delays visibility.
	if err := a.deps.Settings.Invalidate(ctx, shop); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate settings cache", slog.String("error", err.Error()))
	}

	writeJSON(w, r, http.StatusOK, settingsResponse(st))
}
