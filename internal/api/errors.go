package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/pawmatch/internal/billing"
	"github.com/rafaeljc/pawmatch/internal/logger"
	"github.com/rafaeljc/pawmatch/internal/store"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError maps domain errors to status codes. Anything unrecognized is
// logged and reported as a 500 without leaking the cause.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *billing.ValidationError
	var limitErr *billing.PlanLimitError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, r, http.StatusBadRequest, invalidField(validationErr.Field, validationErr.Message))
	case errors.As(err, &limitErr):
		writeJSON(w, r, http.StatusForbidden, ErrorResponse{Code: CodePlanLimit, Message: limitErr.Error()})
	case errors.Is(err, store.ErrDuplicateRuleName):
		writeJSON(w, r, http.StatusConflict, ErrorResponse{Code: CodeConflict, Message: "A rule with this name already exists"})
	case errors.Is(err, store.ErrRuleNotFound):
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: "Rule not found"})
	case errors.Is(err, billing.ErrSessionNotFound):
		writeJSON(w, r, http.StatusUnauthorized, ErrorResponse{Code: CodeUnauthorized, Message: "Shop session not found"})
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() != nil:
		// middleware.Timeout writes the 504 once the request deadline has passed.
		logger.FromContextOr(r.Context(), a.logger).Warn("request timed out", slog.String("error", err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		logger.FromContextOr(r.Context(), a.logger).Warn("query timed out", slog.String("error", err.Error()))
		writeJSON(w, r, http.StatusGatewayTimeout, ErrorResponse{Code: CodeTimeout, Message: "The request timed out"})
	default:
		logger.FromContextOr(r.Context(), a.logger).Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "Internal server error"})
	}
}

// decodeJSON reads the body into dst and writes the 400/413 response itself
// when it fails. It reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := render.DecodeJSON(r.Body, dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, r, http.StatusRequestEntityTooLarge, ErrorResponse{Code: CodeBodyTooLarge, Message: "Request body is too large"})
		return false
	}

	logger.FromContext(r.Context()).Warn("invalid json payload", slog.String("error", err.Error()))
	writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidJSON, Message: "Invalid JSON payload: " + err.Error()})
	return false
}
