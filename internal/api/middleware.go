package api

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/pawmatch/internal/logger"
	"github.com/rafaeljc/pawmatch/internal/observability"
)

const (
	// RequestIDHeader is echoed on every response; inbound values are reused.
	RequestIDHeader = "X-Request-Id"

	// ShopHeader carries the shop domain resolved by the embedding platform.
	ShopHeader = "X-Shop-Domain"

	maxRequestIDLength = 128
	maxShopLength      = 255

	// unmatchedRoute keeps 404 traffic from creating one series per path.
	unmatchedRoute = "unmatched"
)

var shopDomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

type shopKey struct{}

// ShopFromContext returns the shop resolved by the shop middleware.
func ShopFromContext(ctx context.Context) string {
	shop, _ := ctx.Value(shopKey{}).(string)
	return shop
}

// requestID wraps middleware.RequestID. Oversized inbound IDs are discarded
// so chi mints a fresh one, and the final ID is echoed on the response.
func requestID(next http.Handler) http.Handler {
	withID := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.Header.Get(RequestIDHeader)) > maxRequestIDLength {
			r.Header.Del(RequestIDHeader)
		}
		withID.ServeHTTP(w, r)
	})
}

// requestLogger stores a request-scoped logger in the context and logs one
// line per request: Info for success, Warn for 4xx, Error for 5xx.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := base.With(slog.String("request_id", middleware.GetReqID(r.Context())))
			ctx := logger.WithContext(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			reqLogger.Log(ctx, level, "HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// recoverer turns handler panics into a JSON 500 and logs the stack through
// the request logger. middleware.Recoverer stays outermost for panics raised
// by the logging middleware itself.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.FromContext(r.Context()).Error("panic recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "Internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// metrics records request counts and latency by route pattern, never by raw path.
func metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.HTTPReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		observability.HTTPReqDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// requireShop resolves the shop from ShopHeader. Authentication happens
// upstream; a request without a shop has no session.
func requireShop(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := strings.ToLower(strings.TrimSpace(r.Header.Get(ShopHeader)))
		if shop == "" || len(shop) > maxShopLength || !shopDomainRegex.MatchString(shop) {
			writeJSON(w, r, http.StatusUnauthorized, ErrorResponse{
				Code:    CodeUnauthorized,
				Message: "Missing or invalid shop session",
			})
			return
		}

		ctx := context.WithValue(r.Context(), shopKey{}, shop)
		ctx = logger.With(ctx, slog.String("shop", shop))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// provisionShop makes sure an authoring shop has a subscription record, so
// the first admin visit starts the shop on the free plan.
func (a *API) provisionShop(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.deps.Shops.EnsureSubscription(r.Context(), ShopFromContext(r.Context())); err != nil {
			a.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
