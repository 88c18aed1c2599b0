// Package api serves the merchant rule authoring API and the storefront
// matching API over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/pawmatch/internal/billing"
	"github.com/rafaeljc/pawmatch/internal/config"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
	"github.com/rafaeljc/pawmatch/internal/settings"
	"github.com/rafaeljc/pawmatch/internal/store"
	"github.com/rafaeljc/pawmatch/internal/validation"
)

// Matcher evaluates rules for a profile. *ruleengine.Engine satisfies it.
type Matcher interface {
	Match(ctx context.Context, profile ruleengine.PetProfile, rules []ruleengine.Rule) ([]string, error)
	IsProductMatched(ctx context.Context, profile ruleengine.PetProfile, rules []ruleengine.Rule, productID string) (ruleengine.MatchResult, error)
}

// RuleValidator vets rule upserts against names and plan ceilings.
type RuleValidator interface {
	ValidateUpsert(ctx context.Context, shop string, draft billing.RuleDraft) error
}

// UsageService reports plans and quota consumption.
type UsageService interface {
	Status(ctx context.Context, shop string) (billing.UsageStatus, error)
	PlanFor(ctx context.Context, shop string) (billing.Plan, error)
}

// SettingsService is the cached settings reader.
type SettingsService interface {
	Get(ctx context.Context, shop string) (settings.Settings, error)
	Invalidate(ctx context.Context, shop string) error
}

// SettingsWriter persists settings.
type SettingsWriter interface {
	SaveSettings(ctx context.Context, shop string, s settings.Settings) error
}

// ShopProvisioner creates the subscription record of a shop seen for the first time.
type ShopProvisioner interface {
	EnsureSubscription(ctx context.Context, shop string) error
}

var (
	_ Matcher         = (*ruleengine.Engine)(nil)
	_ RuleValidator   = (*billing.RuleLimitGuard)(nil)
	_ UsageService    = (*billing.Gate)(nil)
	_ SettingsService = (*settings.Service)(nil)
	_ SettingsWriter  = (*store.PostgresStore)(nil)
	_ ShopProvisioner = (*store.PostgresStore)(nil)
)

// Deps are the collaborators of the API. All are required.
type Deps struct {
	Rules         store.RuleRepository
	Profiles      store.ProfileRepository
	Engine        Matcher
	Guard         RuleValidator
	Usage         UsageService
	Settings      SettingsService
	SettingsStore SettingsWriter
	Shops         ShopProvisioner
}

func (d Deps) validate() {
	switch {
	case d.Rules == nil:
		panic("api: rule repository cannot be nil")
	case d.Profiles == nil:
		panic("api: profile repository cannot be nil")
	case d.Engine == nil:
		panic("api: matcher cannot be nil")
	case d.Guard == nil:
		panic("api: rule validator cannot be nil")
	case d.Usage == nil:
		panic("api: usage service cannot be nil")
	case d.Settings == nil:
		panic("api: settings service cannot be nil")
	case d.SettingsStore == nil:
		panic("api: settings writer cannot be nil")
	case d.Shops == nil:
		panic("api: shop provisioner cannot be nil")
	}
}

// API holds the router and its dependencies.
type API struct {
	Router *chi.Mux

	deps   Deps
	cfg    *config.ServerConfig
	logger *slog.Logger
}

// NewAPI builds the router. If logger is nil, it defaults to slog.Default().
func NewAPI(logger *slog.Logger, cfg *config.ServerConfig, deps Deps) *API {
	validation.AssertNotNil(cfg, "server config")
	deps.validate()
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		Router: chi.NewRouter(),
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
	a.configureRoutes()
	return a
}

func (a *API) configureRoutes() {
	r := a.Router

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(recoverer)
	r.Use(metrics)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(middleware.RequestSize(a.cfg.MaxBodyBytes))
	r.Use(middleware.Timeout(a.cfg.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: "Resource not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusMethodNotAllowed, ErrorResponse{Code: CodeNotFound, Message: "Method not allowed"})
	})

	r.Get("/health", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireShop)

		// Merchant authoring.
		r.Group(func(r chi.Router) {
			r.Use(a.provisionShop)

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", a.handleListRules)
				r.Post("/", a.handleUpsertRule)
				r.Post("/bulk-delete", a.handleBulkDeleteRules)
				r.Delete("/{id}", a.handleDeleteRule)
			})
			r.Get("/usage", a.handleUsage)
			r.Get("/settings", a.handleGetSettings)
			r.Put("/settings", a.handlePutSettings)
		})

		r.Route("/storefront", func(r chi.Router) {
			r.Post("/match", a.handleMatch)
			r.Get("/products/{productID}/match", a.handleProductMatch)
			r.Get("/profiles/{profileID}", a.handleGetProfile)
			r.Get("/settings", a.handleGetSettings)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// NewHTTPServer wraps handler with the configured listener limits.
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
