package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/pawmatch/internal/billing"
	"github.com/rafaeljc/pawmatch/internal/config"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
	"github.com/rafaeljc/pawmatch/internal/settings"
	"github.com/rafaeljc/pawmatch/internal/store"
	"github.com/rafaeljc/pawmatch/internal/testsupport"
	"github.com/rafaeljc/pawmatch/internal/weight"
)

const testShop = "paws.myshopify.com"

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeRules struct {
	mu        sync.Mutex
	rules     []ruleengine.Rule
	nextID    int
	upsertErr error
	listErr   error
}

func (f *fakeRules) FindActiveRules(_ context.Context, shop string) ([]ruleengine.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ruleengine.Rule
	for _, r := range f.rules {
		if r.Shop == shop && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRules) ListRules(_ context.Context, shop string, limit, offset int) ([]ruleengine.Rule, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var owned []ruleengine.Rule
	for _, r := range f.rules {
		if r.Shop == shop {
			owned = append(owned, r)
		}
	}
	total := int64(len(owned))
	if offset >= len(owned) {
		return []ruleengine.Rule{}, total, nil
	}
	return owned[offset:min(offset+limit, len(owned))], total, nil
}

func (f *fakeRules) find(shop, id string) int {
	return slices.IndexFunc(f.rules, func(r ruleengine.Rule) bool { return r.Shop == shop && r.ID == id })
}

func (f *fakeRules) GetRule(_ context.Context, shop, id string) (*ruleengine.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.find(shop, id); i >= 0 {
		r := f.rules[i]
		return &r, nil
	}
	return nil, nil
}

func (f *fakeRules) FindRuleByName(_ context.Context, shop, name string) (*ruleengine.Rule, error) {
	return nil, nil
}

func (f *fakeRules) CountRules(_ context.Context, shop string) (int, error) {
	return 0, nil
}

func (f *fakeRules) UpsertRule(_ context.Context, r *ruleengine.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if i := f.find(r.Shop, r.ID); i >= 0 {
		f.rules[i] = *r
		return nil
	}
	f.nextID++
	r.ID = fmt.Sprintf("generated-%d", f.nextID)
	f.rules = append(f.rules, *r)
	return nil
}

func (f *fakeRules) DeleteRule(_ context.Context, shop, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(shop, id)
	if i < 0 {
		return store.ErrRuleNotFound
	}
	f.rules = slices.Delete(f.rules, i, i+1)
	return nil
}

func (f *fakeRules) DeleteRules(ctx context.Context, shop string, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if f.DeleteRule(ctx, shop, id) == nil {
			n++
		}
	}
	return n, nil
}

type fakeProfiles struct {
	profiles map[string]ruleengine.PetProfile
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, shop, id string) (*ruleengine.PetProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[shop+"/"+id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeMatcher struct {
	products []string
	result   ruleengine.MatchResult
	err      error

	mu        sync.Mutex
	rulesSeen []ruleengine.Rule
	productID string
}

func (f *fakeMatcher) Match(_ context.Context, _ ruleengine.PetProfile, rules []ruleengine.Rule) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rulesSeen = rules
	return f.products, f.err
}

func (f *fakeMatcher) IsProductMatched(_ context.Context, _ ruleengine.PetProfile, rules []ruleengine.Rule, productID string) (ruleengine.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rulesSeen = rules
	f.productID = productID
	return f.result, f.err
}

type fakeGuard struct{ err error }

func (f fakeGuard) ValidateUpsert(context.Context, string, billing.RuleDraft) error { return f.err }

type fakeUsage struct {
	status billing.UsageStatus
	plan   billing.Plan
	err    error
}

func (f fakeUsage) Status(context.Context, string) (billing.UsageStatus, error) { return f.status, f.err }
func (f fakeUsage) PlanFor(context.Context, string) (billing.Plan, error)       { return f.plan, f.err }

type fakeSettings struct {
	mu          sync.Mutex
	current     settings.Settings
	invalidated []string
	saved       map[string]settings.Settings
}

func (f *fakeSettings) Get(context.Context, string) (settings.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeSettings) Invalidate(_ context.Context, shop string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, shop)
	return nil
}

func (f *fakeSettings) SaveSettings(_ context.Context, shop string, s settings.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]settings.Settings{}
	}
	f.saved[shop] = s
	return nil
}

type fakeShops struct {
	mu      sync.Mutex
	ensured []string
	err     error
}

func (f *fakeShops) EnsureSubscription(_ context.Context, shop string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, shop)
	return f.err
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type harness struct {
	api      *API
	rules    *fakeRules
	profiles *fakeProfiles
	matcher  *fakeMatcher
	settings *fakeSettings
	shops    *fakeShops
	deps     Deps
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{RequestTimeout: 2 * time.Second, MaxBodyBytes: 4096}
}

func freePlan() billing.Plan {
	p, _ := billing.NewCatalog(map[billing.Tier]billing.Limits{billing.TierFree: {MaxMatches: 100, MaxRules: 5}}).Plan(billing.TierFree)
	return p
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()

	h := &harness{
		rules:    &fakeRules{},
		profiles: &fakeProfiles{profiles: map[string]ruleengine.PetProfile{}},
		matcher:  &fakeMatcher{},
		settings: &fakeSettings{current: settings.Defaults()},
		shops:    &fakeShops{},
	}
	h.deps = Deps{
		Rules:         h.rules,
		Profiles:      h.profiles,
		Engine:        h.matcher,
		Guard:         fakeGuard{},
		Usage:         fakeUsage{plan: freePlan()},
		Settings:      h.settings,
		SettingsStore: h.settings,
		Shops:         h.shops,
	}
	for _, m := range mutate {
		m(&h.deps)
	}
	h.api = NewAPI(nil, testServerConfig(), h.deps)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(ShopHeader, testShop)
	rec := httptest.NewRecorder()
	h.api.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func intPtr(v int) *int { return &v }

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestNewAPI_PanicsOnMissingDeps(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewAPI(nil, testServerConfig(), Deps{}) })
	assert.Panics(t, func() { newHarness(t, func(d *Deps) { d.Shops = nil }) })
	assert.PanicsWithValue(t, "critical error: server config cannot be nil", func() {
		NewAPI(nil, nil, newHarness(t).deps)
	})
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	rec := newHarness(t).do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_ShopResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not a domain", "paws", http.StatusUnauthorized},
		{"injection attempt", "paws.myshopify.com/../admin", http.StatusUnauthorized},
		{"mixed case is normalized", "  Paws.MyShopify.com ", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/settings", nil)
			if tt.header != "" {
				req.Header.Set(ShopHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			h.api.Router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Equal(t, CodeUnauthorized, decode[ErrorResponse](t, rec).Code)
			}
		})
	}
}

func TestAPI_RequestID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	t.Run("generates one when absent", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/health", nil)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces oversized inbound values", func(t *testing.T) {
		oversized := strings.Repeat("x", maxRequestIDLength+1)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, oversized)
		rec := httptest.NewRecorder()
		h.api.Router.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, got)
		assert.NotEqual(t, oversized, got)
		assert.LessOrEqual(t, len(got), maxRequestIDLength)
	})

	t.Run("echoes the inbound value", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "trace-123")
		rec := httptest.NewRecorder()
		h.api.Router.ServeHTTP(rec, req)
		assert.Equal(t, "trace-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestAPI_AuthoringProvisionsShop(t *testing.T) {
	t.Parallel()

	t.Run("admin routes ensure a subscription", func(t *testing.T) {
		h := newHarness(t)
		h.do(t, http.MethodGet, "/api/v1/usage", nil)
		h.do(t, http.MethodGet, "/api/v1/storefront/settings", nil)
		assert.Equal(t, []string{testShop}, h.shops.ensured)
	})

	t.Run("provisioning failures surface as 500", func(t *testing.T) {
		h := newHarness(t)
		h.shops.err = errors.New("db down")
		rec := h.do(t, http.MethodGet, "/api/v1/usage", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, CodeInternal, decode[ErrorResponse](t, rec).Code)
	})
}

func TestAPI_UpsertRule(t *testing.T) {
	t.Parallel()

	validBody := map[string]any{
		"name":        "Large dogs",
		"priority":    10,
		"conditions":  map[string]any{"petTypes": []string{"Dog"}, "weightRange": map[string]int{"min": 20000}},
		"product_ids": []string{"p-1", " p-1 ", "p-2", ""},
	}

	tests := []struct {
		name     string
		body     any
		deps     func(*Deps)
		seed     *ruleengine.Rule
		wantCode int
		wantErr  string
	}{
		{
			name:     "creates a rule",
			body:     validBody,
			wantCode: http.StatusCreated,
		},
		{
			name: "updates an existing rule",
			body: map[string]any{
				"id": "rule-1", "name": "Renamed", "product_ids": []string{"p-9"}, "is_active": false,
			},
			seed:     &ruleengine.Rule{ID: "rule-1", Shop: testShop, Name: "Old", IsActive: true, ProductIDs: []string{"p"}},
			wantCode: http.StatusOK,
		},
		{
			name:     "malformed json",
			body:     `{"name":`,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeInvalidJSON,
		},
		{
			name:     "body over the limit",
			body:     `{"name":"` + strings.Repeat("x", 5000) + `"}`,
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  CodeBodyTooLarge,
		},
		{
			name:     "inverted weight range",
			body:     map[string]any{"name": "Bad", "product_ids": []string{"p"}, "conditions": map[string]any{"weightRange": map[string]int{"min": 10, "max": 5}}},
			wantCode: http.StatusBadRequest,
			wantErr:  CodeInvalidInput,
		},
		{
			name:     "guard validation error",
			body:     validBody,
			deps:     func(d *Deps) { d.Guard = fakeGuard{err: &billing.ValidationError{Field: "name", Message: "Rule name is required"}} },
			wantCode: http.StatusBadRequest,
			wantErr:  CodeInvalidInput,
		},
		{
			name:     "plan rule ceiling",
			body:     validBody,
			deps:     func(d *Deps) { d.Guard = fakeGuard{err: &billing.PlanLimitError{Tier: billing.TierFree, MaxRules: 5}} },
			wantCode: http.StatusForbidden,
			wantErr:  CodePlanLimit,
		},
		{
			name:     "attribute conditions on the free plan",
			body:     map[string]any{"name": "Energetic", "product_ids": []string{"p"}, "conditions": map[string]any{"attributes": map[string]string{"energy": "high"}}},
			wantCode: http.StatusForbidden,
			wantErr:  CodePlanFeature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			h := newHarness(t, func(d *Deps) {
				if tt.deps != nil {
					tt.deps(d)
				}
			})
			if tt.seed != nil {
				h.rules.rules = append(h.rules.rules, *tt.seed)
			}

			// Act
			rec := h.do(t, http.MethodPost, "/api/v1/rules", tt.body)

			// Assert
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
				return
			}

			got := decode[Rule](t, rec)
			assert.NotEmpty(t, got.ID)
			require.Len(t, h.rules.rules, 1)
			assert.Equal(t, testShop, h.rules.rules[0].Shop)
		})
	}
}

func TestAPI_UpsertRule_NormalizesPayload(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/rules", `{
		"name": "  Beagles  ",
		"conditions": {"breed": "Beagle"},
		"product_ids": ["p-1", " p-1 ", "p-2", ""]
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[Rule](t, rec)
	assert.Equal(t, "Beagles", got.Name)
	assert.True(t, got.IsActive, "is_active defaults to true")
	assert.Equal(t, []string{"Beagle"}, got.Conditions.Breeds)
	assert.Equal(t, []string{"p-1", "p-2"}, got.ProductIDs)
}

func TestAPI_UpsertRule_DuplicateNameRace(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rules.upsertErr = fmt.Errorf("%w: %q", store.ErrDuplicateRuleName, "Cats")

	rec := h.do(t, http.MethodPost, "/api/v1/rules", map[string]any{"name": "Cats", "product_ids": []string{"p"}})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, decode[ErrorResponse](t, rec).Code)
}

func TestAPI_ListRules(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for i := range 25 {
		h.rules.rules = append(h.rules.rules, ruleengine.Rule{ID: fmt.Sprintf("r-%d", i), Shop: testShop, Name: fmt.Sprintf("Rule %d", i)})
	}
	h.rules.rules = append(h.rules.rules, ruleengine.Rule{ID: "foreign", Shop: "other.myshopify.com"})

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantItems int
		wantPage  Pagination
	}{
		{"defaults", "", http.StatusOK, 20, Pagination{TotalItems: 25, TotalPages: 2, CurrentPage: 1, PageSize: 20}},
		{"second page", "?page=2&page_size=10", http.StatusOK, 10, Pagination{TotalItems: 25, TotalPages: 3, CurrentPage: 2, PageSize: 10}},
		{"clamped", "?page=0&page_size=1000", http.StatusOK, 25, Pagination{TotalItems: 25, TotalPages: 1, CurrentPage: 1, PageSize: 100}},
		{"beyond the end", "?page=9", http.StatusOK, 0, Pagination{TotalItems: 25, TotalPages: 2, CurrentPage: 9, PageSize: 20}},
		{"not a number", "?page=banana", http.StatusBadRequest, 0, Pagination{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := h.do(t, http.MethodGet, "/api/v1/rules"+tt.query, nil)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, CodeInvalidQuery, decode[ErrorResponse](t, rec).Code)
				return
			}

			var body struct {
				Data       []Rule     `json:"data"`
				Pagination Pagination `json:"pagination"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Len(t, body.Data, tt.wantItems)
			assert.Equal(t, tt.wantPage, body.Pagination)
		})
	}
}

func TestAPI_ListRules_StoreFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rules.listErr = errors.New("connection reset")

	rec := h.do(t, http.MethodGet, "/api/v1/rules", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestAPI_DeleteRules(t *testing.T) {
	t.Parallel()

	seed := func(h *harness) {
		for _, id := range []string{"a", "b", "c"} {
			h.rules.rules = append(h.rules.rules, ruleengine.Rule{ID: id, Shop: testShop})
		}
	}

	t.Run("single delete", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		seed(h)

		assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/v1/rules/a", nil).Code)

		rec := h.do(t, http.MethodDelete, "/api/v1/rules/a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, rec).Code)
	})

	t.Run("bulk delete", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		seed(h)

		rec := h.do(t, http.MethodPost, "/api/v1/rules/bulk-delete", BulkDeleteRequest{IDs: []string{"a", "c", "zzz"}})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(2), decode[BulkDeleteResponse](t, rec).Deleted)
		assert.Len(t, h.rules.rules, 1)
	})

	t.Run("bulk delete needs ids", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		rec := h.do(t, http.MethodPost, "/api/v1/rules/bulk-delete", BulkDeleteRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_Usage(t *testing.T) {
	t.Parallel()

	t.Run("reports the quota", func(t *testing.T) {
		t.Parallel()
		status := billing.UsageStatus{Plan: freePlan(), Usage: 100, Remaining: 0, Disabled: true}
		h := newHarness(t, func(d *Deps) { d.Usage = fakeUsage{status: status} })

		rec := h.do(t, http.MethodGet, "/api/v1/usage", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[billing.UsageStatus](t, rec)
		assert.True(t, got.Disabled)
		assert.Equal(t, billing.TierFree, got.Plan.Tier)
	})

	t.Run("missing session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(d *Deps) { d.Usage = fakeUsage{err: billing.ErrSessionNotFound} })

		rec := h.do(t, http.MethodGet, "/api/v1/usage", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAPI_StorefrontMatch(t *testing.T) {
	t.Parallel()

	rex := ruleengine.PetProfile{ID: "pet-1", Shop: testShop, Type: "Dog", WeightGram: intPtr(12000)}

	tests := []struct {
		name      string
		body      any
		matchErr  error
		wantCode  int
		wantErr   string
		wantProds []string
	}{
		{"matches", MatchRequest{ProfileID: "pet-1"}, nil, http.StatusOK, "", []string{"p-1", "p-2"}},
		{"profile id required", MatchRequest{ProfileID: "  "}, nil, http.StatusBadRequest, CodeInvalidInput, nil},
		{"unknown profile", MatchRequest{ProfileID: "pet-404"}, nil, http.StatusNotFound, CodeProfileNotFound, nil},
		{"shop without a session", MatchRequest{ProfileID: "pet-1"}, fmt.Errorf("failed to check usage limit: %w", billing.ErrSessionNotFound), http.StatusUnauthorized, CodeUnauthorized, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			h := newHarness(t)
			h.profiles.profiles[testShop+"/pet-1"] = rex
			h.rules.rules = []ruleengine.Rule{
				{ID: "on", Shop: testShop, IsActive: true},
				{ID: "off", Shop: testShop, IsActive: false},
			}
			h.matcher.products = []string{"p-1", "p-2"}
			h.matcher.err = tt.matchErr

			// Act
			rec := h.do(t, http.MethodPost, "/api/v1/storefront/match", tt.body)

			// Assert
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
				return
			}
			assert.Equal(t, tt.wantProds, decode[MatchResponse](t, rec).ProductIDs)
			require.Len(t, h.matcher.rulesSeen, 1, "only active rules reach the engine")
		})
	}

	t.Run("storefront routes never provision shops", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.profiles.profiles[testShop+"/pet-1"] = rex

		h.do(t, http.MethodPost, "/api/v1/storefront/match", MatchRequest{ProfileID: "pet-1"})

		assert.Empty(t, h.shops.ensured)
	})
}

func TestAPI_StorefrontProductMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.profiles.profiles[testShop+"/pet-1"] = ruleengine.PetProfile{ID: "pet-1", Shop: testShop}
	h.matcher.result = ruleengine.MatchResult{PetID: "pet-1", IsMatched: false, Warnings: []ruleengine.Warning{ruleengine.WarningMissingWeight}}

	t.Run("returns the match result", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/v1/storefront/products/p-7/match?profile_id=pet-1", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"petId":"pet-1","isMatched":false,"warnings":["MISSING_WEIGHT"]}`, rec.Body.String())
		assert.Equal(t, "p-7", h.matcher.productID)
	})

	t.Run("profile_id is required", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/v1/storefront/products/p-7/match", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_StorefrontProfile(t *testing.T) {
	t.Parallel()

	birthday := time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC)
	h := newHarness(t)
	h.settings.current = settings.Settings{PetTypes: map[string][]string{"Dog": {}}, WeightUnit: weight.UnitPounds}
	h.profiles.profiles[testShop+"/pet-1"] = ruleengine.PetProfile{
		ID: "pet-1", Shop: testShop, Name: "Rex", Type: "Dog", WeightGram: intPtr(10000), Birthday: &birthday,
	}
	h.profiles.profiles[testShop+"/pet-2"] = ruleengine.PetProfile{ID: "pet-2", Shop: testShop, Name: "Tom", Type: "Cat"}

	t.Run("weight in the shop unit", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/v1/storefront/profiles/pet-1", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[Profile](t, rec)
		require.NotNil(t, got.Weight)
		assert.InDelta(t, 22.0, *got.Weight, 0.001)
		assert.Equal(t, "22 lbs", got.WeightText)
		assert.Equal(t, "2021-03-14", got.Birthday)
	})

	t.Run("unknown weight", func(t *testing.T) {
		got := decode[Profile](t, h.do(t, http.MethodGet, "/api/v1/storefront/profiles/pet-2", nil))
		assert.Nil(t, got.Weight)
		assert.Equal(t, "N/A", got.WeightText)
	})

	t.Run("records metrics under the route pattern", func(t *testing.T) {
		labels := map[string]string{"method": "GET", "route": "/api/v1/storefront/profiles/{profileID}", "code": "404"}

		testsupport.AssertMetricDelta(t, "pawmatch_http_requests_total", labels, 1, func() {
			rec := h.do(t, http.MethodGet, "/api/v1/storefront/profiles/pet-404", nil)
			require.Equal(t, http.StatusNotFound, rec.Code)
		})
		testsupport.AssertHistogramRecorded(t, "pawmatch_http_handling_seconds",
			map[string]string{"method": "GET", "route": "/api/v1/storefront/profiles/{profileID}"})
	})
}

func TestAPI_Settings(t *testing.T) {
	t.Parallel()

	t.Run("storefront read", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		rec := h.do(t, http.MethodGet, "/api/v1/storefront/settings", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[Settings](t, rec)
		assert.Equal(t, []string{"Cat", "Dog"}, got.Types)
		assert.Equal(t, weight.UnitKilograms, got.WeightUnit)
	})

	t.Run("admin write invalidates the cache", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		rec := h.do(t, http.MethodPut, "/api/v1/settings", `{
			"pet_types": {" Dog ": ["Beagle", "Beagle", " "], "Bird": null},
			"weight_unit": "LBS"
		}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		want := settings.Settings{PetTypes: map[string][]string{"Dog": {"Beagle"}, "Bird": {}}, WeightUnit: weight.UnitPounds}
		assert.Equal(t, want, h.settings.saved[testShop])
		assert.Equal(t, []string{testShop}, h.settings.invalidated)
		assert.Equal(t, []string{"Bird", "Dog"}, decode[Settings](t, rec).Types)
	})

	t.Run("rejects unknown units", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		rec := h.do(t, http.MethodPut, "/api/v1/settings", SettingsRequest{PetTypes: map[string][]string{"Dog": {}}, WeightUnit: "stone"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, h.settings.invalidated)
	})
}

func TestAPI_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.api.Router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := h.do(t, http.MethodGet, "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decode[ErrorResponse](t, rec).Code)
}

type provisionFunc func(ctx context.Context, shop string) error

func (f provisionFunc) EnsureSubscription(ctx context.Context, shop string) error { return f(ctx, shop) }

func TestAPI_Timeouts(t *testing.T) {
	t.Parallel()

	t.Run("a query deadline inside a live request is a JSON 504", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(d *Deps) {
			d.Shops = provisionFunc(func(context.Context, string) error {
				return fmt.Errorf("failed to ensure subscription: %w", context.DeadlineExceeded)
			})
		})

		rec := h.do(t, http.MethodGet, "/api/v1/usage", nil)

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, CodeTimeout, decode[ErrorResponse](t, rec).Code)
	})

	t.Run("an expired request is answered once by the timeout middleware", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(d *Deps) {
			d.Shops = provisionFunc(func(ctx context.Context, _ string) error {
				<-ctx.Done()
				return ctx.Err()
			})
		})
		api := NewAPI(nil, &config.ServerConfig{RequestTimeout: 20 * time.Millisecond, MaxBodyBytes: 4096}, h.deps)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		req.Header.Set(ShopHeader, testShop)
		rec := httptest.NewRecorder()
		api.Router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestAPI_UnknownRoute(t *testing.T) {
	t.Parallel()

	rec := newHarness(t).do(t, http.MethodGet, "/api/v1/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, rec).Code)
}
