// Package settings serves per-shop storefront configuration: the pet
// type/breed taxonomy and the display weight unit.
//
// Reads go through two cache layers before reaching the database. Entries
// may be stale for up to the sum of both TTLs; the taxonomy only drives UI
// population, so staleness is accepted.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/rafaeljc/pawmatch/internal/cache"
	"github.com/rafaeljc/pawmatch/internal/observability"
	"github.com/rafaeljc/pawmatch/internal/weight"
)

// Settings is a shop's storefront configuration.
type Settings struct {
	// PetTypes maps a type label to its known breeds.
	PetTypes   map[string][]string `json:"pet_types"`
	WeightUnit weight.Unit         `json:"weight_unit"`
}

// Defaults returns the settings used for shops that never saved any.
func Defaults() Settings {
	return Settings{
		PetTypes: map[string][]string{
			"Dog": {},
			"Cat": {},
		},
		WeightUnit: weight.UnitKilograms,
	}
}

// TypeLabels returns the configured pet types in sorted order.
func (s Settings) TypeLabels() []string {
	return slices.Sorted(maps.Keys(s.PetTypes))
}

// Source loads persisted settings. It returns (nil, nil) when the shop has none.
type Source interface {
	GetSettings(ctx context.Context, shop string) (*Settings, error)
}

// Local is the in-process layer. *cache.MemoryCache satisfies it.
type Local interface {
	Get(key string) (Settings, bool)
	Set(key string, value Settings)
	Del(key string)
}

var _ Local = (*cache.MemoryCache[Settings])(nil)

// Service is a read-through settings reader: Local, then the shared cache,
// then Source.
type Service struct {
	local  Local
	shared cache.Service
	source Source
	ttl    time.Duration
	logger *slog.Logger
}

// NewService creates a settings reader. sharedTTL is the lifetime of entries
// written to the shared cache. If logger is nil, it defaults to slog.Default().
func NewService(logger *slog.Logger, local Local, shared cache.Service, source Source, sharedTTL time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if local == nil {
		panic("settings: local cache cannot be nil")
	}
	if shared == nil {
		panic("settings: shared cache cannot be nil")
	}
	if source == nil {
		panic("settings: source cannot be nil")
	}
	return &Service{local: local, shared: shared, source: source, ttl: sharedTTL, logger: logger}
}

// Get returns the shop's settings, falling back to Defaults when none are stored.
// The returned value is shared with the cache and must not be mutated.
//
// Shared cache failures degrade to a database read; only Source errors are
// returned.
func (s *Service) Get(ctx context.Context, shop string) (Settings, error) {
	if v, ok := s.local.Get(shop); ok {
		observability.SettingsCacheHits.WithLabelValues("l1").Inc()
		return v, nil
	}

	var shared Settings
	found, err := s.shared.GetJSON(ctx, shop, &shared)
	switch {
	case err != nil:
		s.logger.Warn("settings shared cache read failed",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
	case found:
		observability.SettingsCacheHits.WithLabelValues("l2").Inc()
		shared = normalize(shared)
		s.local.Set(shop, shared)
		return shared, nil
	}

	observability.SettingsCacheMisses.Inc()

	stored, err := s.source.GetSettings(ctx, shop)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings for shop %q: %w", shop, err)
	}

	result := Defaults()
	if stored != nil {
		result = normalize(*stored)
	}

	if err := s.shared.SetJSON(ctx, shop, result, s.ttl); err != nil {
		s.logger.Warn("settings shared cache write failed",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
	}
	s.local.Set(shop, result)

	return result, nil
}

// Invalidate drops the shop from both cache layers. Other replicas keep their
// local copy until it expires.
func (s *Service) Invalidate(ctx context.Context, shop string) error {
	s.local.Del(shop)
	if err := s.shared.Del(ctx, shop); err != nil {
		return fmt.Errorf("failed to invalidate settings for shop %q: %w", shop, err)
	}
	return nil
}

// normalize fills gaps left by partial or legacy documents.
func normalize(s Settings) Settings {
	if s.PetTypes == nil {
		s.PetTypes = Defaults().PetTypes
	}
	for label, breeds := range s.PetTypes {
		if breeds == nil {
			s.PetTypes[label] = []string{}
		}
	}
	s.WeightUnit = weight.ParseUnit(string(s.WeightUnit))
	return s
}
