package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rafaeljc/pawmatch/internal/settings"
	"github.com/rafaeljc/pawmatch/internal/weight"
)

// GetSettings returns (nil, nil) when the shop never saved settings.
func (s *PostgresStore) GetSettings(ctx context.Context, shop string) (*settings.Settings, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var petTypes map[string][]string
	var unit string
	err := s.db.QueryRow(ctx, `SELECT pet_types, weight_unit FROM shop_settings WHERE shop = $1`, shop).Scan(&petTypes, &unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings.Settings{PetTypes: petTypes, WeightUnit: weight.ParseUnit(unit)}, nil
}

// SaveSettings replaces the shop's settings. Callers invalidate caches afterwards.
func (s *PostgresStore) SaveSettings(ctx context.Context, shop string, st settings.Settings) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	petTypes := st.PetTypes
	if petTypes == nil {
		petTypes = map[string][]string{}
	}
	encoded, err := json.Marshal(petTypes)
	if err != nil {
		return fmt.Errorf("failed to encode pet types: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO shop_settings (shop, pet_types, weight_unit) VALUES ($1, $2, $3)
		ON CONFLICT (shop) DO UPDATE
		SET pet_types = EXCLUDED.pet_types, weight_unit = EXCLUDED.weight_unit, updated_at = NOW()
	`, shop, encoded, string(weight.ParseUnit(string(st.WeightUnit))))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
