package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rafaeljc/pawmatch/internal/ruleengine"
)

// ProfileRepository reads pet profiles. Profile management lives elsewhere.
type ProfileRepository interface {
	// GetProfile returns (nil, nil) when the profile does not exist for the shop.
	GetProfile(ctx context.Context, shop, id string) (*ruleengine.PetProfile, error)
}

func (s *PostgresStore) GetProfile(ctx context.Context, shop, id string) (*ruleengine.PetProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, shop, customer_id, name, pet_type, breed, weight_gram, birthday, attributes
		FROM pet_profiles
		WHERE shop = $1 AND id = $2
	`

	var p ruleengine.PetProfile
	var birthday *time.Time
	// Profiles are written elsewhere, so attribute values may be any JSON scalar.
	var attributes map[string]any
	err := s.db.QueryRow(ctx, query, shop, id).Scan(
		&p.ID,
		&p.Shop,
		&p.CustomerID,
		&p.Name,
		&p.Type,
		&p.Breed,
		&p.WeightGram,
		&birthday,
		&attributes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pet profile: %w", err)
	}

	p.Birthday = birthday
	p.Attributes = ruleengine.NormalizeAttributes(attributes)
	return &p, nil
}
