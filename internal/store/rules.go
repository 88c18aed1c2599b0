package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafaeljc/pawmatch/internal/ruleengine"
)

// RuleRepository persists merchant product rules.
type RuleRepository interface {
	// FindActiveRules returns the shop's active rules, compiled, highest priority first.
	FindActiveRules(ctx context.Context, shop string) ([]ruleengine.Rule, error)

	// ListRules returns a page of the shop's rules and the total count.
	ListRules(ctx context.Context, shop string, limit, offset int) ([]ruleengine.Rule, int64, error)

	GetRule(ctx context.Context, shop, id string) (*ruleengine.Rule, error)
	FindRuleByName(ctx context.Context, shop, name string) (*ruleengine.Rule, error)
	CountRules(ctx context.Context, shop string) (int, error)

	// UpsertRule updates the rule when its ID exists for the shop, otherwise
	// inserts it under a fresh ID. ID and timestamps are written back.
	UpsertRule(ctx context.Context, r *ruleengine.Rule) error

	DeleteRule(ctx context.Context, shop, id string) error
	DeleteRules(ctx context.Context, shop string, ids []string) (int64, error)
}

const (
	ruleColumns = `id::text, shop, name, priority, is_active, conditions, product_ids, created_at, updated_at`

	ruleNameConstraint = "product_rules_shop_name_key"
)

func scanRule(row pgx.Row) (ruleengine.Rule, error) {
	var r ruleengine.Rule
	var raw []byte
	err := row.Scan(&r.ID, &r.Shop, &r.Name, &r.Priority, &r.IsActive, &raw, &r.ProductIDs, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return ruleengine.Rule{}, err
	}
	r.RawConditions = raw
	return r, nil
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]ruleengine.Rule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := []ruleengine.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if err := ruleengine.CompileRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *PostgresStore) FindActiveRules(ctx context.Context, shop string) ([]ruleengine.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM product_rules
		WHERE shop = $1 AND is_active
		ORDER BY priority DESC, created_at ASC, id ASC
	`
	return s.queryRules(ctx, query, shop)
}

func (s *PostgresStore) ListRules(ctx context.Context, shop string, limit, offset int) ([]ruleengine.Rule, int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM product_rules WHERE shop = $1`, shop).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}
	if total == 0 {
		return []ruleengine.Rule{}, 0, nil
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM product_rules
		WHERE shop = $1
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	rules, err := s.queryRules(ctx, query, shop, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// GetRule returns (nil, nil) when the shop has no rule with that ID.
func (s *PostgresStore) GetRule(ctx context.Context, shop, id string) (*ruleengine.Rule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return s.getRuleWhere(ctx, `shop = $1 AND id = $2`, shop, id)
}

// FindRuleByName returns (nil, nil) when no rule has that exact name.
func (s *PostgresStore) FindRuleByName(ctx context.Context, shop, name string) (*ruleengine.Rule, error) {
	return s.getRuleWhere(ctx, `shop = $1 AND name = $2`, shop, name)
}

func (s *PostgresStore) getRuleWhere(ctx context.Context, where string, args ...any) (*ruleengine.Rule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ruleColumns + ` FROM product_rules WHERE ` + where
	r, err := scanRule(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	rules := []ruleengine.Rule{r}
	if err := ruleengine.CompileRules(rules); err != nil {
		return nil, err
	}
	return &rules[0], nil
}

// CountRules counts active rules only; inactive drafts do not consume the plan allowance.
func (s *PostgresStore) CountRules(ctx context.Context, shop string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM product_rules WHERE shop = $1 AND is_active`, shop).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpsertRule(ctx context.Context, r *ruleengine.Rule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}
	productIDs := r.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}

	if _, parseErr := uuid.Parse(r.ID); parseErr == nil {
		query := `
			UPDATE product_rules
			SET name = $3, priority = $4, is_active = $5, conditions = $6, product_ids = $7, updated_at = NOW()
			WHERE id = $1 AND shop = $2
			RETURNING created_at, updated_at
		`
		err = s.db.QueryRow(ctx, query, r.ID, r.Shop, r.Name, r.Priority, r.IsActive, conditions, productIDs).
			Scan(&r.CreatedAt, &r.UpdatedAt)
		if err == nil {
			r.RawConditions = conditions
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return s.ruleWriteError(err, r.Name)
		}
	}

	id := uuid.NewString()
	query := `
		INSERT INTO product_rules (id, shop, name, priority, is_active, conditions, product_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRow(ctx, query, id, r.Shop, r.Name, r.Priority, r.IsActive, conditions, productIDs).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return s.ruleWriteError(err, r.Name)
	}
	r.ID = id
	r.RawConditions = conditions
	return nil
}

func (s *PostgresStore) ruleWriteError(err error, name string) error {
	if isUniqueViolation(err, ruleNameConstraint) {
		return fmt.Errorf("%w: %q", ErrDuplicateRuleName, name)
	}
	return fmt.Errorf("failed to save rule: %w", err)
}

func (s *PostgresStore) DeleteRule(ctx context.Context, shop, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return ErrRuleNotFound
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM product_rules WHERE shop = $1 AND id = $2`, shop, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRules removes every listed rule owned by the shop and reports how
// many went away. Malformed IDs are skipped.
func (s *PostgresStore) DeleteRules(ctx context.Context, shop string, ids []string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM product_rules WHERE shop = $1 AND id = ANY($2::text[]::uuid[])`, shop, valid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rules: %w", err)
	}
	return tag.RowsAffected(), nil
}
