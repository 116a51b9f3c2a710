package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vesper-social/vesper/internal/shared"
)

// Repository provides PostgreSQL backed persistence for compliance rules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, COALESCE(user_id, ''), feature, is_allowed, restrictions, reason, COALESCE(country, ''), COALESCE(region, ''), created_at, updated_at`

// ListForFeature returns the user's rules plus wildcard rules for a feature,
// newest first.
func (r *Repository) ListForFeature(ctx context.Context, userID, feature string) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM compliance_rules
		WHERE feature = $1 AND (user_id = $2 OR user_id IS NULL)
		ORDER BY created_at DESC`, feature, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// List returns every rule ordered by feature.
func (r *Repository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM compliance_rules ORDER BY feature, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.Feature, &rule.Allowed, &rule.Restrictions,
			&rule.Reason, &rule.Country, &rule.Region, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a rule. An empty UserID is stored as NULL (wildcard).
func (r *Repository) Create(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	var userID *string
	if rule.UserID != "" {
		userID = &rule.UserID
	}
	var country, region *string
	if rule.Country != "" {
		c := NormalizeCountry(rule.Country)
		country = &c
	}
	if rule.Region != "" {
		region = &rule.Region
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO compliance_rules (id, user_id, feature, is_allowed, restrictions, reason, country, region)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rule.ID, userID, rule.Feature, rule.Allowed, rule.Restrictions, rule.Reason, country, region,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return Rule{}, mapPgError(err)
	}
	return rule, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("compliance: %s: %w", pgErr.ConstraintName, shared.ErrDuplicate)
	}
	return err
}

// Delete removes a rule by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM compliance_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("compliance: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// Get fetches a rule by id.
func (r *Repository) Get(ctx context.Context, id string) (Rule, error) {
	var rule Rule
	err := r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM compliance_rules WHERE id = $1`, id).Scan(
		&rule.ID, &rule.UserID, &rule.Feature, &rule.Allowed, &rule.Restrictions,
		&rule.Reason, &rule.Country, &rule.Region, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, fmt.Errorf("compliance: %s: %w", id, shared.ErrNotFound)
	}
	return rule, err
}
