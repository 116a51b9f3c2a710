package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vesper-social/vesper/internal/shared"
)

// Repository provides PostgreSQL backed persistence for policies. Rules,
// target criteria and restrictions are stored as JSONB.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const policyColumns = `id, name, feature, priority, status, rules, target_criteria, allow_on_match, restrictions, created_by, created_at, updated_at`

func scanPolicy(row pgx.Row) (Policy, error) {
	var (
		pol          Policy
		rulesRaw     []byte
		criteriaRaw  []byte
		restrictions []string
	)
	err := row.Scan(&pol.ID, &pol.Name, &pol.Feature, &pol.Priority, &pol.Status,
		&rulesRaw, &criteriaRaw, &pol.Allow, &restrictions, &pol.CreatedBy, &pol.CreatedAt, &pol.UpdatedAt)
	if err != nil {
		return Policy{}, err
	}
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &pol.Rules); err != nil {
			return Policy{}, fmt.Errorf("policy: decode rules for %s: %w", pol.ID, err)
		}
	}
	if len(criteriaRaw) > 0 {
		if err := json.Unmarshal(criteriaRaw, &pol.TargetCriteria); err != nil {
			return Policy{}, fmt.Errorf("policy: decode criteria for %s: %w", pol.ID, err)
		}
	}
	pol.Restrictions = restrictions
	return pol, nil
}

// ListActiveByFeature returns ACTIVE policies for a feature ordered for
// evaluation: priority descending, then most recently updated first.
func (r *Repository) ListActiveByFeature(ctx context.Context, feature string) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE feature = $1 AND status = 'ACTIVE'
		ORDER BY CASE priority WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC, updated_at DESC`,
		feature)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPolicies(rows)
}

// List returns all policies ordered by feature then name.
func (r *Repository) List(ctx context.Context) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY feature, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPolicies(rows)
}

func collectPolicies(rows pgx.Rows) ([]Policy, error) {
	var policies []Policy
	for rows.Next() {
		pol, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, pol)
	}
	return policies, rows.Err()
}

// Get fetches a policy by id regardless of status.
func (r *Repository) Get(ctx context.Context, id string) (Policy, error) {
	pol, err := scanPolicy(r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Policy{}, fmt.Errorf("policy: %s: %w", id, shared.ErrNotFound)
	}
	return pol, err
}

// Create inserts a new policy.
func (r *Repository) Create(ctx context.Context, pol Policy) (Policy, error) {
	if pol.ID == "" {
		pol.ID = uuid.NewString()
	}
	rulesRaw, criteriaRaw, err := encodePolicy(pol)
	if err != nil {
		return Policy{}, err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO policies (id, name, feature, priority, status, rules, target_criteria, allow_on_match, restrictions, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		pol.ID, pol.Name, pol.Feature, pol.Priority, pol.Status, rulesRaw, criteriaRaw, pol.Allow, pol.Restrictions, pol.CreatedBy,
	).Scan(&pol.CreatedAt, &pol.UpdatedAt)
	if err != nil {
		return Policy{}, mapPgError(err)
	}
	return pol, nil
}

// Update replaces a policy's mutable fields and bumps updated_at, which also
// promotes it in the tie-break order among same-priority policies.
func (r *Repository) Update(ctx context.Context, pol Policy) (Policy, error) {
	rulesRaw, criteriaRaw, err := encodePolicy(pol)
	if err != nil {
		return Policy{}, err
	}
	err = r.pool.QueryRow(ctx, `
		UPDATE policies
		SET name = $2, feature = $3, priority = $4, status = $5, rules = $6, target_criteria = $7,
		    allow_on_match = $8, restrictions = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_by, created_at, updated_at`,
		pol.ID, pol.Name, pol.Feature, pol.Priority, pol.Status, rulesRaw, criteriaRaw, pol.Allow, pol.Restrictions,
	).Scan(&pol.CreatedBy, &pol.CreatedAt, &pol.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Policy{}, fmt.Errorf("policy: %s: %w", pol.ID, shared.ErrNotFound)
	}
	if err != nil {
		return Policy{}, mapPgError(err)
	}
	return pol, nil
}

// Delete removes a policy by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func encodePolicy(pol Policy) (rulesRaw, criteriaRaw []byte, err error) {
	rulesRaw, err = json.Marshal(pol.Rules)
	if err != nil {
		return nil, nil, err
	}
	criteriaRaw, err = json.Marshal(pol.TargetCriteria)
	if err != nil {
		return nil, nil, err
	}
	return rulesRaw, criteriaRaw, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("policy: %s: %w", pgErr.ConstraintName, shared.ErrDuplicate)
	}
	return err
}
