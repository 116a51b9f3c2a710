package abtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vesper-social/vesper/internal/shared"
)

// Repository provides PostgreSQL backed persistence for experiments.
// Variants and target criteria are stored as JSONB.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const testColumns = `id, name, feature, start_date, end_date, target_criteria, variants, status, created_at, updated_at`

func scanTest(row pgx.Row) (Test, error) {
	var (
		test        Test
		criteriaRaw []byte
		variantsRaw []byte
	)
	err := row.Scan(&test.ID, &test.Name, &test.Feature, &test.StartDate, &test.EndDate,
		&criteriaRaw, &variantsRaw, &test.Status, &test.CreatedAt, &test.UpdatedAt)
	if err != nil {
		return Test{}, err
	}
	if len(criteriaRaw) > 0 {
		if err := json.Unmarshal(criteriaRaw, &test.TargetCriteria); err != nil {
			return Test{}, fmt.Errorf("abtest: decode criteria for %s: %w", test.ID, err)
		}
	}
	if len(variantsRaw) > 0 {
		if err := json.Unmarshal(variantsRaw, &test.Variants); err != nil {
			return Test{}, fmt.Errorf("abtest: decode variants for %s: %w", test.ID, err)
		}
	}
	return test, nil
}

// ListActiveByFeature returns running experiments for a feature, newest first.
func (r *Repository) ListActiveByFeature(ctx context.Context, feature string, now time.Time) ([]Test, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+testColumns+`
		FROM ab_tests
		WHERE feature = $1 AND status = 'ACTIVE' AND start_date <= $2 AND end_date >= $2
		ORDER BY created_at DESC`, feature, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTests(rows)
}

// List returns all experiments ordered by feature then creation time.
func (r *Repository) List(ctx context.Context) ([]Test, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+testColumns+` FROM ab_tests ORDER BY feature, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTests(rows)
}

func collectTests(rows pgx.Rows) ([]Test, error) {
	var tests []Test
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, test)
	}
	return tests, rows.Err()
}

// Get fetches an experiment by id.
func (r *Repository) Get(ctx context.Context, id string) (Test, error) {
	test, err := scanTest(r.pool.QueryRow(ctx, `SELECT `+testColumns+` FROM ab_tests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Test{}, fmt.Errorf("abtest: %s: %w", id, shared.ErrNotFound)
	}
	return test, err
}

// Create inserts an experiment after validating its variant table.
func (r *Repository) Create(ctx context.Context, test Test) (Test, error) {
	if err := test.ValidateVariants(); err != nil {
		return Test{}, err
	}
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	criteriaRaw, err := json.Marshal(test.TargetCriteria)
	if err != nil {
		return Test{}, err
	}
	variantsRaw, err := json.Marshal(test.Variants)
	if err != nil {
		return Test{}, err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO ab_tests (id, name, feature, start_date, end_date, target_criteria, variants, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		test.ID, test.Name, test.Feature, test.StartDate, test.EndDate, criteriaRaw, variantsRaw, test.Status,
	).Scan(&test.CreatedAt, &test.UpdatedAt)
	if err != nil {
		return Test{}, mapPgError(err)
	}
	return test, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("abtest: %s: %w", pgErr.ConstraintName, shared.ErrDuplicate)
	}
	return err
}

// UpdateStatus transitions an experiment between statuses.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status TestStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE ab_tests SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("abtest: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// Delete removes an experiment by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ab_tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("abtest: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}
