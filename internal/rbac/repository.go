package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vesper-social/vesper/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles, permissions
// and user overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles with their permission names attached.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, description, level, created_at, updated_at FROM roles ORDER BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Name, &role.Description, &role.Level, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT rp.role_name, p.name
		FROM role_permissions rp
		JOIN permissions p ON p.name = rp.permission_name
		ORDER BY rp.role_name, p.name`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	byRole := make(map[string][]string)
	for permRows.Next() {
		var roleName, permName string
		if err := permRows.Scan(&roleName, &permName); err != nil {
			return nil, err
		}
		byRole[roleName] = append(byRole[roleName], permName)
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = byRole[roles[i].Name]
	}
	return roles, nil
}

// ListPermissions returns the permission catalog ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, resource, action, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreateRole inserts a new role with its permission assignments.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(role.Name))
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", shared.ErrValidation)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Role{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO roles (name, description, level)
		VALUES ($1, $2, $3)
		RETURNING name, description, level, created_at, updated_at`,
		name, strings.TrimSpace(role.Description), role.Level,
	).Scan(&role.Name, &role.Description, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	for _, perm := range role.Permissions {
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_name, permission_name) VALUES ($1, $2)`,
			name, strings.ToLower(perm)); err != nil {
			return Role{}, mapPgError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListOverrides returns all overrides for a user, newest first.
func (r *Repository) ListOverrides(ctx context.Context, userID string) ([]UserOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, override_type, key, value, reason, admin_id, created_at
		FROM user_overrides
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []UserOverride
	for rows.Next() {
		var ov UserOverride
		if err := rows.Scan(&ov.ID, &ov.UserID, &ov.Type, &ov.Key, &ov.Value, &ov.Reason, &ov.AdminID, &ov.CreatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// CreateOverride inserts an override and returns it with id and timestamp set.
func (r *Repository) CreateOverride(ctx context.Context, ov UserOverride) (UserOverride, error) {
	if ov.ID == "" {
		ov.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_overrides (id, user_id, override_type, key, value, reason, admin_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		ov.ID, ov.UserID, ov.Type, ov.Key, ov.Value, ov.Reason, ov.AdminID,
	).Scan(&ov.CreatedAt)
	if err != nil {
		return UserOverride{}, mapPgError(err)
	}
	return ov, nil
}

// DeleteOverride removes an override by id. Overrides never auto-expire;
// deletion is the only way one stops applying.
func (r *Repository) DeleteOverride(ctx context.Context, id string) (UserOverride, error) {
	var ov UserOverride
	err := r.pool.QueryRow(ctx, `
		DELETE FROM user_overrides WHERE id = $1
		RETURNING id, user_id, override_type, key, value, reason, admin_id, created_at`, id,
	).Scan(&ov.ID, &ov.UserID, &ov.Type, &ov.Key, &ov.Value, &ov.Reason, &ov.AdminID, &ov.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserOverride{}, fmt.Errorf("rbac: override %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return UserOverride{}, err
	}
	return ov, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("rbac: %s: %w", pgErr.ConstraintName, shared.ErrDuplicate)
	}
	return err
}
