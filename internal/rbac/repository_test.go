package rbac

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vesper-social/vesper/internal/shared"
)

func TestMapPgErrorUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"}

	got := mapPgError(pgErr)
	if !errors.Is(got, shared.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", got)
	}
}

func TestMapPgErrorWrapped(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "role_permissions_pkey"}
	wrapped := fmt.Errorf("insert role: %w", pgErr)

	got := mapPgError(wrapped)
	if !errors.Is(got, shared.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate through wrapping, got %v", got)
	}
}

func TestMapPgErrorPassesThroughOtherCodes(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "role_permissions_role_id_fkey"}

	got := mapPgError(pgErr)
	if errors.Is(got, shared.ErrDuplicate) {
		t.Fatal("foreign key violation should not map to ErrDuplicate")
	}
	if !errors.Is(got, pgErr) {
		t.Fatalf("expected original error back, got %v", got)
	}
}
