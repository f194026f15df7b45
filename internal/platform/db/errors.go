package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbook/clinic/internal/platform/apperr"
)

// PostgreSQL SQLSTATE codes the repositories care about.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
	CodeExclusionViolation  = "23P01"
)

// IsNoRows reports whether err means a single-row query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// PgCode returns the SQLSTATE of a PostgreSQL error in err's chain, or "".
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Constraint returns the violated constraint name, or "".
func Constraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func IsUniqueViolation(err error) bool     { return PgCode(err) == CodeUniqueViolation }
func IsForeignKeyViolation(err error) bool { return PgCode(err) == CodeForeignKeyViolation }
func IsExclusionViolation(err error) bool  { return PgCode(err) == CodeExclusionViolation }
func IsCheckViolation(err error) bool      { return PgCode(err) == CodeCheckViolation }

// StaleWrite classifies a version-conditioned write that matched no rows:
// NotFound when the row is gone, Conflict when its version moved on.
// table must be a trusted identifier.
func StaleWrite(ctx context.Context, q Querier, table string, id any, entity string) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s: %w", entity, err)
	}
	if !exists {
		return apperr.NotFound("%s not found", entity)
	}
	return apperr.Conflict("%s was modified concurrently", entity)
}
