// Package pgerr classifies PostgreSQL errors returned through pgx.
package pgerr

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/comicsync/internal/common"
)

// SQLSTATE codes we branch on.
const (
	UniqueViolation = "23505"
	CheckViolation  = "23514"
)

// Code returns the SQLSTATE of err, or "" when err is not a server error.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return Code(err) == UniqueViolation
}

// AsFieldError turns a check constraint violation into a *common.FieldError.
// Constraints are named "<table>_<field>_check"; prefix is prepended to the
// field. Other errors are returned as is.
func AsFieldError(err error, table, prefix string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CheckViolation {
		return err
	}
	field := strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, table+"_"), "_check")
	return common.NewFieldError(prefix+field, "rejected by the library")
}
