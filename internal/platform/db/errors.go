package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// SQLSTATE codes the repositories translate.
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
	NotNullViolation    = "23502"
)

// Code returns the SQLSTATE of err, or "" if it is not a Postgres error.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// MapWriteError translates an insert or update failure on entity.
// A foreign key violation means the row points at something that does not exist.
func MapWriteError(entity string, err error) error {
	if err == nil {
		return nil
	}
	switch Code(err) {
	case UniqueViolation:
		return fmt.Errorf("%s %w", entity, apperr.ErrConflict)
	case ForeignKeyViolation:
		return fmt.Errorf("%s references a missing row: %w", entity, apperr.ErrInvalidReference)
	case NotNullViolation:
		return fmt.Errorf("%s: %w: %s", entity, apperr.ErrValidation, err.Error())
	}
	return fmt.Errorf("write %s: %w", entity, err)
}

// MapDeleteError translates a delete failure on entity. A foreign key
// violation means other rows still reference it.
func MapDeleteError(entity string, id int64, err error) error {
	if err == nil {
		return nil
	}
	if Code(err) == ForeignKeyViolation {
		return fmt.Errorf("%s %d: %w", entity, id, apperr.ErrInUse)
	}
	return fmt.Errorf("delete %s %d: %w", entity, id, err)
}

// MapReadError translates pgx.ErrNoRows into apperr.ErrNotFound.
func MapReadError(entity string, id interface{}, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return fmt.Errorf("get %s %v: %w", entity, id, err)
}

// ExpectOne returns ErrNotFound when a mutation touched no rows.
func ExpectOne(tag pgconn.CommandTag, entity string, id int64) error {
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}
