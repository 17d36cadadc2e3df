package storage

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the stores translate into domain errors
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// IsNotFound reports whether a single-row lookup found nothing. A key that
// cannot be parsed as its column type, such as a malformed UUID, cannot match
// a row either.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || hasCode(err, codeInvalidText)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key failure
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
