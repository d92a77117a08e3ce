package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation. When
// hints are given, the violation must reference one of them: Postgres
// constraint names are compared exactly, and every hint is also searched in the
// error text so SQLite's "table.column" messages match too.
func IsUniqueViolation(err error, hints ...string) bool {
	if err == nil {
		return false
	}

	constraint := ""
	unique := false

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		unique = pgxErr.Code == pgUniqueViolation
		constraint = pgxErr.ConstraintName
	case errors.As(err, &pqErr):
		unique = string(pqErr.Code) == pgUniqueViolation
		constraint = pqErr.Constraint
	case errors.Is(err, gorm.ErrDuplicatedKey):
		unique = true
	}

	msg := chainText(err)
	if !unique {
		unique = strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
	}
	if !unique {
		return false
	}
	if len(hints) == 0 {
		return true
	}
	for _, hint := range hints {
		if hint == "" {
			continue
		}
		if constraint != "" && constraint == hint {
			return true
		}
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// chainText joins every message in the wrap chain; typed wrappers may hide
// the driver text behind their own message.
func chainText(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		b.WriteString(e.Error())
		b.WriteByte('\n')
	}
	return b.String()
}

// IsRetryableTx reports serialization failures and deadlocks, plus SQLite's
// busy errors, all of which succeed when the transaction is rerun.
func IsRetryableTx(err error) bool {
	if err == nil {
		return false
	}
	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		return pgxErr.Code == pgSerializationFailure || pgxErr.Code == pgDeadlockDetected
	case errors.As(err, &pqErr):
		return string(pqErr.Code) == pgSerializationFailure || string(pqErr.Code) == pgDeadlockDetected
	}
	msg := chainText(err)
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
