// Package repo holds the pieces shared by the gorm repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base binds a repository to its pooled connection.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the pool bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	return b.Conn(ctx, nil)
}

// Conn prefers tx when one is open and binds the result to ctx.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	conn := b.db
	if tx != nil {
		conn = tx
	}
	if ctx == nil {
		return conn
	}
	return conn.WithContext(ctx)
}

// ForUpdate row-locks the selected rows until the transaction ends.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return lockRows(tx, "")
}

// ClaimRows row-locks the selected rows and skips any another transaction
// already holds, so concurrent workers split a queue without blocking.
func ClaimRows(tx *gorm.DB) *gorm.DB {
	return lockRows(tx, "SKIP LOCKED")
}

// lockRows is a no-op off Postgres. SQLite has no row locks and serializes
// writers on the whole database instead.
func lockRows(tx *gorm.DB, options string) *gorm.DB {
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: options})
}
