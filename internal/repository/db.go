// Package repository persists requests, providers and background jobs.
//
// PostgresStore and PostgresQueue back production; MemoryStore and
// MemoryQueue serve development and tests with the same semantics.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries runs statements against a DBTX.
type Queries struct {
	db DBTX
}

// New creates Queries over db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// notFound maps sql.ErrNoRows to a domain not-found error.
func notFound(err error, op, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(op, resource, id)
	}
	return err
}
