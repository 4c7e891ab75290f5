// Package dbx holds the small database helpers shared by the engine packages:
// transaction scoping over an m2m.Querier and SQLSTATE inspection.
package dbx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pthm/m2m"
)

// PostgreSQL error codes inspected by the engine.
const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

// InTx runs fn inside a transaction when q can begin one, and directly on q
// otherwise. A Querier that is already a transaction is used as is, so calls
// nest into the caller's transaction.
func InTx(ctx context.Context, q m2m.Querier, fn func(q m2m.Querier) error) error {
	b, ok := q.(m2m.Beginner)
	if !ok {
		return fn(q)
	}

	tx, err := b.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SQLState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: SQLState() string on *pq.Error
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func SQLState(err error) string {
	if err == nil {
		return ""
	}

	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	type codeErr interface{ Code() string }
	var ce codeErr
	if errors.As(err, &ce) {
		return ce.Code()
	}

	// Format: "... (SQLSTATE 42P01)" or "SQLSTATE: 42P01"
	errStr := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(errStr, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(errStr) {
				return errStr[start : start+5]
			}
		}
	}
	return ""
}

// IsUndefinedTable reports whether err is PostgreSQL's undefined_table error.
func IsUndefinedTable(err error) bool {
	return SQLState(err) == pgUndefinedTable
}

// IsUniqueViolation reports whether err is PostgreSQL's unique_violation error.
func IsUniqueViolation(err error) bool {
	return SQLState(err) == pgUniqueViolation
}
