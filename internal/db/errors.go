package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// VisibilityConflictCode is the SQLSTATE raised by the ledger guard trigger
// when a statement touches rows still inside the write-visibility window.
const VisibilityConflictCode = "55006"

// visibilityConflictMessage is shared by the Postgres and SQLite triggers.
const visibilityConflictMessage = "would affect rows in the streaming buffer"

// IsVisibilityConflict reports whether err is a rejection caused by the
// write-visibility window.
func IsVisibilityConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == VisibilityConflictCode {
		return true
	}
	return strings.Contains(err.Error(), visibilityConflictMessage)
}
