// Package sqlxrepos implements the core repositories on PostgreSQL via sqlx.
//
// Every method takes an optional core.DBExecutor so services can run a call
// inside a surrounding transaction; when none is given, the repository's own
// connection pool is used.
package sqlxrepos

import (
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/storage/database"
)

// ext resolves the executor for a call. Transactions started via
// database.DB.BeginTx are *sqlx.Tx values and satisfy sqlx.ExtContext.
func ext(db *database.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if e, ok := svcExec[0].(sqlx.ExtContext); ok {
			return e
		}
	}
	return db.DB
}

// orderBy renders an ORDER BY clause, falling back to a default ordering.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		if fallback == "" {
			return ""
		}
		return " ORDER BY " + fallback
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func timePtr(t time.Time, valid bool) *time.Time {
	if !valid {
		return nil
	}
	t = t.UTC()
	return &t
}
