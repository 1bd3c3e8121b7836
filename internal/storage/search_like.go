//go:build !sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search uses LIKE on the title and body columns.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) {}

func searchClause(query string) (string, []any) {
	like := "%" + escapeLike(query) + "%"
	return `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`, []any{like, like}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
