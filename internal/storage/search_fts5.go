//go:build sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id, title, body string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, id)
	_, err := tx.ExecContext(ctx, `INSERT INTO notes_fts (id, title, body) VALUES (?, ?, ?)`, id, title, body)
	if err != nil {
		return classify(fmt.Errorf("upsert fts: %w", err), "storage.ftsUpsert")
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id string) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, id)
}

// searchClause matches every whitespace-separated term as a prefix.
func searchClause(query string) (string, []any) {
	var terms []string
	for _, f := range strings.Fields(query) {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return `id IN (SELECT id FROM notes_fts WHERE notes_fts MATCH ?)`, []any{strings.Join(terms, " ")}
}
