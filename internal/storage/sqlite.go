package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	parent_id  TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	links_out  TEXT NOT NULL DEFAULT '[]',
	links_in   TEXT NOT NULL DEFAULT '[]',
	embeds     TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_id, sort_order);
`

const noteColumns = `id, title, content, parent_id, sort_order, links_out, links_in, embeds, created_at, updated_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite implements Provider on a single SQLite database file.
type SQLite struct {
	db *sql.DB
	tx *sql.Tx // set on the view handed to a Tx callback
}

var _ Provider = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	const op = "storage.OpenSQLite"
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindStorageUnavailable, op)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(fmt.Errorf("ping: %w", err), apperr.KindStorageUnavailable, op)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, apperr.Wrap(fmt.Errorf("apply schema: %w", err), apperr.KindStorageUnavailable, op)
	}
	if err := initFTS(db); err != nil {
		db.Close()
		return nil, apperr.Wrap(fmt.Errorf("apply fts schema: %w", err), apperr.KindStorageUnavailable, op)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database. It is a no-op on a transactional view.
func (s *SQLite) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// write runs fn in the enclosing transaction, or in a fresh one.
func (s *SQLite) write(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, op)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.KindTransactionFailed, op)
	}
	return nil
}

// Tx runs fn inside one database transaction. Nested calls join the
// enclosing transaction.
func (s *SQLite) Tx(ctx context.Context, fn func(Provider) error) error {
	if s.tx != nil {
		return fn(s)
	}
	const op = "storage.Tx"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, op)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLite{db: s.db, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.KindTransactionFailed, op)
	}
	return nil
}

func (s *SQLite) GetNote(ctx context.Context, id string) (*models.Note, error) {
	return getNote(ctx, s.q(), id)
}

func getNote(ctx context.Context, q querier, id string) (*models.Note, error) {
	const op = "storage.GetNote"
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(op, id)
	}
	if err != nil {
		return nil, classify(err, op)
	}
	return n, nil
}

func (s *SQLite) GetNotesByParent(ctx context.Context, parentID string) ([]*models.Note, error) {
	return s.GetNotes(ctx, Query{ParentID: &parentID})
}

func (s *SQLite) CreateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	const op = "storage.CreateNote"
	err := s.write(ctx, op, func(tx *sql.Tx) error {
		if err := insertNote(ctx, tx, n); err != nil {
			return classify(err, op)
		}
		return ftsUpsert(ctx, tx, n.ID, n.Title, plainText(n.Content))
	})
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (s *SQLite) UpdateNote(ctx context.Context, id string, p models.NotePatch) (*models.Note, error) {
	const op = "storage.UpdateNote"
	var out *models.Note
	err := s.write(ctx, op, func(tx *sql.Tx) error {
		n, err := getNote(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(n)
		if err := updateNote(ctx, tx, n); err != nil {
			return classify(err, op)
		}
		if p.Title != nil || p.Content != nil {
			if err := ftsUpsert(ctx, tx, n.ID, n.Title, plainText(n.Content)); err != nil {
				return err
			}
		}
		out = n
		return nil
	})
	return out, err
}

func (s *SQLite) DeleteNote(ctx context.Context, id string) error {
	const op = "storage.DeleteNote"
	return s.write(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
		if err != nil {
			return classify(err, op)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return apperr.NotFound(op, id)
		}
		ftsDelete(ctx, tx, id)
		return nil
	})
}

func (s *SQLite) GetNotes(ctx context.Context, q Query) ([]*models.Note, error) {
	const op = "storage.GetNotes"
	if err := q.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, op)
	}

	var (
		where []string
		args  []any
	)
	if q.ParentID != nil {
		where = append(where, `parent_id IS ?`)
		args = append(args, nullable(*q.ParentID))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		clause, arg := searchClause(search)
		where = append(where, clause)
		args = append(args, arg...)
	}

	query := `SELECT ` + noteColumns + ` FROM notes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY ` + orderBy(q.sortField(), q.Desc)
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, q.Offset)
	}

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	var out []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, classify(err, op)
		}
		out = append(out, n)
	}
	return out, classify(rows.Err(), op)
}

func orderBy(f SortField, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch f {
	case SortTitle:
		return "title COLLATE NOCASE " + dir + ", id"
	case SortCreated:
		return "created_at " + dir + ", id"
	case SortUpdated:
		return "updated_at " + dir + ", id"
	default:
		return "COALESCE(parent_id, '') " + dir + ", sort_order " + dir + ", id"
	}
}

func insertNote(ctx context.Context, tx *sql.Tx, n *models.Note) error {
	out, in, embeds, err := encodeLinks(n)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, body, parent_id, sort_order, links_out, links_in, embeds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Title, n.Content, plainText(n.Content), nullable(n.ParentID), n.Order,
		out, in, embeds, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	return err
}

func updateNote(ctx context.Context, tx *sql.Tx, n *models.Note) error {
	out, in, embeds, err := encodeLinks(n)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET
			title      = ?,
			content    = ?,
			body       = ?,
			parent_id  = ?,
			sort_order = ?,
			links_out  = ?,
			links_in   = ?,
			embeds     = ?,
			updated_at = ?
		WHERE id = ?
	`, n.Title, n.Content, plainText(n.Content), nullable(n.ParentID), n.Order,
		out, in, embeds, formatTime(n.UpdatedAt), n.ID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(sc scanner) (*models.Note, error) {
	var (
		n                    models.Note
		parent               sql.NullString
		out, in, embeds      string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&n.ID, &n.Title, &n.Content, &parent, &n.Order, &out, &in, &embeds, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	n.ParentID = parent.String
	if err := json.Unmarshal([]byte(out), &n.Links.Outbound); err != nil {
		return nil, fmt.Errorf("decode links_out of %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(in), &n.Links.Inbound); err != nil {
		return nil, fmt.Errorf("decode links_in of %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(embeds), &n.Embeds); err != nil {
		return nil, fmt.Errorf("decode embeds of %s: %w", n.ID, err)
	}
	var err error
	if n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func encodeLinks(n *models.Note) (out, in, embeds string, err error) {
	enc := func(v any) string {
		if err != nil {
			return ""
		}
		var b []byte
		b, err = json.Marshal(v)
		return string(b)
	}
	out = enc(nonNil(n.Links.Outbound))
	in = enc(nonNil(n.Links.Inbound))
	embeds = enc(nonNil(n.Embeds))
	return out, in, embeds, err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullable(parentID string) any {
	if parentID == "" {
		return nil
	}
	return parentID
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// plainText is the searchable text of stored content.
func plainText(raw string) string {
	if doc, err := content.Parse(raw); err == nil {
		return doc.PlainText()
	}
	return raw
}
