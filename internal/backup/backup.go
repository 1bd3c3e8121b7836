// Package backup reads and writes the portable backup document and watches
// a directory for backups to import.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
)

// Version is the backup format version written by Encode.
const Version = 1

// Document is the backup file: every note plus when it was taken.
type Document struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exportedAt"`
	Notes      []SerializedNote `json:"notes"`
}

// SerializedNote mirrors models.Note with an explicit null parent.
type SerializedNote struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	ParentID  *string        `json:"parentId"`
	Order     int            `json:"order"`
	Links     models.Links   `json:"links"`
	Embeds    []models.Embed `json:"embeds"`
}

// Validate checks a decoded backup before anything is imported from it.
func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Version, validation.Required, validation.In(Version)),
		validation.Field(&d.Notes),
	)
}

// Validate checks one serialised note.
func (n SerializedNote) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required, validation.Length(1, 128)),
		validation.Field(&n.CreatedAt, validation.Required),
		validation.Field(&n.UpdatedAt, validation.Required, validation.Min(n.CreatedAt)),
		validation.Field(&n.Order, validation.Min(0)),
	)
}

// Encode builds a backup of notes taken at now.
func Encode(notes []*models.Note, now time.Time) *Document {
	doc := &Document{Version: Version, ExportedAt: now.UTC(), Notes: make([]SerializedNote, 0, len(notes))}
	for _, n := range notes {
		var parent *string
		if n.ParentID != "" {
			p := n.ParentID
			parent = &p
		}
		doc.Notes = append(doc.Notes, SerializedNote{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			CreatedAt: n.CreatedAt.UTC(),
			UpdatedAt: n.UpdatedAt.UTC(),
			ParentID:  parent,
			Order:     n.Order,
			Links:     models.Links{Outbound: nonNil(n.Links.Outbound), Inbound: nonNil(n.Links.Inbound)},
			Embeds:    nonNil(n.Embeds),
		})
	}
	return doc
}

// Notes converts the backup back into notes. Link sets are carried over
// as stored; callers reconcile before use.
func (d *Document) ToNotes() []*models.Note {
	out := make([]*models.Note, 0, len(d.Notes))
	for _, s := range d.Notes {
		n := &models.Note{
			ID:        s.ID,
			Title:     s.Title,
			Content:   s.Content,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
			Order:     s.Order,
			Links:     s.Links,
			Embeds:    s.Embeds,
		}
		if s.ParentID != nil {
			n.ParentID = *s.ParentID
		}
		out = append(out, n)
	}
	return out
}

// Decode reads and validates a backup.
func Decode(r io.Reader) (*Document, error) {
	const op = "backup.Decode"
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, apperr.Wrap(fmt.Errorf("parse: %w", err), apperr.KindValidation, op)
	}
	if err := doc.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, op)
	}
	return &doc, nil
}

// ReadFile decodes the backup at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backup: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile atomically writes doc to path: tmp file, fsync, rename.
func WriteFile(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("backup: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".lattice-tmp-*")
	if err != nil {
		return fmt.Errorf("backup: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("backup: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("backup: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("backup: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("backup: rename: %w", err)
	}
	success = true
	return nil
}

// FileName is the name a backup taken at t gets inside a backup directory.
func FileName(t time.Time) string {
	return "lattice-backup-" + t.UTC().Format("20060102T150405Z") + ".json"
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
