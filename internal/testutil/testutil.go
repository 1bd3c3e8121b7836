// Package testutil provides shared test helpers for setting up databases
// and note fixtures.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/storage"
)

// Epoch is the fixed creation time of fixture notes.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lattice-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := storage.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Note builds a fixture note with plain-text content.
func Note(id, title, parentID string, order int) *models.Note {
	return &models.Note{
		ID:        id,
		Title:     title,
		Content:   content.FromText(title + " body").String(),
		ParentID:  parentID,
		Order:     order,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
}

// LinkTo returns document content holding a single NOTE_LINK to target,
// shown as [[title]] between prefix and suffix.
func LinkTo(prefix, target, title, suffix string) string {
	doc := content.Empty()
	key := doc.AddEntity(content.NewEntity(content.NoteLinkData{NoteID: target, Title: title}, content.Immutable))
	shown := "[[" + title + "]]"
	b := content.NewBlock(content.BlockUnstyled, prefix+shown+suffix)
	b.EntityRanges = []content.EntityRange{{
		Offset: len([]rune(prefix)),
		Length: len([]rune(shown)),
		Key:    key,
	}}
	doc.Blocks = []content.Block{b}
	return doc.String()
}

// Seed stores notes in p, failing the test on error.
func Seed(t *testing.T, p storage.Provider, notes ...*models.Note) {
	t.Helper()
	for _, n := range notes {
		if _, err := p.CreateNote(t.Context(), n); err != nil {
			t.Fatalf("seed %s: %v", n.ID, err)
		}
	}
}
