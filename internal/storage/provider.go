// Package storage persists notes. The Provider contract is what the note
// service consumes; SQLite is the production implementation and Memory
// backs tests and throwaway workspaces.
package storage

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lattice/internal/models"
)

// Provider is the note persistence contract. Every error it returns is an
// *apperr.Error carrying one of the storage kinds.
type Provider interface {
	// GetNote returns the note with the given id, or NOT_FOUND.
	GetNote(ctx context.Context, id string) (*models.Note, error)
	// GetNotesByParent returns the children of parentID ("" for roots) by order.
	GetNotesByParent(ctx context.Context, parentID string) ([]*models.Note, error)
	// CreateNote stores a new note. A duplicate id is a CONFLICT.
	CreateNote(ctx context.Context, n *models.Note) (*models.Note, error)
	// UpdateNote applies a partial update and returns the stored result.
	UpdateNote(ctx context.Context, id string, p models.NotePatch) (*models.Note, error)
	// DeleteNote removes a note. Children are not touched.
	DeleteNote(ctx context.Context, id string) error
	// GetNotes lists notes matching q.
	GetNotes(ctx context.Context, q Query) ([]*models.Note, error)
	// Tx runs fn against a transactional view; any error from fn rolls back
	// every write made through that view.
	Tx(ctx context.Context, fn func(Provider) error) error
	Close() error
}

// SortField selects the ordering of GetNotes.
type SortField string

const (
	SortOrder   SortField = "order" // parent, then sibling order
	SortTitle   SortField = "title"
	SortCreated SortField = "created"
	SortUpdated SortField = "updated"
)

// Query filters and pages GetNotes.
type Query struct {
	ParentID *string // nil matches every parent; "" matches roots
	Search   string  // case-insensitive match on title and text
	SortBy   SortField
	Desc     bool
	Limit    int // 0 means unlimited
	Offset   int
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.SortBy, validation.In(SortOrder, SortTitle, SortCreated, SortUpdated)),
		validation.Field(&q.Limit, validation.Min(0)),
		validation.Field(&q.Offset, validation.Min(0)),
	)
}

func (q Query) sortField() SortField {
	if q.SortBy == "" {
		return SortOrder
	}
	return q.SortBy
}
