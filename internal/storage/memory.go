package storage

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
)

// Memory is an in-process Provider. Notes are copied on the way in and
// out, so callers never share state with the store.
type Memory struct {
	mu    sync.Mutex
	notes map[string]*models.Note
}

var _ Provider = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{notes: make(map[string]*models.Note)}
}

func (m *Memory) Close() error { return nil }

// Tx runs fn against a copy of the store and swaps it in when fn succeeds.
// Other callers wait until the transaction ends.
func (m *Memory) Tx(_ context.Context, fn func(Provider) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &Memory{notes: maps.Clone(m.notes)}
	if err := fn(view); err != nil {
		return err
	}
	m.notes = view.notes
	return nil
}

func (m *Memory) GetNote(_ context.Context, id string) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, apperr.NotFound("storage.GetNote", id)
	}
	return n.Clone(), nil
}

func (m *Memory) GetNotesByParent(ctx context.Context, parentID string) ([]*models.Note, error) {
	return m.GetNotes(ctx, Query{ParentID: &parentID})
}

func (m *Memory) CreateNote(_ context.Context, n *models.Note) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.notes[n.ID]; dup {
		return nil, apperr.New(apperr.KindConflict, "storage.CreateNote", "note "+n.ID+" already exists")
	}
	m.notes[n.ID] = n.Clone()
	return n.Clone(), nil
}

func (m *Memory) UpdateNote(_ context.Context, id string, p models.NotePatch) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.notes[id]
	if !ok {
		return nil, apperr.NotFound("storage.UpdateNote", id)
	}
	n := cur.Clone()
	p.Apply(n)
	m.notes[id] = n
	return n.Clone(), nil
}

func (m *Memory) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return apperr.NotFound("storage.DeleteNote", id)
	}
	delete(m.notes, id)
	return nil
}

func (m *Memory) GetNotes(_ context.Context, q Query) ([]*models.Note, error) {
	if err := q.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "storage.GetNotes")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	var out []*models.Note
	for _, n := range m.notes {
		if q.ParentID != nil && n.ParentID != *q.ParentID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(n.Title), needle) &&
			!strings.Contains(strings.ToLower(plainText(n.Content)), needle) {
			continue
		}
		out = append(out, n.Clone())
	}

	slices.SortFunc(out, compareBy(q.sortField(), q.Desc))
	if q.Offset > 0 {
		out = out[min(q.Offset, len(out)):]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// compareBy mirrors the ORDER BY clauses of the SQLite provider.
func compareBy(f SortField, desc bool) func(a, b *models.Note) int {
	dir := 1
	if desc {
		dir = -1
	}
	return func(a, b *models.Note) int {
		var c int
		switch f {
		case SortTitle:
			c = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortCreated:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case SortUpdated:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			c = cmp.Or(strings.Compare(a.ParentID, b.ParentID), cmp.Compare(a.Order, b.Order))
		}
		if c != 0 {
			return c * dir
		}
		return strings.Compare(a.ID, b.ID)
	}
}
