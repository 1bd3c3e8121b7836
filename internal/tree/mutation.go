package tree

import (
	"slices"

	"github.com/starford/lattice/internal/models"
)

// mutation is a copy-on-write view over a note collection.
type mutation struct {
	notes   []*models.Note
	pos     map[string]int
	copied  map[string]bool
	dropped map[string]bool
}

func newMutation(notes []*models.Note) *mutation {
	m := &mutation{
		notes:   slices.Clone(notes),
		pos:     make(map[string]int, len(notes)),
		copied:  make(map[string]bool),
		dropped: make(map[string]bool),
	}
	for i, n := range notes {
		m.pos[n.ID] = i
	}
	return m
}

// edit returns a writable copy of note id, cloning it on first use.
func (m *mutation) edit(id string) *models.Note {
	i := m.pos[id]
	if !m.copied[id] {
		m.notes[i] = m.notes[i].Clone()
		m.copied[id] = true
	}
	return m.notes[i]
}

func (m *mutation) drop(id string) { m.dropped[id] = true }

// siblingIDs lists the live notes under parentID in order.
func (m *mutation) siblingIDs(parentID string) []string {
	var ids []string
	for _, n := range models.Siblings(m.notes, parentID) {
		if !m.dropped[n.ID] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// renumber assigns 0..n-1 to ids, copying only notes whose order changes.
func (m *mutation) renumber(ids []string) {
	for i, id := range ids {
		if m.notes[m.pos[id]].Order != i {
			m.edit(id).Order = i
		}
	}
}

func (m *mutation) result() []*models.Note {
	if len(m.dropped) == 0 {
		return m.notes
	}
	return slices.DeleteFunc(m.notes, func(n *models.Note) bool { return m.dropped[n.ID] })
}
