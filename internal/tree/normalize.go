package tree

import (
	"fmt"
	"slices"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
)

// Normalize repairs a collection loaded from outside: parents that are
// missing, the note itself, or too deep are cleared so the note becomes a
// root, and every sibling list is renumbered 0..n-1 keeping its current
// relative order. Links are not touched; reconcile afterwards.
func Normalize(notes []*models.Note) []*models.Note {
	m := newMutation(notes)
	idx := models.Index(notes)
	for _, n := range notes {
		if n.ParentID == "" {
			continue
		}
		if p, ok := idx[n.ParentID]; !ok || p.ID == n.ID {
			m.edit(n.ID).ParentID = ""
		}
	}

	cur := models.Index(m.notes)
	for _, n := range m.notes {
		if n.ParentID != "" && cur[n.ParentID].ParentID != "" {
			c := m.edit(n.ID)
			c.ParentID = ""
			cur[c.ID] = c
		}
	}

	var parents []string
	seen := map[string]bool{}
	for _, n := range m.notes {
		if !seen[n.ParentID] {
			seen[n.ParentID] = true
			parents = append(parents, n.ParentID)
		}
	}
	for _, p := range parents {
		m.renumber(m.siblingIDs(p))
	}
	return m.result()
}

// Check verifies the hierarchy invariants: every parent exists and is a
// root, and every sibling list is ordered 0..n-1.
func Check(notes []*models.Note) error {
	const op = "tree.Check"
	idx := models.Index(notes)
	buckets := make(map[string][]int)
	for _, n := range notes {
		if n.ParentID != "" {
			p, ok := idx[n.ParentID]
			if !ok {
				return apperr.Validation(op, fmt.Sprintf("note %q: %s", n.ID, ReasonParentAbsent))
			}
			if p.ParentID != "" {
				return apperr.Validation(op, fmt.Sprintf("note %q: %s", n.ID, ReasonTooDeep))
			}
		}
		buckets[n.ParentID] = append(buckets[n.ParentID], n.Order)
	}
	for parent, orders := range buckets {
		slices.Sort(orders)
		for i, o := range orders {
			if o != i {
				return apperr.Validation(op, fmt.Sprintf("siblings of %q are not ordered 0..%d", parent, len(orders)-1))
			}
		}
	}
	return nil
}

// Diff reports which notes of after differ from before by identity, and
// which ids of before are gone. It relies on mutators returning untouched
// notes as the same pointers.
func Diff(before, after []*models.Note) (changed []*models.Note, removed []string) {
	prev := make(map[string]*models.Note, len(before))
	for _, n := range before {
		prev[n.ID] = n
	}
	for _, n := range after {
		if prev[n.ID] != n {
			changed = append(changed, n)
		}
		delete(prev, n.ID)
	}
	for _, n := range before {
		if _, gone := prev[n.ID]; gone {
			removed = append(removed, n.ID)
		}
	}
	return changed, removed
}
