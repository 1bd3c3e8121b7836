// Package tree maintains the two-level note hierarchy: a note is either a
// root or the child of a root, and siblings under one parent carry a
// contiguous 0..n-1 order.
//
// Every mutator takes the full collection and returns a new one. Notes it
// does not touch are returned as the same pointers; touched notes are
// copies. On rejection the input is returned unchanged together with a
// VALIDATION_ERROR (or NOT_FOUND for an unknown id).
package tree

import (
	"slices"
	"time"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/linkgraph"
	"github.com/starford/lattice/internal/models"
)

// Rejection reasons carried by validation errors.
const (
	ReasonSelfParent   = "note cannot be its own parent"
	ReasonParentAbsent = "parent not found"
	ReasonCycle        = "move would create a cycle"
	ReasonTooDeep      = "parent is itself a child note"
	ReasonHasChildren  = "note with children cannot be nested"
	ReasonDuplicateID  = "note id already exists"
)

// Reconciler re-derives the link state of a whole collection.
type Reconciler interface {
	Reconcile(notes []*models.Note) []*models.Note
}

// Mutator runs the tree operations and passes every result through its
// Reconciler, so callers get the authoritative collection back.
type Mutator struct {
	links Reconciler
}

// NewMutator returns a Mutator reconciling with links.
func NewMutator(links Reconciler) *Mutator {
	return &Mutator{links: links}
}

var std = NewMutator(linkgraph.New())

// Move is Mutator.Move with the default link engine.
func Move(notes []*models.Note, id, targetParentID string, targetIndex int, now time.Time) ([]*models.Note, error) {
	return std.Move(notes, id, targetParentID, targetIndex, now)
}

// Insert is Mutator.Insert with the default link engine.
func Insert(notes []*models.Note, n *models.Note) ([]*models.Note, error) {
	return std.Insert(notes, n)
}

// Reparent is Mutator.Reparent with the default link engine.
func Reparent(notes []*models.Note, id, parentID string, now time.Time) ([]*models.Note, error) {
	return std.Reparent(notes, id, parentID, now)
}

// Remove is Mutator.Remove with the default link engine.
func Remove(notes []*models.Note, id string, now time.Time) ([]*models.Note, error) {
	return std.Remove(notes, id, now)
}

// ValidateParent checks that the note id may live under parentID. id may
// be empty for a note that does not exist yet. The ancestor chain of the
// parent is walked in full, so a cycle of any length is reported.
func ValidateParent(notes []*models.Note, id, parentID string) error {
	return validateParent(models.Index(notes), id, parentID, "tree.ValidateParent")
}

func validateParent(idx map[string]*models.Note, id, parentID, op string) error {
	if parentID == "" {
		return nil
	}
	if id != "" && parentID == id {
		return apperr.Validation(op, ReasonSelfParent)
	}
	parent, ok := idx[parentID]
	if !ok {
		return apperr.Validation(op, ReasonParentAbsent)
	}
	if id != "" {
		visited := map[string]bool{}
		for cur := parent; cur != nil && !visited[cur.ID]; cur = idx[cur.ParentID] {
			if cur.ID == id {
				return apperr.Validation(op, ReasonCycle)
			}
			visited[cur.ID] = true
		}
	}
	if parent.ParentID != "" {
		return apperr.Validation(op, ReasonTooDeep)
	}
	return nil
}

// Move places note id under targetParentID ("" for the root list) at
// targetIndex and returns the reconciled collection.
//
// targetIndex addresses a slot of the destination list as it looked before
// the move; it is clamped to the list bounds. Moving a note down within its
// own list therefore lands it just before the note that held targetIndex.
// Moving a note to the position it already holds is a no-op.
func (t *Mutator) Move(notes []*models.Note, id, targetParentID string, targetIndex int, now time.Time) ([]*models.Note, error) {
	const op = "tree.Move"
	idx := models.Index(notes)
	n, ok := idx[id]
	if !ok {
		return notes, apperr.NotFound(op, id)
	}
	if err := validateParent(idx, id, targetParentID, op); err != nil {
		return notes, err
	}
	if targetParentID != "" && hasChildren(notes, id) {
		return notes, apperr.Validation(op, ReasonHasChildren)
	}

	m := newMutation(notes)
	src := m.siblingIDs(n.ParentID)
	from := slices.Index(src, id)
	src = slices.Delete(src, from, from+1)

	var dst []string
	if targetParentID == n.ParentID {
		dst = src
		if targetIndex > from {
			targetIndex--
		}
	} else {
		dst = m.siblingIDs(targetParentID)
	}
	targetIndex = max(0, min(targetIndex, len(dst)))
	if targetParentID == n.ParentID && targetIndex == from && n.Order == from {
		return notes, nil
	}

	m.renumber(src)
	dst = slices.Insert(dst, targetIndex, id)
	moved := m.edit(id)
	moved.ParentID = targetParentID
	moved.UpdatedAt = now
	m.renumber(dst)
	return t.links.Reconcile(m.result()), nil
}

// Insert adds n at the end of its parent's list and returns the reconciled
// collection. n is copied; its Order is assigned here.
func (t *Mutator) Insert(notes []*models.Note, n *models.Note) ([]*models.Note, error) {
	const op = "tree.Insert"
	idx := models.Index(notes)
	if _, dup := idx[n.ID]; dup {
		return notes, apperr.Validation(op, ReasonDuplicateID)
	}
	if err := validateParent(idx, n.ID, n.ParentID, op); err != nil {
		return notes, err
	}
	c := n.Clone()
	c.Order = len(models.Siblings(notes, c.ParentID))
	out := append(slices.Clone(notes), c)
	return t.links.Reconcile(out), nil
}

// Reparent moves note id to the end of parentID's list. It is the
// structural half of an update: positional placement belongs to Move.
// A note keeping its parent is left where it is.
func (t *Mutator) Reparent(notes []*models.Note, id, parentID string, now time.Time) ([]*models.Note, error) {
	const op = "tree.Reparent"
	idx := models.Index(notes)
	n, ok := idx[id]
	if !ok {
		return notes, apperr.NotFound(op, id)
	}
	if parentID == n.ParentID {
		return notes, nil
	}
	if parentID != "" && slices.Contains(Descendants(notes, id), parentID) {
		return notes, apperr.Validation(op, ReasonCycle)
	}
	if err := validateParent(idx, id, parentID, op); err != nil {
		return notes, err
	}
	if parentID != "" && hasChildren(notes, id) {
		return notes, apperr.Validation(op, ReasonHasChildren)
	}

	m := newMutation(notes)
	src := slices.DeleteFunc(m.siblingIDs(n.ParentID), func(s string) bool { return s == id })
	m.renumber(src)
	dst := append(m.siblingIDs(parentID), id)
	moved := m.edit(id)
	moved.ParentID = parentID
	moved.UpdatedAt = now
	m.renumber(dst)
	return t.links.Reconcile(m.result()), nil
}

// Remove deletes note id. Its children take its place in its parent's list,
// keeping their relative order, so the hierarchy is flattened by one level
// instead of cascading. Links to the deleted note are demoted by the
// reconciliation pass.
func (t *Mutator) Remove(notes []*models.Note, id string, now time.Time) ([]*models.Note, error) {
	const op = "tree.Remove"
	idx := models.Index(notes)
	n, ok := idx[id]
	if !ok {
		return notes, apperr.NotFound(op, id)
	}

	m := newMutation(notes)
	list := m.siblingIDs(n.ParentID)
	pos := slices.Index(list, id)
	children := m.siblingIDs(id)
	for _, cid := range children {
		c := m.edit(cid)
		c.ParentID = n.ParentID
		c.UpdatedAt = now
	}
	list = slices.Replace(list, pos, pos+1, children...)
	m.drop(id)
	m.renumber(list)
	return t.links.Reconcile(m.result()), nil
}

// Descendants returns the ids below id, breadth first. The walk stops at
// notes it has already seen, so malformed input cannot loop.
func Descendants(notes []*models.Note, id string) []string {
	children := make(map[string][]string)
	for _, n := range notes {
		if n.ParentID != "" {
			children[n.ParentID] = append(children[n.ParentID], n.ID)
		}
	}
	var out []string
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

func hasChildren(notes []*models.Note, id string) bool {
	return slices.ContainsFunc(notes, func(n *models.Note) bool { return n.ParentID == id })
}
