// Package models defines the domain types for Lattice.
package models

import (
	"slices"
	"time"
)

// Note is a single node in the two-level note tree.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ParentID  string    `json:"parentId,omitempty"` // empty means root
	Order     int       `json:"order"`
	Links     Links     `json:"links"`
	Embeds    []Embed   `json:"embeds"`
}

// Links holds the reconciled link sets of a note, sorted by the referenced
// note's title.
type Links struct {
	Outbound []string `json:"outbound"`
	Inbound  []string `json:"inbound"`
}

// Embed is an opaque link-preview record carried on a note.
type Embed struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// IsRoot reports whether the note has no parent.
func (n *Note) IsRoot() bool { return n.ParentID == "" }

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	c := *n
	c.Links = Links{
		Outbound: slices.Clone(n.Links.Outbound),
		Inbound:  slices.Clone(n.Links.Inbound),
	}
	c.Embeds = slices.Clone(n.Embeds)
	return &c
}

// Equal reports whether n and o hold the same values.
func (n *Note) Equal(o *Note) bool {
	return n.ID == o.ID && n.Title == o.Title && n.Content == o.Content &&
		n.ParentID == o.ParentID && n.Order == o.Order &&
		n.CreatedAt.Equal(o.CreatedAt) && n.UpdatedAt.Equal(o.UpdatedAt) &&
		slices.Equal(n.Links.Outbound, o.Links.Outbound) &&
		slices.Equal(n.Links.Inbound, o.Links.Inbound) &&
		slices.Equal(n.Embeds, o.Embeds)
}

// NoteInput carries the fields accepted when creating a note. Links and
// embeds always start empty.
type NoteInput struct {
	Title    string
	Content  string
	ParentID string
}

// NotePatch is a partial update. Nil fields are left unchanged; a non-nil
// ParentID pointing at "" moves the note to the root.
type NotePatch struct {
	Title     *string
	Content   *string
	ParentID  *string
	Order     *int
	Links     *Links
	Embeds    []Embed
	UpdatedAt *time.Time
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.ParentID == nil && p.Order == nil &&
		p.Links == nil && p.Embeds == nil && p.UpdatedAt == nil
}

// Apply writes the patch onto n in place.
func (p NotePatch) Apply(n *Note) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.ParentID != nil {
		n.ParentID = *p.ParentID
	}
	if p.Order != nil {
		n.Order = *p.Order
	}
	if p.Links != nil {
		n.Links = Links{Outbound: slices.Clone(p.Links.Outbound), Inbound: slices.Clone(p.Links.Inbound)}
	}
	if p.Embeds != nil {
		n.Embeds = slices.Clone(p.Embeds)
	}
	if p.UpdatedAt != nil {
		n.UpdatedAt = *p.UpdatedAt
	}
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// Index maps note ids to notes.
func Index(notes []*Note) map[string]*Note {
	out := make(map[string]*Note, len(notes))
	for _, n := range notes {
		out[n.ID] = n
	}
	return out
}

// Siblings returns the notes under parentID sorted by Order. Ties keep input order.
func Siblings(notes []*Note, parentID string) []*Note {
	var out []*Note
	for _, n := range notes {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b *Note) int { return a.Order - b.Order })
	return out
}
