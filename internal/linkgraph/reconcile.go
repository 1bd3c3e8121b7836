// Package linkgraph keeps the note-reference graph consistent with note
// content. Reconcile rewrites NOTE_LINK text to current titles, demotes
// links to deleted notes and recomputes every note's outbound and inbound
// link sets; Backlinks extracts contextual excerpts for a target note.
package linkgraph

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
)

const (
	// UntitledFallback is shown for a broken link whose last-known title is empty.
	UntitledFallback = "Untitled"
	// DefaultExcerptRadius is the number of code points of context kept on
	// each side of a backlink.
	DefaultExcerptRadius = 40
)

// Engine runs reconciliation and backlink queries. It is safe for
// concurrent use; every call builds its own collator.
type Engine struct {
	locale language.Tag
	radius int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocale sets the locale used to sort link sets by title.
func WithLocale(tag language.Tag) Option {
	return func(e *Engine) { e.locale = tag }
}

// WithExcerptRadius sets the backlink excerpt context width.
func WithExcerptRadius(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.radius = n
		}
	}
}

// New returns an engine with the root locale and DefaultExcerptRadius.
func New(opts ...Option) *Engine {
	e := &Engine{locale: language.Und, radius: DefaultExcerptRadius}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// Reconcile runs the default engine over notes.
func Reconcile(notes []*models.Note) []*models.Note {
	return defaultEngine.Reconcile(notes)
}

// Reconcile returns the reconciled collection. It must see the full note
// set: a rename is only propagated to notes present in the input.
//
// Notes whose content and link sets come out unchanged are returned as the
// same pointer, so callers can detect "nothing changed" by comparing
// pointers. Changed notes are fresh copies; titles, ids, timestamps and
// ordering are never touched here. Reconcile is idempotent.
func (e *Engine) Reconcile(notes []*models.Note) []*models.Note {
	titles := make(map[string]string, len(notes))
	for _, n := range notes {
		titles[n.ID] = n.Title
	}

	contents := make([]string, len(notes))
	outbound := make([][]string, len(notes))
	inbound := make(map[string][]string)
	for i, n := range notes {
		contents[i], outbound[i] = rewriteLinks(n, titles)
		for _, target := range outbound[i] {
			inbound[target] = append(inbound[target], n.ID)
		}
	}

	col := collate.New(e.locale, collate.IgnoreCase)
	arrange := func(ids []string) []string {
		out := make([]string, 0, len(ids))
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := titles[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
		slices.SortStableFunc(out, func(a, b string) int {
			return col.CompareString(titles[a], titles[b])
		})
		return out
	}

	result := make([]*models.Note, len(notes))
	for i, n := range notes {
		links := models.Links{
			Outbound: arrange(outbound[i]),
			Inbound:  arrange(inbound[n.ID]),
		}
		if contents[i] == n.Content &&
			slices.Equal(links.Outbound, n.Links.Outbound) &&
			slices.Equal(links.Inbound, n.Links.Inbound) {
			result[i] = n
			continue
		}
		c := n.Clone()
		c.Content = contents[i]
		c.Links = links
		result[i] = c
	}
	return result
}

// rewriteLinks resolves every NOTE_LINK range of n against titles. It
// returns the (possibly rewritten) content and the live targets other than
// n itself, in order of first appearance. Unparsable content is returned
// as is with no targets.
func rewriteLinks(n *models.Note, titles map[string]string) (string, []string) {
	doc, err := content.Parse(n.Content)
	if err != nil {
		return n.Content, nil
	}

	var targets []string
	seen := make(map[string]struct{})
	demoted := make(map[int]struct{})
	changed := false

	for bi, b := range doc.Blocks {
		var reps []content.Replacement
		for _, r := range b.EntityRanges {
			ent, ok := doc.EntityMap[r.Key]
			if !ok {
				continue
			}
			link, ok := ent.NoteLink()
			if !ok {
				continue
			}
			shown := b.Slice(r.Offset, r.Length)

			title, live := titles[link.NoteID]
			if !live {
				last := link.Title
				if strings.TrimSpace(last) == "" {
					last = UntitledFallback
				}
				reps = append(reps, content.Replacement{
					Offset: r.Offset, Length: r.Length, Text: display(last), DropEntity: true,
				})
				demoted[r.Key] = struct{}{}
				continue
			}

			if _, dup := seen[link.NoteID]; !dup && link.NoteID != n.ID {
				seen[link.NoteID] = struct{}{}
				targets = append(targets, link.NoteID)
			}
			if link.Title != title {
				link.Title = title
				doc.EntityMap[r.Key] = content.NewEntity(link, ent.Mutability)
				changed = true
			}
			if shown != display(title) {
				reps = append(reps, content.Replacement{Offset: r.Offset, Length: r.Length, Text: display(title)})
			}
		}
		if len(reps) > 0 {
			doc.Blocks[bi] = b.Rewrite(reps)
			changed = true
		}
	}

	if !changed {
		return n.Content, targets
	}
	pruneEntities(doc, demoted)
	return doc.String(), targets
}

// pruneEntities removes demoted entities no range refers to any more.
func pruneEntities(doc *content.Document, keys map[int]struct{}) {
	if len(keys) == 0 {
		return
	}
	for _, b := range doc.Blocks {
		for _, r := range b.EntityRanges {
			delete(keys, r.Key)
		}
	}
	for k := range keys {
		delete(doc.EntityMap, k)
	}
}

func display(title string) string {
	return "[[" + title + "]]"
}
