package linkgraph

import (
	"strings"

	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
)

// BacklinkEntry is one note referencing the target, with an excerpt for
// every reference it makes.
type BacklinkEntry struct {
	SourceID    string   `json:"sourceId"`
	SourceTitle string   `json:"sourceTitle"`
	Excerpts    []string `json:"excerpts"`
}

// Backlinks runs the default engine's backlink query.
func Backlinks(targetID string, notes []*models.Note) []BacklinkEntry {
	return defaultEngine.Backlinks(targetID, notes)
}

// Backlinks returns an entry for every other note holding at least one
// NOTE_LINK to targetID, in the order notes are given. Every excerpt is
// returned; truncating the list is up to the caller. Notes whose content
// does not parse contribute nothing.
func (e *Engine) Backlinks(targetID string, notes []*models.Note) []BacklinkEntry {
	var out []BacklinkEntry
	for _, n := range notes {
		if n.ID == targetID {
			continue
		}
		doc, err := content.Parse(n.Content)
		if err != nil {
			continue
		}
		var excerpts []string
		for _, b := range doc.Blocks {
			var runes []rune
			for _, r := range b.EntityRanges {
				ent, ok := doc.EntityMap[r.Key]
				if !ok {
					continue
				}
				if link, ok := ent.NoteLink(); !ok || link.NoteID != targetID {
					continue
				}
				if runes == nil {
					runes = []rune(b.Text)
				}
				excerpts = append(excerpts, excerpt(runes, r.Offset, r.Offset+r.Length, e.radius))
			}
		}
		if len(excerpts) > 0 {
			out = append(out, BacklinkEntry{SourceID: n.ID, SourceTitle: n.Title, Excerpts: excerpts})
		}
	}
	return out
}

func excerpt(runes []rune, start, end, radius int) string {
	from := max(0, start-radius)
	to := min(len(runes), end+radius)
	return strings.TrimSpace(string(runes[from:to]))
}
