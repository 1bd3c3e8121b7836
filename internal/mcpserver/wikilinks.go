package mcpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
)

var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// resolveWikilinks turns [[Title]] text into NOTE_LINK entities for titles
// that name an existing note. Text already covered by an entity is left
// alone, as are titles shared by several notes.
func resolveWikilinks(doc *content.Document, notes []*models.Note) int {
	byTitle := make(map[string]string, len(notes))
	for _, n := range notes {
		key := strings.ToLower(strings.TrimSpace(n.Title))
		if key == "" {
			continue
		}
		if _, dup := byTitle[key]; dup {
			byTitle[key] = ""
			continue
		}
		byTitle[key] = n.ID
	}

	linked := 0
	for i := range doc.Blocks {
		b := &doc.Blocks[i]
		if b.Type == content.BlockCode {
			continue
		}
		for _, m := range wikilinkRe.FindAllStringSubmatchIndex(b.Text, -1) {
			id := byTitle[strings.ToLower(strings.TrimSpace(b.Text[m[2]:m[3]]))]
			if id == "" {
				continue
			}
			off := utf8.RuneCountInString(b.Text[:m[0]])
			length := utf8.RuneCountInString(b.Text[m[0]:m[1]])
			if covered(b.EntityRanges, off, length) {
				continue
			}
			key := doc.AddEntity(content.NewEntity(content.NoteLinkData{NoteID: id}, content.Immutable))
			b.EntityRanges = append(b.EntityRanges, content.EntityRange{Offset: off, Length: length, Key: key})
			linked++
		}
	}
	if linked > 0 {
		doc.Normalize()
	}
	return linked
}

func covered(ranges []content.EntityRange, off, length int) bool {
	for _, r := range ranges {
		if off < r.Offset+r.Length && r.Offset < off+length {
			return true
		}
	}
	return false
}
