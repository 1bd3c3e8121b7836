package content

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrNotDocument is returned by Parse for input that is not a serialised document.
var ErrNotDocument = errors.New("content: not a structured document")

// Document is an ordered sequence of blocks plus the entity table their
// entity ranges refer to.
type Document struct {
	Blocks    []Block        `json:"blocks"`
	EntityMap map[int]Entity `json:"entityMap"`
}

type rawDocument struct {
	Blocks    []Block                    `json:"blocks"`
	EntityMap map[string]json.RawMessage `json:"entityMap"`
}

// Empty returns a document holding a single empty unstyled block.
func Empty() *Document {
	return &Document{
		Blocks:    []Block{NewBlock(BlockUnstyled, "")},
		EntityMap: map[int]Entity{},
	}
}

// FromText builds a document with one unstyled block per line of s.
func FromText(s string) *Document {
	if s == "" {
		return Empty()
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	doc := &Document{EntityMap: map[int]Entity{}}
	for _, line := range strings.Split(s, "\n") {
		doc.Blocks = append(doc.Blocks, NewBlock(BlockUnstyled, line))
	}
	return doc
}

// Parse decodes the structured JSON form. Entities with an unknown type or
// invalid data are dropped, and Normalize is applied to the result.
func Parse(s string) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, errors.Join(ErrNotDocument, err)
	}
	if raw.Blocks == nil {
		return nil, ErrNotDocument
	}

	doc := &Document{Blocks: raw.Blocks, EntityMap: make(map[int]Entity, len(raw.EntityMap))}
	for k, v := range raw.EntityMap {
		key, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		var e Entity
		if err := json.Unmarshal(v, &e); err != nil {
			continue
		}
		doc.EntityMap[key] = e
	}
	doc.Normalize()
	return doc, nil
}

// ParseOrEmpty parses s and falls back to an empty document.
func ParseOrEmpty(s string) *Document {
	doc, err := Parse(s)
	if err != nil {
		return Empty()
	}
	return doc
}

// IsDocument reports whether s parses as a structured document.
func IsDocument(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String serialises the document to its structured JSON form. Entity keys
// are written in ascending order so equal documents serialise identically.
func (d *Document) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		// Every field is plain data; Marshal cannot fail here.
		return ""
	}
	return string(b)
}

// Normalize enforces the range invariants in place:
//   - unknown block types become unstyled, negative depths become 0
//   - empty or duplicate block keys are regenerated
//   - ranges are clamped to the block text; empty ranges are dropped
//   - style ranges with unknown styles are dropped
//   - entity ranges pointing at missing entities are dropped, and an entity
//     range overlapping an earlier one is dropped
func (d *Document) Normalize() {
	if d.EntityMap == nil {
		d.EntityMap = map[int]Entity{}
	}
	if len(d.Blocks) == 0 {
		d.Blocks = []Block{NewBlock(BlockUnstyled, "")}
	}
	seen := make(map[string]struct{}, len(d.Blocks))
	for i := range d.Blocks {
		b := &d.Blocks[i]
		if !b.Type.Valid() {
			b.Type = BlockUnstyled
		}
		if b.Depth < 0 {
			b.Depth = 0
		}
		if _, dup := seen[b.Key]; b.Key == "" || dup {
			b.Key = NewKey()
		}
		seen[b.Key] = struct{}{}

		n := utf8.RuneCountInString(b.Text)

		styles := make([]StyleRange, 0, len(b.StyleRanges))
		for _, r := range b.StyleRanges {
			off, length, ok := clampRange(r.Offset, r.Length, n)
			if !ok || !r.Style.Valid() {
				continue
			}
			styles = append(styles, StyleRange{Offset: off, Length: length, Style: r.Style})
		}
		b.StyleRanges = styles

		ents := make([]EntityRange, 0, len(b.EntityRanges))
		for _, r := range b.EntityRanges {
			off, length, ok := clampRange(r.Offset, r.Length, n)
			if !ok {
				continue
			}
			if _, exists := d.EntityMap[r.Key]; !exists {
				continue
			}
			ents = append(ents, EntityRange{Offset: off, Length: length, Key: r.Key})
		}
		slices.SortStableFunc(ents, func(a, b EntityRange) int { return a.Offset - b.Offset })
		kept := ents[:0]
		end := 0
		for _, r := range ents {
			if r.Offset < end {
				continue
			}
			kept = append(kept, r)
			end = r.Offset + r.Length
		}
		b.EntityRanges = kept
	}
}

func clampRange(off, length, n int) (int, int, bool) {
	if off < 0 || length <= 0 || off >= n {
		return 0, 0, false
	}
	return off, min(length, n-off), true
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := &Document{
		Blocks:    make([]Block, len(d.Blocks)),
		EntityMap: maps.Clone(d.EntityMap),
	}
	if c.EntityMap == nil {
		c.EntityMap = map[int]Entity{}
	}
	for i, b := range d.Blocks {
		b.StyleRanges = slices.Clone(b.StyleRanges)
		b.EntityRanges = slices.Clone(b.EntityRanges)
		c.Blocks[i] = b
	}
	return c
}

// AddEntity stores e under the next free key and returns that key.
func (d *Document) AddEntity(e Entity) int {
	if d.EntityMap == nil {
		d.EntityMap = map[int]Entity{}
	}
	next := 0
	for k := range d.EntityMap {
		if k >= next {
			next = k + 1
		}
	}
	d.EntityMap[next] = e
	return next
}

// PlainText joins the text of every block with newlines.
func (d *Document) PlainText() string {
	texts := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, "\n")
}

// EntityAt returns the entity referenced by r.
func (d *Document) EntityAt(r EntityRange) (Entity, bool) {
	e, ok := d.EntityMap[r.Key]
	return e, ok
}

// Slice returns the code points [off, off+length) of the block text.
func (b Block) Slice(off, length int) string {
	runes := []rune(b.Text)
	start := max(0, min(off, len(runes)))
	end := max(start, min(off+length, len(runes)))
	return string(runes[start:end])
}
