// Package content implements the block-structured rich text document stored
// in a note's content field: ordered blocks of plain text carrying style
// ranges and entity ranges that reference a shared entity table.
//
// Offsets and lengths of ranges are counted in Unicode code points.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BlockType is the paragraph-level kind of a block.
type BlockType string

const (
	BlockUnstyled          BlockType = "unstyled"
	BlockHeaderOne         BlockType = "header-one"
	BlockHeaderTwo         BlockType = "header-two"
	BlockHeaderThree       BlockType = "header-three"
	BlockHeaderFour        BlockType = "header-four"
	BlockHeaderFive        BlockType = "header-five"
	BlockHeaderSix         BlockType = "header-six"
	BlockBlockquote        BlockType = "blockquote"
	BlockCode              BlockType = "code-block"
	BlockUnorderedListItem BlockType = "unordered-list-item"
	BlockOrderedListItem   BlockType = "ordered-list-item"
	BlockAtomic            BlockType = "atomic"
)

var headings = [...]BlockType{
	BlockHeaderOne, BlockHeaderTwo, BlockHeaderThree,
	BlockHeaderFour, BlockHeaderFive, BlockHeaderSix,
}

// Valid reports whether t is one of the known block types.
func (t BlockType) Valid() bool {
	switch t {
	case BlockUnstyled, BlockBlockquote, BlockCode, BlockUnorderedListItem,
		BlockOrderedListItem, BlockAtomic:
		return true
	}
	return t.HeadingLevel() > 0
}

// HeadingLevel returns 1..6 for heading blocks and 0 otherwise.
func (t BlockType) HeadingLevel() int {
	for i, h := range headings {
		if t == h {
			return i + 1
		}
	}
	return 0
}

// Heading returns the block type for a heading level; out-of-range levels are clamped.
func Heading(level int) BlockType {
	level = max(1, min(level, len(headings)))
	return headings[level-1]
}

// Style is an inline style applied through a style range.
type Style string

const (
	StyleBold      Style = "BOLD"
	StyleItalic    Style = "ITALIC"
	StyleCode      Style = "CODE"
	StyleUnderline Style = "UNDERLINE"
)

// Valid reports whether s is a known inline style.
func (s Style) Valid() bool {
	switch s {
	case StyleBold, StyleItalic, StyleCode, StyleUnderline:
		return true
	}
	return false
}

// EntityType is the kind of an entity in the entity table.
type EntityType string

const (
	EntityLink     EntityType = "LINK"
	EntityNoteLink EntityType = "NOTE_LINK"
	EntityImage    EntityType = "IMAGE"
)

// Mutability mirrors how an editor treats edits inside an entity range.
type Mutability string

const (
	Mutable   Mutability = "MUTABLE"
	Immutable Mutability = "IMMUTABLE"
	Segmented Mutability = "SEGMENTED"
)

// StyleRange applies Style to [Offset, Offset+Length) of a block's text.
type StyleRange struct {
	Offset int   `json:"offset"`
	Length int   `json:"length"`
	Style  Style `json:"style"`
}

// EntityRange attaches the entity Key to [Offset, Offset+Length).
type EntityRange struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
	Key    int `json:"key"`
}

// Block is one paragraph-level unit of a document.
type Block struct {
	Key          string        `json:"key"`
	Type         BlockType     `json:"type"`
	Text         string        `json:"text"`
	Depth        int           `json:"depth"`
	StyleRanges  []StyleRange  `json:"inlineStyleRanges"`
	EntityRanges []EntityRange `json:"entityRanges"`
}

// NewBlock returns an unranged block with a fresh key.
func NewBlock(t BlockType, text string) Block {
	return Block{
		Key:          NewKey(),
		Type:         t,
		Text:         text,
		StyleRanges:  []StyleRange{},
		EntityRanges: []EntityRange{},
	}
}

// NewKey returns a short random block key.
func NewKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// EntityData is the typed payload of an entity. Implementations are
// LinkData, NoteLinkData and ImageData.
type EntityData interface {
	entityType() EntityType
}

// LinkData is the payload of a LINK entity.
type LinkData struct {
	URL string `json:"url"`
}

// NoteLinkData is the payload of a NOTE_LINK entity.
type NoteLinkData struct {
	NoteID string `json:"noteId"`
	Title  string `json:"title,omitempty"`
}

// ImageData is the payload of an IMAGE entity.
type ImageData struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func (LinkData) entityType() EntityType     { return EntityLink }
func (NoteLinkData) entityType() EntityType { return EntityNoteLink }
func (ImageData) entityType() EntityType    { return EntityImage }

// Entity is one row of the entity table.
type Entity struct {
	Type       EntityType
	Mutability Mutability
	Data       EntityData
}

// NewEntity builds an entity whose Type matches data.
func NewEntity(data EntityData, m Mutability) Entity {
	return Entity{Type: data.entityType(), Mutability: m, Data: data}
}

// NoteLink returns the NOTE_LINK payload, if e is one.
func (e Entity) NoteLink() (NoteLinkData, bool) {
	d, ok := e.Data.(NoteLinkData)
	return d, ok && e.Type == EntityNoteLink
}

// Link returns the LINK payload, if e is one.
func (e Entity) Link() (LinkData, bool) {
	d, ok := e.Data.(LinkData)
	return d, ok && e.Type == EntityLink
}

// Image returns the IMAGE payload, if e is one.
func (e Entity) Image() (ImageData, bool) {
	d, ok := e.Data.(ImageData)
	return d, ok && e.Type == EntityImage
}

var errUnsupportedEntity = errors.New("content: unsupported entity type")

type rawEntity struct {
	Type       EntityType      `json:"type"`
	Mutability Mutability      `json:"mutability"`
	Data       json.RawMessage `json:"data"`
}

// MarshalJSON encodes the entity as {type, mutability, data}.
func (e Entity) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rawEntity{Type: e.Type, Mutability: e.Mutability, Data: data})
}

// UnmarshalJSON decodes and validates an entity. The data payload is only
// trusted after the type is recognised and its required fields are present.
func (e *Entity) UnmarshalJSON(b []byte) error {
	var raw rawEntity
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		raw.Data = []byte("{}")
	}
	var data EntityData
	switch raw.Type {
	case EntityLink:
		var d LinkData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		if d.URL == "" {
			return fmt.Errorf("content: LINK entity without url")
		}
		data = d
	case EntityNoteLink:
		var d NoteLinkData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		if d.NoteID == "" {
			return fmt.Errorf("content: NOTE_LINK entity without noteId")
		}
		data = d
	case EntityImage:
		var d ImageData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		if d.Src == "" {
			return fmt.Errorf("content: IMAGE entity without src")
		}
		data = d
	default:
		return fmt.Errorf("%w: %q", errUnsupportedEntity, raw.Type)
	}
	m := raw.Mutability
	switch m {
	case Mutable, Immutable, Segmented:
	default:
		m = Mutable
	}
	*e = Entity{Type: raw.Type, Mutability: m, Data: data}
	return nil
}
