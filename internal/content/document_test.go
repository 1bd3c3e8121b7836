package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noteLinkDoc = `{
  "blocks": [
    {"key": "a1", "type": "unstyled", "text": "See [[Foo]] now", "depth": 0,
     "inlineStyleRanges": [{"offset": 0, "length": 3, "style": "BOLD"}],
     "entityRanges": [{"offset": 4, "length": 7, "key": 0}]}
  ],
  "entityMap": {
    "0": {"type": "NOTE_LINK", "mutability": "IMMUTABLE", "data": {"noteId": "n1", "title": "Foo"}}
  }
}`

func TestParse_NoteLink(t *testing.T) {
	doc, err := Parse(noteLinkDoc)
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)

	b := doc.Blocks[0]
	assert.Equal(t, BlockUnstyled, b.Type)
	assert.Equal(t, []StyleRange{{Offset: 0, Length: 3, Style: StyleBold}}, b.StyleRanges)
	require.Len(t, b.EntityRanges, 1)

	e, ok := doc.EntityAt(b.EntityRanges[0])
	require.True(t, ok)
	link, ok := e.NoteLink()
	require.True(t, ok)
	assert.Equal(t, NoteLinkData{NoteID: "n1", Title: "Foo"}, link)
	assert.Equal(t, Immutable, e.Mutability)
	assert.Equal(t, "[[Foo]]", b.Slice(4, 7))
}

func TestParse_RejectsNonDocuments(t *testing.T) {
	for _, in := range []string{"", "# markdown", "{}", "[]", `"text"`, `{"blocks": null}`} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrNotDocument, "input %q", in)
	}
	doc := ParseOrEmpty("not json")
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "", doc.Blocks[0].Text)
}

func TestParse_DropsInvalidEntities(t *testing.T) {
	in := `{"blocks":[{"key":"k","type":"mystery","text":"abcdef",
	  "inlineStyleRanges":[{"offset":4,"length":10,"style":"ITALIC"},{"offset":0,"length":1,"style":"BLINK"}],
	  "entityRanges":[{"offset":0,"length":2,"key":0},{"offset":1,"length":2,"key":1},{"offset":3,"length":1,"key":2},{"offset":4,"length":1,"key":9}]}],
	  "entityMap":{
	    "0":{"type":"LINK","mutability":"MUTABLE","data":{"url":"https://x"}},
	    "1":{"type":"LINK","mutability":"MUTABLE","data":{"url":"https://y"}},
	    "2":{"type":"NOTE_LINK","mutability":"IMMUTABLE","data":{}},
	    "3":{"type":"VIDEO","mutability":"MUTABLE","data":{"src":"v"}}}}`
	doc, err := Parse(in)
	require.NoError(t, err)

	b := doc.Blocks[0]
	assert.Equal(t, BlockUnstyled, b.Type, "unknown block type falls back to unstyled")
	assert.Equal(t, []StyleRange{{Offset: 4, Length: 2, Style: StyleItalic}}, b.StyleRanges)
	assert.Equal(t, []EntityRange{{Offset: 0, Length: 2, Key: 0}}, b.EntityRanges,
		"overlapping range, invalid NOTE_LINK and missing key are dropped")
	assert.Len(t, doc.EntityMap, 2)
}

func TestString_RoundTrip(t *testing.T) {
	doc, err := Parse(noteLinkDoc)
	require.NoError(t, err)

	again, err := Parse(doc.String())
	require.NoError(t, err)
	assert.Equal(t, doc, again)
	assert.Equal(t, doc.String(), again.String())
}

func TestFromTextAndPlainText(t *testing.T) {
	doc := FromText("one\r\ntwo")
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "one\ntwo", doc.PlainText())
	assert.NotEqual(t, doc.Blocks[0].Key, doc.Blocks[1].Key)

	assert.Len(t, FromText("").Blocks, 1)
}

func TestNormalize_RegeneratesDuplicateKeys(t *testing.T) {
	doc := &Document{Blocks: []Block{{Key: "x", Type: BlockCode}, {Key: "x", Type: BlockCode}}}
	doc.Normalize()
	assert.Equal(t, "x", doc.Blocks[0].Key)
	assert.NotEqual(t, "x", doc.Blocks[1].Key)
	assert.NotNil(t, doc.EntityMap)
}

func TestAddEntityAndClone(t *testing.T) {
	doc := Empty()
	k0 := doc.AddEntity(NewEntity(LinkData{URL: "https://a"}, Mutable))
	k1 := doc.AddEntity(NewEntity(ImageData{Src: "a.png"}, Immutable))
	assert.Equal(t, 0, k0)
	assert.Equal(t, 1, k1)

	c := doc.Clone()
	c.Blocks[0].Text = "changed"
	delete(c.EntityMap, 0)
	assert.Equal(t, "", doc.Blocks[0].Text)
	assert.Len(t, doc.EntityMap, 2)

	img, ok := doc.EntityMap[1].Image()
	require.True(t, ok)
	assert.Equal(t, "a.png", img.Src)
	_, ok = doc.EntityMap[1].Link()
	assert.False(t, ok)
}

func TestBlockTypeHelpers(t *testing.T) {
	assert.Equal(t, 3, BlockHeaderThree.HeadingLevel())
	assert.Equal(t, 0, BlockBlockquote.HeadingLevel())
	assert.Equal(t, BlockHeaderSix, Heading(9))
	assert.Equal(t, BlockHeaderOne, Heading(0))
	assert.True(t, BlockAtomic.Valid())
	assert.False(t, BlockType("paragraph").Valid())
}
