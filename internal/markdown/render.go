// Package markdown converts between the structured content model and
// Markdown text. Conversion is lossy-tolerant and never fails: anything the
// Markdown subset cannot express is rendered as plain text.
package markdown

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/lattice/internal/content"
)

// ToMarkdown renders doc as Markdown. Blocks are separated by a blank line.
//
// Supported: headings 1-6, blockquotes, fenced code blocks, unordered and
// ordered list items, bold, italic, inline code, underline (as <u>), LINK
// entities and atomic IMAGE blocks. NOTE_LINK ranges render as their
// display text.
func ToMarkdown(doc *content.Document) string {
	if doc == nil {
		return ""
	}
	parts := make([]string, 0, len(doc.Blocks))
	ordinal := 0
	for _, b := range doc.Blocks {
		if b.Type == content.BlockOrderedListItem {
			ordinal++
		} else {
			ordinal = 0
		}

		switch b.Type {
		case content.BlockCode:
			f := fence(b.Text)
			parts = append(parts, f+"\n"+b.Text+"\n"+f)
		case content.BlockAtomic:
			parts = append(parts, atomic(doc, b))
		default:
			parts = append(parts, prefix(b.Type, ordinal)+inline(doc, b))
		}
	}
	return strings.Join(parts, "\n\n")
}

// fence returns a backtick fence longer than any backtick run opening a
// line of text, so no line of the code can close it.
func fence(text string) string {
	n := 3
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		run := len(t) - len(strings.TrimLeft(t, "`"))
		n = max(n, run+1)
	}
	return strings.Repeat("`", n)
}

func prefix(t content.BlockType, ordinal int) string {
	if level := t.HeadingLevel(); level > 0 {
		return strings.Repeat("#", level) + " "
	}
	switch t {
	case content.BlockBlockquote:
		return "> "
	case content.BlockUnorderedListItem:
		return "- "
	case content.BlockOrderedListItem:
		return fmt.Sprintf("%d. ", ordinal)
	}
	return ""
}

func atomic(doc *content.Document, b content.Block) string {
	for _, r := range b.EntityRanges {
		e, ok := doc.EntityAt(r)
		if !ok {
			continue
		}
		if img, ok := e.Image(); ok {
			return fmt.Sprintf("![%s](%s)", img.Alt, img.Src)
		}
	}
	return strings.TrimSpace(b.Text)
}

// mark is a pair of delimiters wrapped around [start, end) of a block.
type mark struct {
	start, end  int
	open, close string
	entity      bool
}

// inline wraps the block text in the delimiters of its style and entity
// ranges. All marks are computed against the original text; they are then
// emitted in one pass, so no offset is ever re-based mid-scan. Marks
// starting at the same offset nest longest-outermost, entities outside styles.
func inline(doc *content.Document, b content.Block) string {
	runes := []rune(b.Text)
	var marks []mark
	for _, r := range b.EntityRanges {
		e, ok := doc.EntityAt(r)
		if !ok {
			continue
		}
		if link, ok := e.Link(); ok {
			marks = append(marks, mark{start: r.Offset, end: r.Offset + r.Length, open: "[", close: "](" + link.URL + ")", entity: true})
		}
	}
	for _, r := range b.StyleRanges {
		open, close := styleDelimiters(r.Style)
		marks = append(marks, mark{start: r.Offset, end: r.Offset + r.Length, open: open, close: close})
	}
	if len(marks) == 0 {
		return b.Text
	}

	slices.SortStableFunc(marks, func(x, y mark) int {
		if x.start != y.start {
			return x.start - y.start
		}
		if lx, ly := x.end-x.start, y.end-y.start; lx != ly {
			return ly - lx
		}
		switch {
		case x.entity && !y.entity:
			return -1
		case !x.entity && y.entity:
			return 1
		}
		return 0
	})

	opens := make(map[int][]int)
	closes := make(map[int][]int)
	for i, m := range marks {
		opens[m.start] = append(opens[m.start], i)
		closes[m.end] = append(closes[m.end], i)
	}

	var sb strings.Builder
	for pos := 0; pos <= len(runes); pos++ {
		ending := closes[pos]
		for j := len(ending) - 1; j >= 0; j-- {
			sb.WriteString(marks[ending[j]].close)
		}
		for _, i := range opens[pos] {
			sb.WriteString(marks[i].open)
		}
		if pos < len(runes) {
			sb.WriteRune(runes[pos])
		}
	}
	return sb.String()
}

func styleDelimiters(s content.Style) (string, string) {
	switch s {
	case content.StyleBold:
		return "**", "**"
	case content.StyleItalic:
		return "*", "*"
	case content.StyleCode:
		return "`", "`"
	case content.StyleUnderline:
		return "<u>", "</u>"
	}
	return "", ""
}
