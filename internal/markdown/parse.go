package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/lattice/internal/content"
)

var (
	fenceRe     = regexp.MustCompile("^(`{3,}|~{3,})")
	headingRe   = regexp.MustCompile(`^(#{1,6}) (.*)$`)
	quoteRe     = regexp.MustCompile(`^> ?`)
	bulletRe    = regexp.MustCompile(`^[-*] `)
	orderedRe   = regexp.MustCompile(`^\d+\. `)
	imageLineRe = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)\s]+)\)$`)

	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe    = regexp.MustCompile(`\*([^*]+)\*`)
	codeRe      = regexp.MustCompile("`([^`]+)`")
	underlineRe = regexp.MustCompile(`<u>(.+?)</u>`)
)

// FromMarkdown parses Markdown text into a document. Parsing is
// line-oriented: fenced code is captured verbatim, every other non-empty
// line becomes one block classified by its leading token. Empty input
// yields a single empty unstyled block.
func FromMarkdown(text string) *content.Document {
	doc := &content.Document{EntityMap: map[int]content.Entity{}}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if m := fenceRe.FindString(line); m != "" {
			var code []string
			i++
			for ; i < len(lines); i++ {
				if closesFence(lines[i], m) {
					break
				}
				code = append(code, strings.TrimRight(lines[i], "\r"))
			}
			doc.Blocks = append(doc.Blocks, content.NewBlock(content.BlockCode, strings.Join(code, "\n")))
			continue
		}

		if m := imageLineRe.FindStringSubmatch(line); m != nil {
			b := content.NewBlock(content.BlockAtomic, " ")
			key := doc.AddEntity(content.NewEntity(content.ImageData{Src: m[2], Alt: m[1]}, content.Immutable))
			b.EntityRanges = append(b.EntityRanges, content.EntityRange{Offset: 0, Length: 1, Key: key})
			doc.Blocks = append(doc.Blocks, b)
			continue
		}

		blockType, rest := classify(line)
		doc.Blocks = append(doc.Blocks, parseInline(doc, blockType, rest))
	}

	if len(doc.Blocks) == 0 {
		return content.Empty()
	}
	return doc
}

// closesFence reports whether line closes the fence opening: a run
// of the same character at least as long, with nothing after it.
func closesFence(line, opening string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= len(opening) && strings.Trim(t, opening[:1]) == ""
}

// classify maps a line's leading token to a block type and strips it.
func classify(line string) (content.BlockType, string) {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		return content.Heading(len(m[1])), m[2]
	}
	if loc := quoteRe.FindStringIndex(line); loc != nil {
		return content.BlockBlockquote, line[loc[1]:]
	}
	if loc := bulletRe.FindStringIndex(line); loc != nil {
		return content.BlockUnorderedListItem, line[loc[1]:]
	}
	if loc := orderedRe.FindStringIndex(line); loc != nil {
		return content.BlockOrderedListItem, line[loc[1]:]
	}
	return content.BlockUnstyled, line
}

// span is a parsed range in byte offsets of the current text.
type span struct {
	start, end int
	style      content.Style
	url        string
}

type inlinePass struct {
	re    *regexp.Regexp
	style content.Style // empty for the link pass
}

// passes run in this order; each one sees the text left by the previous.
var passes = []inlinePass{
	{re: linkRe},
	{re: boldRe, style: content.StyleBold},
	{re: italicRe, style: content.StyleItalic},
	{re: codeRe, style: content.StyleCode},
	{re: underlineRe, style: content.StyleUnderline},
}

// parseInline strips inline delimiters from text pass by pass. Each pass
// removes its delimiters and re-bases every span recorded so far, so all
// offsets refer to the text left after the removals.
func parseInline(doc *content.Document, t content.BlockType, text string) content.Block {
	var spans []span
	for _, p := range passes {
		matches := p.re.FindAllStringSubmatchIndex(text, -1)
		if len(matches) == 0 {
			continue
		}

		var removed [][2]int
		var sb strings.Builder
		prev := 0
		for _, m := range matches {
			removed = append(removed, [2]int{m[0], m[2]}, [2]int{m[3], m[1]})
			sb.WriteString(text[prev:m[0]])
			sb.WriteString(text[m[2]:m[3]])
			prev = m[1]
		}
		sb.WriteString(text[prev:])

		for i := range spans {
			spans[i].start = rebase(spans[i].start, removed)
			spans[i].end = rebase(spans[i].end, removed)
		}
		for _, m := range matches {
			s := span{start: rebase(m[2], removed), end: rebase(m[3], removed), style: p.style}
			if p.style == "" {
				s.url = text[m[4]:m[5]]
			}
			spans = append(spans, s)
		}
		text = sb.String()
	}

	b := content.NewBlock(t, text)
	for _, s := range spans {
		off := utf8.RuneCountInString(text[:s.start])
		length := utf8.RuneCountInString(text[s.start:s.end])
		if length == 0 {
			continue
		}
		if s.style != "" {
			b.StyleRanges = append(b.StyleRanges, content.StyleRange{Offset: off, Length: length, Style: s.style})
			continue
		}
		key := doc.AddEntity(content.NewEntity(content.LinkData{URL: s.url}, content.Mutable))
		b.EntityRanges = append(b.EntityRanges, content.EntityRange{Offset: off, Length: length, Key: key})
	}
	return b
}

// rebase maps an offset in the text before a pass to the text after it,
// given the byte intervals the pass removed.
func rebase(x int, removed [][2]int) int {
	shift := 0
	for _, r := range removed {
		if r[0] >= x {
			break
		}
		shift += min(r[1], x) - r[0]
	}
	return x - shift
}
