package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/starford/lattice/internal/content"
)

var htmlRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
)

// RenderHTML renders doc to HTML through its Markdown form. Raw HTML in the
// source (including <u> tags) is not passed through.
func RenderHTML(doc *content.Document) (string, error) {
	var buf bytes.Buffer
	if err := htmlRenderer.Convert([]byte(ToMarkdown(doc)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
