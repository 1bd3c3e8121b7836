package markdown

import (
	"regexp"
	"strings"

	"github.com/starford/lattice/internal/content"
)

// DefaultThreshold is the share of non-empty lines that must look like
// Markdown before text is treated as Markdown. It is a tunable heuristic:
// short snippets such as one line of prose with stray asterisks can be
// misclassified either way.
const DefaultThreshold = 0.2

var linePatterns = []*regexp.Regexp{
	fenceRe, headingRe, quoteRe, bulletRe, orderedRe, imageLineRe,
	linkRe, boldRe, italicRe, codeRe, underlineRe,
}

// Detector decides whether text looks like Markdown.
type Detector struct {
	// Threshold is the fraction of non-empty lines that must match a
	// Markdown pattern; the text qualifies when the fraction exceeds it.
	Threshold float64
}

// NewDetector returns a detector, substituting DefaultThreshold for a
// threshold outside [0, 1).
func NewDetector(threshold float64) Detector {
	if threshold < 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return Detector{Threshold: threshold}
}

// IsMarkdown reports whether more than Threshold of the non-empty lines of
// text match at least one Markdown pattern.
func (d Detector) IsMarkdown(text string) bool {
	total, matched := 0, 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		for _, re := range linePatterns {
			if re.MatchString(line) {
				matched++
				break
			}
		}
	}
	if total == 0 {
		return false
	}
	return float64(matched)/float64(total) > d.Threshold
}

// IsMarkdown applies the default detector.
func IsMarkdown(text string) bool {
	return Detector{Threshold: DefaultThreshold}.IsMarkdown(text)
}

// Coerce turns stored note content into a document: the structured JSON
// form when it parses, otherwise Markdown when d accepts it, otherwise
// plain text with one block per line.
func (d Detector) Coerce(raw string) *content.Document {
	if doc, err := content.Parse(raw); err == nil {
		return doc
	}
	if d.IsMarkdown(raw) {
		return FromMarkdown(raw)
	}
	return content.FromText(raw)
}
