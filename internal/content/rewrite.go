package content

import (
	"slices"
)

// Replacement substitutes Text for the code points [Offset, Offset+Length)
// of a block. With DropEntity set, an entity range spanning exactly the
// replaced text is removed instead of being carried onto the new text.
type Replacement struct {
	Offset     int
	Length     int
	Text       string
	DropEntity bool
}

// Rewrite applies replacements to a copy of b. All replacements are
// expressed against b's original text; they are applied from the highest
// offset down, so earlier offsets never need adjusting. Replacements that
// overlap one already applied, or fall outside the text, are ignored.
//
// Ranges are carried across each replacement:
//   - ranges entirely before or after it keep their text (shifted if after)
//   - ranges containing it grow or shrink with it
//   - ranges inside it cover the whole new text
//   - ranges partially overlapping it are clipped to the new text
func (b Block) Rewrite(reps []Replacement) Block {
	ordered := slices.Clone(reps)
	slices.SortStableFunc(ordered, func(x, y Replacement) int { return y.Offset - x.Offset })

	text := []rune(b.Text)
	styles := slices.Clone(b.StyleRanges)
	ents := slices.Clone(b.EntityRanges)
	limit := len(text)

	for _, r := range ordered {
		start, end := r.Offset, r.Offset+r.Length
		if start < 0 || r.Length < 0 || end > limit {
			continue
		}
		repl := []rune(r.Text)
		n := len(repl)

		next := make([]rune, 0, len(text)-r.Length+n)
		next = append(next, text[:start]...)
		next = append(next, repl...)
		next = append(next, text[end:]...)
		text = next
		limit = start

		keptStyles := styles[:0]
		for _, s := range styles {
			if off, length, ok := carry(s.Offset, s.Length, start, end, n); ok {
				keptStyles = append(keptStyles, StyleRange{Offset: off, Length: length, Style: s.Style})
			}
		}
		styles = keptStyles

		keptEnts := ents[:0]
		for _, e := range ents {
			if r.DropEntity && e.Offset == start && e.Offset+e.Length == end {
				continue
			}
			if off, length, ok := carry(e.Offset, e.Length, start, end, n); ok {
				keptEnts = append(keptEnts, EntityRange{Offset: off, Length: length, Key: e.Key})
			}
		}
		ents = keptEnts
	}

	out := b
	out.Text = string(text)
	out.StyleRanges = styles
	out.EntityRanges = ents
	return out
}

// carry maps the range [off, off+length) across the replacement of
// [a, bEnd) by n code points.
func carry(off, length, a, bEnd, n int) (int, int, bool) {
	s, e := off, off+length
	delta := n - (bEnd - a)
	switch {
	case e <= a:
	case s >= bEnd:
		s, e = s+delta, e+delta
	case s <= a && e >= bEnd:
		e += delta
	case s >= a && e <= bEnd:
		s, e = a, a+n
	case s < a:
		e = a + min(e-a, n)
	default:
		s, e = a+min(s-a, n), e+delta
	}
	if e <= s {
		return 0, 0, false
	}
	return s, e - s, true
}
