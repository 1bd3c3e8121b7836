package mcpserver

// NoteFormatContract describes the Markdown accepted by create_note and
// update_note and produced by read_note.
const NoteFormatContract = `# Lattice Note Format

Notes are stored as structured rich text. Tools exchange them as Markdown;
the subset below survives the conversion, everything else is kept as plain text.

## Blocks (one per line)

- ` + "`# ` .. `###### `" + ` headings
- ` + "`> `" + ` quotes
- ` + "`- ` or `* `" + ` bullet items, ` + "`1. `" + ` numbered items
- fenced code between ` + "```" + ` lines
- ` + "`![alt](https://...)`" + ` alone on a line is an image

## Inline

- ` + "`**bold**`, `*italic*`, `` `code` ``, `<u>underline</u>`" + `
- ` + "`[text](https://...)`" + ` web links

## Links between notes

Write ` + "`[[Note title]]`" + `. When a note with that title exists (case-insensitive)
the text becomes a link to it. Links follow renames: the text is rewritten to the
target's current title, and a link whose target is deleted turns back into plain
` + "`[[title]]`" + ` text.

## Tree

Notes form a two-level tree: a root note may have children, a child may not.
Use move_note to reorder or nest notes; nesting a note that has children fails.
`
