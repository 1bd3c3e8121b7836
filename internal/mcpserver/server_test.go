package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lattice/internal/autosave"
	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/testutil"
	"github.com/starford/lattice/internal/workspace"
)

func testServer(t *testing.T) (*Server, *workspace.Workspace) {
	t.Helper()

	svc := noteservice.NewService(testutil.TestDB(t))
	ws, err := workspace.Open(t.Context(), svc, workspace.WithAutosave(autosave.WithDelay(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close(context.Background()) })
	return New(ws, svc), ws
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "update_note":
		result, err = srv.updateNote(ctx, req)
	case "move_note":
		result, err = srv.moveNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func create(t *testing.T, srv *Server, args map[string]any) string {
	t.Helper()
	r := callTool(t, srv, "create_note", args)
	id, ok := strings.CutPrefix(resultText(r), "created: ")
	if r.IsError || !ok {
		t.Fatalf("create %v: %s", args, resultText(r))
	}
	return id
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	id := create(t, srv, map[string]any{"title": "Test", "markdown": "## Intro\nHello **world**"})

	r := callTool(t, srv, "read_note", map[string]any{"id": id})
	if text := resultText(r); text != "## Intro\n\nHello **world**" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateNote_UnknownParent(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_note", map[string]any{"title": "x", "parent_id": "ghost"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "VALIDATION_ERROR") {
		t.Errorf("result = %q, want validation error", resultText(r))
	}
}

func TestListNotesOutline(t *testing.T) {
	srv, _ := testServer(t)
	a := create(t, srv, map[string]any{"title": "A"})
	create(t, srv, map[string]any{"title": "A1", "parent_id": a})
	create(t, srv, map[string]any{"title": "B"})

	text := resultText(callTool(t, srv, "list_notes", map[string]any{}))
	lines := strings.Split(text, "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "- A (") ||
		!strings.HasPrefix(lines[1], "  - A1 (") || !strings.HasPrefix(lines[2], "- B (") {
		t.Errorf("outline = %q", text)
	}

	text = resultText(callTool(t, srv, "list_notes", map[string]any{"parent_id": a}))
	if !strings.HasPrefix(text, "- A1 (") || strings.Contains(text, "\n") {
		t.Errorf("children = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestGetBacklinks_Wikilinks(t *testing.T) {
	srv, ws := testServer(t)
	b := create(t, srv, map[string]any{"title": "Beta"})
	a := create(t, srv, map[string]any{"title": "Alpha", "markdown": "links to [[beta]] and [[Nowhere]]"})

	r := callTool(t, srv, "get_backlinks", map[string]any{"id": b})
	if text := resultText(r); text != "Alpha ("+a+"): links to [[Beta]] and [[Nowhere]]" {
		t.Errorf("backlinks = %q", text)
	}

	n, err := ws.Note(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Links.Outbound) != 1 || n.Links.Outbound[0] != b {
		t.Errorf("outbound = %v, want [%s]", n.Links.Outbound, b)
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"id": a})
	if resultText(r) != "no backlinks found" {
		t.Errorf("unexpected backlinks: %q", resultText(r))
	}
}

func TestUpdateNote_RenamePropagates(t *testing.T) {
	srv, _ := testServer(t)
	b := create(t, srv, map[string]any{"title": "Beta"})
	a := create(t, srv, map[string]any{"title": "Alpha", "markdown": "see [[Beta]]"})

	r := callTool(t, srv, "update_note", map[string]any{"id": b, "title": "Gamma"})
	if r.IsError {
		t.Fatalf("update: %s", resultText(r))
	}
	if text := resultText(callTool(t, srv, "read_note", map[string]any{"id": a})); text != "see [[Gamma]]" {
		t.Errorf("linking note = %q, want renamed link text", text)
	}

	if r := callTool(t, srv, "update_note", map[string]any{"id": b}); !r.IsError {
		t.Error("update without fields should fail")
	}
}

func TestMoveNote(t *testing.T) {
	srv, _ := testServer(t)
	a := create(t, srv, map[string]any{"title": "A"})
	b := create(t, srv, map[string]any{"title": "B"})

	r := callTool(t, srv, "move_note", map[string]any{"id": b, "parent_id": a, "index": 0})
	if text := resultText(r); text != "moved: "+b+" to "+a+" at 0" {
		t.Errorf("move = %q", text)
	}
	r = callTool(t, srv, "move_note", map[string]any{"id": a, "parent_id": b})
	if !r.IsError {
		t.Error("cycle should be rejected")
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, map[string]any{"title": "Groceries", "markdown": "buy apples"})
	create(t, srv, map[string]any{"title": "Work", "markdown": "ship release"})

	text := resultText(callTool(t, srv, "search_notes", map[string]any{"query": "apples"}))
	if !strings.Contains(text, `"title": "Groceries"`) || strings.Contains(text, "Work") {
		t.Errorf("search = %s", text)
	}
}

func TestNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	if text := resultText(callTool(t, srv, "get_note_contract", map[string]any{})); !strings.Contains(text, "[[Note title]]") {
		t.Errorf("contract = %q", text)
	}
}

func TestResolveWikilinks(t *testing.T) {
	notes := []*models.Note{
		testutil.Note("1", "Same", "", 0),
		testutil.Note("2", "same", "", 1),
		testutil.Note("3", "Other", "", 2),
	}
	doc := content.FromText("[[same]] [[Other]] [[other]]")
	code := content.NewBlock(content.BlockCode, "[[Other]]")
	doc.Blocks = append(doc.Blocks, code)

	if n := resolveWikilinks(doc, notes); n != 2 {
		t.Fatalf("linked = %d, want 2 (ambiguous title and code skipped)", n)
	}
	if got := len(doc.Blocks[0].EntityRanges); got != 2 {
		t.Errorf("ranges = %d", got)
	}
	if r := doc.Blocks[0].EntityRanges[0]; r.Offset != 9 || r.Length != 9 {
		t.Errorf("first range = %+v, want offset 9 length 9", r)
	}
	if len(doc.Blocks[1].EntityRanges) != 0 {
		t.Error("code block should not be linked")
	}
}
