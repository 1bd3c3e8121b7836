// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Lattice tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/markdown"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/workspace"
)

const formatURI = "lattice://note-format"

// Server wraps the MCP server with Lattice tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Workspace
	svc *noteservice.Service
}

// New creates a new MCP server with all Lattice tools registered.
func New(ws *workspace.Workspace, svc *noteservice.Service) *Server {
	s := &Server{ws: ws, svc: svc}

	s.mcp = server.NewMCPServer(
		"Lattice",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note titles and text. Returns id, title and parent of each hit."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as Markdown. Links to other notes appear as [[Title]]."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note from Markdown. [[Title]] references to existing notes "+
			"become links. Read the format via get_note_contract or the "+formatURI+" resource first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("markdown", mcp.Description("Note body in the Lattice Markdown subset")),
		mcp.WithString("parent_id", mcp.Description("Id of a root note to nest under (empty for the root list)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the title and/or body of a note. Renaming updates the link text in every note that links here."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("markdown", mcp.Description("New body in the Lattice Markdown subset")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move a note to position index under parent_id (empty for the root list)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("parent_id", mcp.Description("Target parent id, empty for root")),
		mcp.WithNumber("index", mcp.Description("Zero-based position in the target list (default 0)")),
	), s.moveNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the Lattice note format. "+
			"Call this before creating or updating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the note tree as an outline, or the children of one note."),
		mcp.WithString("parent_id", mcp.Description("Optional parent id; only its children are listed")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note, with the text around each link."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format",
			mcp.WithResourceDescription("Markdown subset understood by Lattice and how note links are written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", apperr.KindOf(err), apperr.Reason(err)))
}

type hit struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ParentID string `json:"parentId,omitempty"`
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	notes, err := s.svc.List(ctx, storage.Query{Search: query, SortBy: storage.SortTitle, Limit: max(limit, 1)})
	if err != nil {
		return toolError(err), nil
	}
	hits := make([]hit, len(notes))
	for i, n := range notes {
		hits[i] = hit{ID: n.ID, Title: n.Title, ParentID: n.ParentID}
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ws.Note(id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(markdown.ToMarkdown(content.ParseOrEmpty(n.Content))), nil
}

// body converts tool Markdown to stored content, linking [[Title]] text.
func (s *Server) body(text string) string {
	doc := content.ParseOrEmpty(s.svc.NormalizeContent(text))
	resolveWikilinks(doc, s.ws.Notes())
	return doc.String()
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ws.Create(ctx, models.NoteInput{
		Title:    title,
		Content:  s.body(req.GetString("markdown", "")),
		ParentID: req.GetString("parent_id", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var in noteservice.UpdateInput
	args := req.GetArguments()
	if title, ok := args["title"].(string); ok {
		in.Title = &title
	}
	if text, ok := args["markdown"].(string); ok {
		body := s.body(text)
		in.Content = &body
	}
	if in.Title == nil && in.Content == nil {
		return mcp.NewToolResultError("title or markdown is required"), nil
	}
	if _, err := s.ws.Update(ctx, id, in, ""); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ws.Move(ctx, id, req.GetString("parent_id", ""), req.GetInt("index", 0))
	if err != nil {
		return toolError(err), nil
	}
	where := "root"
	if n.ParentID != "" {
		where = n.ParentID
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s to %s at %d", n.ID, where, n.Order)), nil
}

func (s *Server) listNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var lines []string
	line := func(depth int, n *models.Note) {
		lines = append(lines, fmt.Sprintf("%s- %s (%s)", strings.Repeat("  ", depth), n.Title, n.ID))
	}

	if parent := req.GetString("parent_id", ""); parent != "" {
		if _, err := s.ws.Note(parent); err != nil {
			return toolError(err), nil
		}
		for _, c := range s.ws.Children(parent) {
			line(0, c)
		}
	} else {
		for _, root := range s.ws.Children("") {
			line(0, root)
			for _, c := range s.ws.Children(root.ID) {
				line(1, c)
			}
		}
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.ws.Backlinks(id)
	if err != nil {
		return toolError(err), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	var lines []string
	for _, e := range entries {
		for _, ex := range e.Excerpts {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", e.SourceTitle, e.SourceID, ex))
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
