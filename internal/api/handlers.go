package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/autosave"
	"github.com/starford/lattice/internal/backup"
	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/linkgraph"
	"github.com/starford/lattice/internal/markdown"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/workspace"
)

// Handler holds API route handlers. Reads of single notes and the link
// graph come from the workspace, so they include unsaved drafts; listings
// and search go to storage.
type Handler struct {
	ws  *workspace.Workspace
	svc *noteservice.Service
	now func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(ws *workspace.Workspace, svc *noteservice.Service) *Handler {
	return &Handler{ws: ws, svc: svc, now: time.Now}
}

func (h *Handler) respondNote(w http.ResponseWriter, status int, n *models.Note) {
	w.Header().Set("ETag", etag(n))
	writeJSON(w, status, detail(n, h.ws.SaveStatus(n.ID)))
}

// ListNotes handles GET /api/notes.
//
// Query parameters: parent (present and empty selects roots), q, sort
// (order|title|created|updated), desc, limit, offset.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := storage.Query{
		Search: params.Get("q"),
		SortBy: storage.SortField(params.Get("sort")),
		Desc:   params.Get("desc") == "true",
	}
	if params.Has("parent") {
		parent := params.Get("parent")
		q.ParentID = &parent
	}
	var err error
	if q.Limit, err = intParam(params.Get("limit")); err != nil {
		writeError(w, r, apperr.Validation("api.ListNotes", "limit must be an integer"))
		return
	}
	if q.Offset, err = intParam(params.Get("offset")); err != nil {
		writeError(w, r, apperr.Validation("api.ListNotes", "offset must be an integer"))
		return
	}

	notes, err := h.svc.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Count: len(notes)})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.ws.Note(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag(n) {
		w.Header().Set("ETag", etag(n))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.respondNote(w, http.StatusOK, n)
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.ws.Create(r.Context(), models.NoteInput{Title: req.Title, Content: req.Content, ParentID: req.ParentID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/notes/"+n.ID)
	h.respondNote(w, http.StatusCreated, n)
}

// UpdateNote handles PUT /api/notes/{id}. An If-Match header must match
// the note's current ETag.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := noteservice.UpdateInput{Title: req.Title, Content: req.Content, ParentID: req.ParentID}
	if req.Embeds != nil {
		in.Embeds = *req.Embeds
		if in.Embeds == nil {
			in.Embeds = []models.Embed{}
		}
	}
	n, err := h.ws.Update(r.Context(), chi.URLParam(r, "id"), in, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondNote(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/notes/{id}. Children move up to the root
// list in the deleted note's place.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNote handles POST /api/notes/{id}/move.
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req MoveNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.ws.Move(r.Context(), chi.URLParam(r, "id"), req.ParentID, req.Index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondNote(w, http.StatusOK, n)
}

// Backlinks handles GET /api/notes/{id}/backlinks.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ws.Backlinks(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []linkgraph.BacklinkEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": entries})
}

// Markdown handles GET /api/notes/{id}/markdown.
func (h *Handler) Markdown(w http.ResponseWriter, r *http.Request) {
	n, err := h.ws.Note(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkdownResponse{
		ID:       n.ID,
		Title:    n.Title,
		Markdown: markdown.ToMarkdown(content.ParseOrEmpty(n.Content)),
	})
}

// HTML handles GET /api/notes/{id}/html.
func (h *Handler) HTML(w http.ResponseWriter, r *http.Request) {
	n, err := h.ws.Note(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := markdown.RenderHTML(content.ParseOrEmpty(n.Content))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag(n))
	_, _ = w.Write([]byte(out))
}

// Draft handles PUT /api/notes/{id}/draft: the edit is applied in memory
// at once and saved after the autosave delay.
func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	var req AutosaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.ws.Edit(chi.URLParam(r, "id"), autosave.Edit{Title: req.Title, Content: req.Content})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondNote(w, http.StatusAccepted, n)
}

// SaveStatus handles GET /api/notes/{id}/save-status.
func (h *Handler) SaveStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.ws.Note(id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.SaveStatus(id))
}

// RetrySave handles POST /api/notes/{id}/save-retry.
func (h *Handler) RetrySave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ws.Retry(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.SaveStatus(id))
}

// Activate handles PUT /api/active. Unsaved edits of the previously
// active note are flushed.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ws.Activate(r.Context(), req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ActiveNote handles GET /api/active.
func (h *Handler) ActiveNote(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ActivateRequest{ID: h.ws.Active()})
}

// Graph handles GET /api/graph.
func (h *Handler) Graph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Graph())
}

// Export handles GET /api/backup. Pending drafts are saved first.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Flush(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	now := h.now()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(now)))
	writeJSON(w, http.StatusOK, backup.Encode(h.ws.Notes(), now))
}

// Import handles POST /api/backup, replacing every note.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	doc, err := backup.Decode(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, err := h.ws.Import(r.Context(), doc.ToNotes())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: len(notes)})
}
