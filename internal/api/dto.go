package api

import (
	"errors"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lattice/internal/autosave"
	"github.com/starford/lattice/internal/checksum"
	"github.com/starford/lattice/internal/models"
)

const maxTitle = 512

// CreateNoteRequest is the request body for creating a note. Content may
// be a structured document, Markdown or plain text.
type CreateNoteRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ParentID string `json:"parentId"`
}

// Validate checks field bounds.
func (r *CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Length(0, maxTitle)),
	)
}

// UpdateNoteRequest is the request body for updating a note. Absent
// fields are left unchanged; "parentId": "" moves the note to the root.
type UpdateNoteRequest struct {
	Title    *string         `json:"title"`
	Content  *string         `json:"content"`
	ParentID *string         `json:"parentId"`
	Embeds   *[]models.Embed `json:"embeds"`
}

// Validate checks field bounds and embed URLs.
func (r *UpdateNoteRequest) Validate() error {
	if r.Title == nil && r.Content == nil && r.ParentID == nil && r.Embeds == nil {
		return validation.NewError("validation_empty_update", "at least one field is required")
	}
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Length(0, maxTitle)),
	); err != nil {
		return err
	}
	if r.Embeds == nil {
		return nil
	}
	for _, e := range *r.Embeds {
		if err := validation.Validate(e.URL, validation.Required, validation.By(absoluteURL)); err != nil {
			return validation.Errors{"embeds": err}
		}
	}
	return nil
}

func absoluteURL(v any) error {
	u, err := url.Parse(v.(string))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// MoveNoteRequest places a note under ParentID ("" for the root list) at Index.
type MoveNoteRequest struct {
	ParentID string `json:"parentId"`
	Index    int    `json:"index"`
}

// Validate checks the target index.
func (r *MoveNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Index, validation.Min(0)),
	)
}

// AutosaveRequest is a draft edit of the note being typed in.
type AutosaveRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Validate requires at least one field.
func (r *AutosaveRequest) Validate() error {
	if r.Title == nil && r.Content == nil {
		return validation.NewError("validation_empty_edit", "title or content is required")
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Length(0, maxTitle)),
	)
}

// ImportResponse reports how many notes a posted backup replaced the
// collection with.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// NoteDetail is a note plus its checksum and autosave state.
type NoteDetail struct {
	*models.Note
	Checksum   string          `json:"checksum"`
	SaveStatus autosave.Status `json:"saveStatus"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []*models.Note `json:"notes"`
	Count int            `json:"count"`
}

// MarkdownResponse carries a note rendered as Markdown.
type MarkdownResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// ActivateRequest names the note being edited; an empty id clears it.
type ActivateRequest struct {
	ID string `json:"id"`
}

func etag(n *models.Note) string {
	return `"` + checksum.Note(n.Title, n.Content) + `"`
}

func detail(n *models.Note, st autosave.Status) NoteDetail {
	return NoteDetail{Note: n, Checksum: strings.Trim(etag(n), `"`), SaveStatus: st}
}
