// Package noteservice is the persisted path for note mutations. Each
// operation loads the note set inside one storage transaction, applies the
// tree mutation, reconciles links and writes back only the notes that
// changed.
package noteservice

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/checksum"
	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/linkgraph"
	"github.com/starford/lattice/internal/markdown"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/tree"
)

// Result is the authoritative collection after a mutation.
type Result struct {
	Note    *models.Note   // the note the operation targeted; nil after a delete
	Notes   []*models.Note // every note, reconciled
	Changed []*models.Note // notes created or rewritten by the operation
	Removed []string       // ids deleted by the operation
}

// UpdateInput is a partial update. Nil fields are left as they are.
type UpdateInput struct {
	Title    *string
	Content  *string
	ParentID *string // "" moves the note to the root
	Embeds   []models.Embed
}

// Service coordinates storage, tree mutation and link reconciliation.
type Service struct {
	store    storage.Provider
	links    *linkgraph.Engine
	mutator  *tree.Mutator
	detector markdown.Detector
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLinkEngine sets the reconciliation engine.
func WithLinkEngine(e *linkgraph.Engine) Option {
	return func(s *Service) { s.links = e }
}

// WithDetector sets the Markdown detector applied to incoming content.
func WithDetector(d markdown.Detector) Option {
	return func(s *Service) { s.detector = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new note service.
func NewService(store storage.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		links:    linkgraph.New(),
		detector: markdown.NewDetector(markdown.DefaultThreshold),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mutator = tree.NewMutator(s.links)
	return s
}

// Load returns the stored notes, reconciled. Nothing is written.
func (s *Service) Load(ctx context.Context) ([]*models.Note, error) {
	notes, err := s.store.GetNotes(ctx, storage.Query{})
	if err != nil {
		return nil, err
	}
	return s.links.Reconcile(notes), nil
}

// Get returns one stored note.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	return s.store.GetNote(ctx, id)
}

// List queries stored notes.
func (s *Service) List(ctx context.Context, q storage.Query) ([]*models.Note, error) {
	return s.store.GetNotes(ctx, q)
}

// Create adds a note at the end of its parent's list. Content that is not
// a structured document is converted on the way in.
func (s *Service) Create(ctx context.Context, in models.NoteInput) (*Result, error) {
	const op = "noteservice.Create"
	now := s.now().UTC()
	n := &models.Note{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Content:   s.NormalizeContent(in.Content),
		ParentID:  in.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
		Links:     models.Links{Outbound: []string{}, Inbound: []string{}},
		Embeds:    []models.Embed{},
	}
	res, err := s.mutate(ctx, op, func(tx storage.Provider, notes []*models.Note) ([]*models.Note, error) {
		if err := validateStoredParent(ctx, tx, op, "", in.ParentID); err != nil {
			return nil, err
		}
		return s.mutator.Insert(notes, n)
	})
	if err != nil {
		return nil, err
	}
	res.Note = find(res.Notes, n.ID)
	s.log.Info("noteservice: note created", slog.String("id", n.ID), slog.String("parent", n.ParentID))
	return res, nil
}

// Update applies in to note id. A changed parent appends the note to the
// new parent's list; positional placement is Move's job. ifMatch, when
// set, must match the note's current checksum.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, ifMatch string) (*Result, error) {
	const op = "noteservice.Update"
	res, err := s.mutate(ctx, op, func(tx storage.Provider, notes []*models.Note) ([]*models.Note, error) {
		i := slices.IndexFunc(notes, func(n *models.Note) bool { return n.ID == id })
		if i < 0 {
			return nil, apperr.NotFound(op, id)
		}
		cur := notes[i]
		if !checksum.Match(ifMatch, checksum.Note(cur.Title, cur.Content)) {
			return nil, apperr.New(apperr.KindConflict, op, "note was modified since it was read")
		}

		now := s.now().UTC()
		out := notes
		if edited, ok := s.applyEdit(cur, in, now); ok {
			out = slices.Clone(notes)
			out[i] = edited
		}
		if in.ParentID != nil && *in.ParentID != cur.ParentID {
			if err := validateStoredParent(ctx, tx, op, id, *in.ParentID); err != nil {
				return nil, err
			}
			return s.mutator.Reparent(out, id, *in.ParentID, now)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	res.Note = find(res.Notes, id)
	return res, nil
}

// applyEdit returns a copy of cur with the content fields of in applied,
// or false when nothing would change.
func (s *Service) applyEdit(cur *models.Note, in UpdateInput, now time.Time) (*models.Note, bool) {
	c := cur.Clone()
	if in.Title != nil {
		c.Title = *in.Title
	}
	if in.Content != nil {
		c.Content = s.NormalizeContent(*in.Content)
	}
	if in.Embeds != nil {
		c.Embeds = slices.Clone(in.Embeds)
	}
	if checksum.Note(c.Title, c.Content) == checksum.Note(cur.Title, cur.Content) &&
		(in.Embeds == nil || slices.Equal(in.Embeds, cur.Embeds)) {
		return nil, false
	}
	c.UpdatedAt = now
	return c, true
}

// Delete removes note id and lifts its children into its place.
func (s *Service) Delete(ctx context.Context, id string) (*Result, error) {
	const op = "noteservice.Delete"
	res, err := s.mutate(ctx, op, func(_ storage.Provider, notes []*models.Note) ([]*models.Note, error) {
		return s.mutator.Remove(notes, id, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("noteservice: note deleted", slog.String("id", id), slog.Int("rewritten", len(res.Changed)))
	return res, nil
}

// Move places note id under parentID at index.
func (s *Service) Move(ctx context.Context, id, parentID string, index int) (*Result, error) {
	const op = "noteservice.Move"
	res, err := s.mutate(ctx, op, func(tx storage.Provider, notes []*models.Note) ([]*models.Note, error) {
		if err := validateStoredParent(ctx, tx, op, id, parentID); err != nil {
			return nil, err
		}
		return s.mutator.Move(notes, id, parentID, index, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	res.Note = find(res.Notes, id)
	return res, nil
}

// Import replaces every stored note with notes. The input is repaired into
// a valid tree and reconciled before it is written.
func (s *Service) Import(ctx context.Context, notes []*models.Note) (*Result, error) {
	const op = "noteservice.Import"
	incoming := make([]*models.Note, len(notes))
	for i, n := range notes {
		c := n.Clone()
		c.Content = s.NormalizeContent(c.Content)
		incoming[i] = c
	}
	res, err := s.transact(ctx, op, false, func(_ storage.Provider, _ []*models.Note) ([]*models.Note, error) {
		seen := make(map[string]bool, len(incoming))
		for _, n := range incoming {
			if n.ID == "" || seen[n.ID] {
				return nil, apperr.Validation(op, "import requires unique non-empty note ids")
			}
			seen[n.ID] = true
		}
		return tree.Normalize(incoming), nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("noteservice: notes imported", slog.Int("count", len(res.Notes)), slog.Int("replaced", len(res.Removed)))
	return res, nil
}

// NormalizeContent turns empty, Markdown or plain-text input into a
// structured document. Structured input is returned as is.
func (s *Service) NormalizeContent(raw string) string {
	if raw == "" {
		return content.Empty().String()
	}
	if content.IsDocument(raw) {
		return raw
	}
	return s.detector.Coerce(raw).String()
}

type mutation func(tx storage.Provider, notes []*models.Note) ([]*models.Note, error)

// mutate runs fn over the stored collection in one transaction and persists
// the reconciled difference. Notes rewritten only by reconciliation get a
// fresh UpdatedAt.
func (s *Service) mutate(ctx context.Context, op string, fn mutation) (*Result, error) {
	return s.transact(ctx, op, true, fn)
}

// transact is mutate with the UpdatedAt bump optional; an import keeps the
// timestamps it was given.
func (s *Service) transact(ctx context.Context, op string, touch bool, fn mutation) (*Result, error) {
	var res Result
	err := s.store.Tx(ctx, func(tx storage.Provider) error {
		before, err := tx.GetNotes(ctx, storage.Query{})
		if err != nil {
			return err
		}
		after, err := fn(tx, before)
		if err != nil {
			return err
		}
		after = s.links.Reconcile(after)
		changed, removed := tree.Diff(before, after)
		if touch {
			touchRewritten(before, changed, s.now().UTC())
		}
		if err := persist(ctx, tx, before, changed, removed); err != nil {
			return err
		}
		res = Result{Notes: after, Changed: changed, Removed: removed}
		return nil
	})
	if err != nil {
		s.log.Debug("noteservice: mutation rejected", slog.String("op", op), slog.String("error", err.Error()))
		return nil, err
	}
	return &res, nil
}

// touchRewritten bumps UpdatedAt on notes whose content was rewritten by
// reconciliation alone, such as rename propagation into a linking note.
func touchRewritten(before, changed []*models.Note, now time.Time) {
	prev := models.Index(before)
	for _, n := range changed {
		old, ok := prev[n.ID]
		if ok && old.Content != n.Content && n.UpdatedAt.Equal(old.UpdatedAt) {
			n.UpdatedAt = now
		}
	}
}

func persist(ctx context.Context, tx storage.Provider, before, changed []*models.Note, removed []string) error {
	existing := make(map[string]bool, len(before))
	for _, n := range before {
		existing[n.ID] = true
	}
	for _, id := range removed {
		if err := tx.DeleteNote(ctx, id); err != nil {
			return err
		}
	}
	for _, n := range changed {
		if !existing[n.ID] {
			if _, err := tx.CreateNote(ctx, n); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.UpdateNote(ctx, n.ID, fullPatch(n)); err != nil {
			return err
		}
	}
	return nil
}

func fullPatch(n *models.Note) models.NotePatch {
	links := n.Links
	return models.NotePatch{
		Title:     &n.Title,
		Content:   &n.Content,
		ParentID:  &n.ParentID,
		Order:     &n.Order,
		Links:     &links,
		Embeds:    nonNil(n.Embeds),
		UpdatedAt: &n.UpdatedAt,
	}
}

// validateStoredParent checks parentID against storage: it must exist, must
// not be the note itself and must be a root.
func validateStoredParent(ctx context.Context, tx storage.Provider, op, id, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == id {
		return apperr.Validation(op, tree.ReasonSelfParent)
	}
	parent, err := tx.GetNote(ctx, parentID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.Validation(op, tree.ReasonParentAbsent)
	}
	if err != nil {
		return err
	}
	if parent.ParentID == id && id != "" {
		return apperr.Validation(op, tree.ReasonCycle)
	}
	if parent.ParentID != "" {
		return apperr.Validation(op, tree.ReasonTooDeep)
	}
	return nil
}

func find(notes []*models.Note, id string) *models.Note {
	for _, n := range notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
