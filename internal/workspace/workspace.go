// Package workspace owns the canonical in-memory note collection. All
// mutations go through one Workspace, one at a time, and readers only ever
// see reconciled collections. Content edits are applied in memory first
// and persisted by the autosave saver; structural changes are persisted
// immediately through the note service.
package workspace

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/autosave"
	"github.com/starford/lattice/internal/linkgraph"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/tree"
)

// Workspace is the single mutator of the note collection.
type Workspace struct {
	// mutate serialises every change to notes, including the apply step of
	// background saves, so results land in the order they were committed.
	mutate sync.Mutex

	mu     sync.RWMutex
	notes  []*models.Note
	active string

	svc   *noteservice.Service
	saver *autosave.Saver
	links *linkgraph.Engine
	log   *slog.Logger
	now   func() time.Time

	hub hub
}

// Option configures a Workspace.
type Option func(*config)

type config struct {
	links       *linkgraph.Engine
	log         *slog.Logger
	now         func() time.Time
	saveOptions []autosave.Option
}

// WithLinkEngine sets the engine used for in-memory reconciliation and
// backlink queries.
func WithLinkEngine(e *linkgraph.Engine) Option {
	return func(c *config) { c.links = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithClock overrides time.Now for draft timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithAutosave passes options to the autosave saver.
func WithAutosave(opts ...autosave.Option) Option {
	return func(c *config) { c.saveOptions = append(c.saveOptions, opts...) }
}

// Open loads the stored notes and returns a ready workspace.
func Open(ctx context.Context, svc *noteservice.Service, opts ...Option) (*Workspace, error) {
	cfg := config{links: linkgraph.New(), log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	notes, err := svc.Load(ctx)
	if err != nil {
		return nil, err
	}
	w := &Workspace{
		notes: notes,
		svc:   svc,
		links: cfg.links,
		log:   cfg.log,
		now:   cfg.now,
	}
	saveOpts := append([]autosave.Option{
		autosave.WithLogger(cfg.log),
		autosave.WithNotify(w.statusChanged),
	}, cfg.saveOptions...)
	w.saver = autosave.New(w.save, saveOpts...)
	if err := tree.Check(notes); err != nil {
		w.log.Warn("workspace: stored tree is inconsistent", slog.String("error", err.Error()))
	}
	w.log.Info("workspace: opened", slog.Int("notes", len(notes)))
	return w, nil
}

// Notes returns the current collection. The notes must not be modified.
func (w *Workspace) Notes() []*models.Note {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.notes)
}

// Note returns one note.
func (w *Workspace) Note(id string) (*models.Note, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n := find(w.notes, id); n != nil {
		return n, nil
	}
	return nil, apperr.NotFound("workspace.Note", id)
}

// Children returns the notes under parentID ("" for roots) in order.
func (w *Workspace) Children(parentID string) []*models.Note {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return models.Siblings(w.notes, parentID)
}

// Backlinks returns the notes referencing id with their excerpts.
func (w *Workspace) Backlinks(id string) ([]linkgraph.BacklinkEntry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if find(w.notes, id) == nil {
		return nil, apperr.NotFound("workspace.Backlinks", id)
	}
	return w.links.Backlinks(id, w.notes), nil
}

// Graph returns the link graph overview.
func (w *Workspace) Graph() linkgraph.Overview {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return linkgraph.Graph(w.notes)
}

// Create adds a note and persists it.
func (w *Workspace) Create(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	w.mutate.Lock()
	defer w.mutate.Unlock()
	res, err := w.svc.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	w.apply(EventCreated, res.Note.ID, res)
	return w.current(res.Note.ID), nil
}

// Update persists a title, content, embed or parent change. Pending edits
// of the note are saved first so ifMatch is checked against them.
func (w *Workspace) Update(ctx context.Context, id string, in noteservice.UpdateInput, ifMatch string) (*models.Note, error) {
	if err := w.saver.Flush(ctx, id); err != nil {
		return nil, err
	}
	w.mutate.Lock()
	defer w.mutate.Unlock()
	var parent string
	if cur := w.current(id); cur != nil {
		parent = cur.ParentID
	}
	res, err := w.svc.Update(ctx, id, in, ifMatch)
	if err != nil {
		return nil, err
	}
	kind := EventUpdated
	if in.ParentID != nil && *in.ParentID != parent {
		kind = EventMoved
	}
	w.apply(kind, id, res)
	return w.current(id), nil
}

// Delete removes a note, dropping any unsaved edit of it.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.saver.Discard(id)
	w.mutate.Lock()
	defer w.mutate.Unlock()
	res, err := w.svc.Delete(ctx, id)
	if err != nil {
		return err
	}
	w.apply(EventDeleted, id, res)

	w.mu.Lock()
	if w.active == id {
		w.active = ""
	}
	w.mu.Unlock()
	return nil
}

// Move places a note under parentID at index.
func (w *Workspace) Move(ctx context.Context, id, parentID string, index int) (*models.Note, error) {
	w.mutate.Lock()
	defer w.mutate.Unlock()
	res, err := w.svc.Move(ctx, id, parentID, index)
	if err != nil {
		return nil, err
	}
	w.apply(EventMoved, id, res)
	return w.current(id), nil
}

// Import replaces the whole collection. Pending edits are saved first and
// then dropped with the notes they belonged to.
func (w *Workspace) Import(ctx context.Context, notes []*models.Note) ([]*models.Note, error) {
	if err := w.saver.FlushAll(ctx); err != nil {
		w.log.Warn("workspace: flush before import failed", slog.String("error", err.Error()))
	}
	w.mutate.Lock()
	defer w.mutate.Unlock()
	res, err := w.svc.Import(ctx, notes)
	if err != nil {
		return nil, err
	}
	for _, id := range w.saver.Dirty() {
		w.saver.Discard(id)
	}
	w.apply(EventImported, "", res)
	return w.Notes(), nil
}

// Edit applies a draft change in memory and schedules it for saving. The
// collection is reconciled at once, so renames show up in other notes'
// link text before anything is persisted.
func (w *Workspace) Edit(id string, edit autosave.Edit) (*models.Note, error) {
	w.mutate.Lock()
	defer w.mutate.Unlock()

	w.mu.RLock()
	cur := find(w.notes, id)
	w.mu.RUnlock()
	if cur == nil {
		return nil, apperr.NotFound("workspace.Edit", id)
	}
	if edit.Content != nil {
		normalized := w.svc.NormalizeContent(*edit.Content)
		edit.Content = &normalized
	}
	if (edit.Title == nil || *edit.Title == cur.Title) && (edit.Content == nil || *edit.Content == cur.Content) {
		return cur, nil
	}

	c := cur.Clone()
	overlay(c, edit)
	c.UpdatedAt = w.now().UTC()
	next := w.links.Reconcile(replace(w.snapshot(), c))
	w.swap(EventUpdated, id, next)
	w.saver.Schedule(id, edit)
	return w.current(id), nil
}

// Activate marks id as the note being edited. Unsaved edits of the
// previously active note are flushed first so they cannot be lost or land
// after a newer edit.
func (w *Workspace) Activate(ctx context.Context, id string) error {
	if id != "" {
		if _, err := w.Note(id); err != nil {
			return err
		}
	}
	w.mu.Lock()
	prev := w.active
	w.active = id
	w.mu.Unlock()
	if prev == "" || prev == id {
		return nil
	}
	return w.saver.Flush(ctx, prev)
}

// Active returns the id of the note being edited, if any.
func (w *Workspace) Active() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

// SaveStatus reports the autosave state of a note.
func (w *Workspace) SaveStatus(id string) autosave.Status {
	return w.saver.Status(id)
}

// Retry re-attempts a failed save of id.
func (w *Workspace) Retry(ctx context.Context, id string) error {
	return w.saver.Retry(ctx, id)
}

// Flush saves every pending edit.
func (w *Workspace) Flush(ctx context.Context) error {
	return w.saver.FlushAll(ctx)
}

// Close flushes pending edits; call it on shutdown.
func (w *Workspace) Close(ctx context.Context) error {
	err := w.saver.Close(ctx)
	if err != nil {
		w.log.Error("workspace: unsaved edits remain", slog.Any("notes", w.saver.Dirty()), slog.String("error", err.Error()))
	}
	return err
}

// save is the autosave SaveFunc.
func (w *Workspace) save(ctx context.Context, id string, edit autosave.Edit) error {
	w.mutate.Lock()
	defer w.mutate.Unlock()
	res, err := w.svc.Update(ctx, id, noteservice.UpdateInput{Title: edit.Title, Content: edit.Content}, "")
	if err != nil {
		return err
	}
	w.apply(EventSaved, id, res)
	return nil
}

// apply installs a persisted result. Notes that still have unsaved edits
// keep their in-memory title and content on top of it.
func (w *Workspace) apply(kind EventType, id string, res *noteservice.Result) {
	next := res.Notes
	overlaid := false
	for i, n := range next {
		edit, ok := w.saver.Pending(n.ID)
		if !ok || !differs(n, edit) {
			continue
		}
		if !overlaid {
			next = slices.Clone(next)
			overlaid = true
		}
		c := n.Clone()
		overlay(c, edit)
		next[i] = c
	}
	if overlaid {
		next = w.links.Reconcile(next)
	}
	w.swap(kind, id, next)
}

// swap replaces the collection and publishes what changed. Notes equal
// to their previous value keep the previous pointer.
func (w *Workspace) swap(kind EventType, id string, next []*models.Note) {
	w.mu.Lock()
	prev := w.notes
	byID := models.Index(prev)
	for i, n := range next {
		if p := byID[n.ID]; p != nil && p != n && p.Equal(n) {
			next[i] = p
		}
	}
	w.notes = next
	w.mu.Unlock()

	changed, removed := tree.Diff(prev, next)
	ev := Event{Type: kind, NoteID: id, Removed: removed}
	for _, n := range changed {
		ev.Changed = append(ev.Changed, n.ID)
	}
	w.hub.publish(ev)
}

func (w *Workspace) statusChanged(id string, st autosave.Status) {
	w.hub.publish(Event{Type: EventSaveStatus, NoteID: id, Status: &st})
}

func (w *Workspace) snapshot() []*models.Note {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.notes
}

func (w *Workspace) current(id string) *models.Note {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return find(w.notes, id)
}

func overlay(n *models.Note, e autosave.Edit) {
	if e.Title != nil {
		n.Title = *e.Title
	}
	if e.Content != nil {
		n.Content = *e.Content
	}
}

func differs(n *models.Note, e autosave.Edit) bool {
	return (e.Title != nil && *e.Title != n.Title) || (e.Content != nil && *e.Content != n.Content)
}

func replace(notes []*models.Note, n *models.Note) []*models.Note {
	out := slices.Clone(notes)
	for i := range out {
		if out[i].ID == n.ID {
			out[i] = n
		}
	}
	return out
}

func find(notes []*models.Note, id string) *models.Note {
	for _, n := range notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
