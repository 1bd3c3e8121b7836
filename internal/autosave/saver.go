// Package autosave debounces note edits per note and persists them in the
// background. A newer edit for a note supersedes its pending one, saves
// for one note never overlap, and an edit whose save failed is kept until
// a later save succeeds.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// State is the save state of one note.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateSaving  State = "saving"
	StateFailed  State = "failed"
)

// Edit is an unsaved change to a note. Nil fields are not part of it.
type Edit struct {
	Title   *string
	Content *string
}

func (e Edit) merge(newer Edit) Edit {
	if newer.Title != nil {
		e.Title = newer.Title
	}
	if newer.Content != nil {
		e.Content = newer.Content
	}
	return e
}

// Status reports where a note's edits stand.
type Status struct {
	State     State     `json:"state"`
	LastError string    `json:"lastError,omitempty"`
	Attempts  int       `json:"attempts"`
	SavedAt   time.Time `json:"savedAt,omitzero"`
}

// SaveFunc persists edit for note id.
type SaveFunc func(ctx context.Context, id string, edit Edit) error

type entry struct {
	edit     Edit
	dirty    bool
	seq      uint64
	timer    *time.Timer
	inflight chan struct{} // closed when the running save returns
	status   Status
}

// Saver holds the pending edits of every note.
type Saver struct {
	mu      sync.Mutex
	entries map[string]*entry

	save    SaveFunc
	delay   time.Duration
	timeout time.Duration
	notify  func(id string, st Status)
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Saver.
type Option func(*Saver)

// WithDelay sets the debounce delay between the last edit and its save.
func WithDelay(d time.Duration) Option {
	return func(s *Saver) { s.delay = d }
}

// WithTimeout bounds each background save.
func WithTimeout(d time.Duration) Option {
	return func(s *Saver) { s.timeout = d }
}

// WithNotify registers a callback for status changes. It runs without
// the saver's lock held.
func WithNotify(fn func(id string, st Status)) Option {
	return func(s *Saver) { s.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Saver) { s.log = l }
}

// New returns a Saver persisting through save.
func New(save SaveFunc, opts ...Option) *Saver {
	s := &Saver{
		entries: make(map[string]*entry),
		save:    save,
		delay:   time.Second,
		timeout: 5 * time.Second,
		notify:  func(string, Status) {},
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records edit for id and (re)starts its debounce timer.
func (s *Saver) Schedule(id string, edit Edit) {
	s.mu.Lock()
	e := s.entries[id]
	if e == nil {
		e = &entry{}
		s.entries[id] = e
	}
	e.edit = e.edit.merge(edit)
	e.dirty = true
	e.seq++
	e.status.State = StatePending
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(s.delay, func() { s.background(id) })
	st := e.status
	s.mu.Unlock()
	s.notify(id, st)
}

func (s *Saver) background(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.Flush(ctx, id); err != nil {
		s.log.Warn("autosave: save failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// Flush saves id's pending edit now, waiting for a save already running
// for id first. It returns the save error, which is also kept in the
// note's status.
func (s *Saver) Flush(ctx context.Context, id string) error {
	s.mu.Lock()
	for {
		e := s.entries[id]
		if e == nil || e.inflight == nil {
			break
		}
		ch := e.inflight
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}

	e := s.entries[id]
	if e == nil || !e.dirty {
		s.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	edit, seq := e.edit, e.seq
	e.inflight = make(chan struct{})
	e.status.State = StateSaving
	st := e.status
	s.mu.Unlock()
	s.notify(id, st)

	err := s.save(ctx, id, edit)

	s.mu.Lock()
	close(e.inflight)
	e.inflight = nil
	switch {
	case err != nil:
		e.status = Status{
			State:     StateFailed,
			LastError: err.Error(),
			Attempts:  e.status.Attempts + 1,
			SavedAt:   e.status.SavedAt,
		}
	case e.seq == seq:
		e.edit, e.dirty = Edit{}, false
		e.status = Status{State: StateIdle, SavedAt: s.now()}
	default:
		// A newer edit arrived during the save; its timer is already armed.
		e.status = Status{State: StatePending, SavedAt: s.now()}
	}
	st = e.status
	s.mu.Unlock()
	s.notify(id, st)
	return err
}

// FlushAll saves every pending edit and joins the errors.
func (s *Saver) FlushAll(ctx context.Context) error {
	var errs []error
	for _, id := range s.Dirty() {
		if err := s.Flush(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retry re-attempts a failed save. It is a no-op for a note with nothing
// pending.
func (s *Saver) Retry(ctx context.Context, id string) error {
	return s.Flush(ctx, id)
}

// Discard drops whatever is pending for id, e.g. after the note is deleted.
func (s *Saver) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entries[id]; e != nil {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, id)
	}
}

// Pending returns the unsaved edit for id, if any.
func (s *Saver) Pending(id string) (Edit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	if e == nil || !e.dirty {
		return Edit{}, false
	}
	return e.edit, true
}

// Status returns the save status of id. Unknown notes are idle.
func (s *Saver) Status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entries[id]; e != nil {
		return e.status
	}
	return Status{State: StateIdle}
}

// Dirty lists the notes with unsaved edits.
func (s *Saver) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, e := range s.entries {
		if e.dirty {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Close stops every timer and flushes what is pending.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.mu.Unlock()
	return s.FlushAll(ctx)
}
