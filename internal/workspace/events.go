package workspace

import (
	"sync"

	"github.com/starford/lattice/internal/autosave"
)

// EventType names a workspace change.
type EventType string

const (
	EventCreated    EventType = "note.created"
	EventUpdated    EventType = "note.updated"
	EventDeleted    EventType = "note.deleted"
	EventMoved      EventType = "note.moved"
	EventImported   EventType = "note.imported"
	EventSaved      EventType = "note.saved"
	EventSaveStatus EventType = "note.saveStatus"
)

// Event describes one change. Changed lists every note whose stored value
// differs afterwards, including notes rewritten by link reconciliation.
type Event struct {
	Type    EventType        `json:"type"`
	NoteID  string           `json:"noteId,omitempty"`
	Changed []string         `json:"changed,omitempty"`
	Removed []string         `json:"removed,omitempty"`
	Status  *autosave.Status `json:"status,omitempty"`
}

// LinksChanged reports whether the event may have altered the link graph.
func (e Event) LinksChanged() bool {
	return e.Type != EventSaveStatus && (len(e.Changed) > 0 || len(e.Removed) > 0)
}

// hub is the subscriber registry. Subscribers are called synchronously and
// must not block or call back into the workspace.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribe registers fn for every event and returns its unsubscribe func.
func (w *Workspace) Subscribe(fn func(Event)) (unsubscribe func()) {
	return w.hub.subscribe(fn)
}
