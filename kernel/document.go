package kernel

import (
	"sync"

	"github.com/tailored-agentic-units/polyglot/history"
	"github.com/tailored-agentic-units/polyglot/session"
)

// Document is one interactive document: its sessions, which of them is
// active, and its console history. Documents share nothing with each
// other.
type Document struct {
	id       string
	registry *session.Registry
	history  *history.History

	// mu serializes the directive phase of submissions so the active
	// session cannot change between resolution and dispatch.
	mu sync.Mutex

	// Restored state waiting for its sessions to start.
	stateMu   sync.Mutex
	pending   map[string][]string
	preferred string
}

// ID returns the document id.
func (d *Document) ID() string {
	return d.id
}

// Active returns the active session, if any.
func (d *Document) Active() (*session.Session, bool) {
	return d.registry.Active()
}

// Sessions returns the live sessions sorted by kernel name.
func (d *Document) Sessions() []*session.Session {
	return d.registry.List()
}

// Session returns the live session for tag without starting one.
func (d *Document) Session(tag string) (*session.Session, bool) {
	return d.registry.Get(tag)
}

// History returns the console history entries of the live session for
// tag, oldest first.
func (d *Document) History(tag string) []history.Entry {
	s, ok := d.registry.Get(tag)
	if !ok {
		return nil
	}
	return d.history.Entries(s.ID())
}

// lookup resolves tag to a live session; an empty tag means the active
// one.
func (d *Document) lookup(tag string) (*session.Session, bool) {
	if tag == "" {
		return d.registry.Active()
	}
	return d.registry.Get(tag)
}

func (d *Document) setPending(kernel string, texts []string) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.pending == nil {
		d.pending = make(map[string][]string)
	}
	d.pending[kernel] = append([]string(nil), texts...)
}

func (d *Document) takePending(kernel string) []string {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	texts, ok := d.pending[kernel]
	if !ok {
		return nil
	}
	delete(d.pending, kernel)
	return texts
}

func (d *Document) clearPending() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.pending = nil
}

func (d *Document) setRestoredActive(kernel string) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.preferred = kernel
}

func (d *Document) restoredActive() string {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.preferred
}
