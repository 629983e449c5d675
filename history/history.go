// Package history keeps the console history of a document, one log per
// session. Navigation walks a single session's log and never crosses into
// another's.
package history

import (
	"slices"
	"sort"
	"sync"
)

// Direction moves the navigation cursor.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ParseDirection accepts "up" and "down".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return Up, true
	case "down":
		return Down, true
	}
	return 0, false
}

// Entry is one console submission.
type Entry struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Sequence  uint64 `json:"sequence"`
}

type log struct {
	entries []Entry
	next    uint64
	// cursor indexes entries; len(entries) is the empty prompt below the
	// newest entry.
	cursor int
}

func (l *log) reset() {
	l.cursor = len(l.entries)
}

// History is safe for concurrent use.
type History struct {
	mu   sync.Mutex
	logs map[string]*log
}

// New creates an empty History.
func New() *History {
	return &History{logs: make(map[string]*log)}
}

func (h *History) log(sessionID string) *log {
	l, ok := h.logs[sessionID]
	if !ok {
		l = &log{next: 1}
		h.logs[sessionID] = l
	}
	return l
}

// Append records text for the session and resets its cursor.
func (h *History) Append(sessionID, text string) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	l := h.log(sessionID)
	entry := Entry{SessionID: sessionID, Text: text, Sequence: l.next}
	l.next++
	l.entries = append(l.entries, entry)
	l.reset()
	return entry
}

// Navigate moves the session's cursor and returns the entry text under it.
// Moving Up past the oldest entry and Down onto the empty prompt both
// report false.
func (h *History) Navigate(sessionID string, dir Direction) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.logs[sessionID]
	if !ok {
		return "", false
	}

	switch dir {
	case Up:
		if l.cursor == 0 {
			return "", false
		}
		l.cursor--
	case Down:
		if l.cursor >= len(l.entries)-1 {
			l.reset()
			return "", false
		}
		l.cursor++
	}
	return l.entries[l.cursor].Text, true
}

// Clear empties every session's log. Sequences keep increasing.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, l := range h.logs {
		l.entries = nil
		l.reset()
	}
}

// Drop forgets a session entirely.
func (h *History) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.logs, sessionID)
}

// Entries returns a copy of the session's log, oldest first.
func (h *History) Entries(sessionID string) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.logs[sessionID]
	if !ok {
		return nil
	}
	return slices.Clone(l.entries)
}

// Load replaces the session's log with texts, numbering them after any
// sequence already issued to the session.
func (h *History) Load(sessionID string, texts []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l := h.log(sessionID)
	l.entries = make([]Entry, 0, len(texts))
	for _, text := range texts {
		l.entries = append(l.entries, Entry{SessionID: sessionID, Text: text, Sequence: l.next})
		l.next++
	}
	l.reset()
}

// Sessions returns the session IDs with a log, sorted.
func (h *History) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.logs))
	for id := range h.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
