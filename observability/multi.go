package observability

import (
	"context"
	"slices"
	"strings"
)

// MultiObserver delivers each event to several observers in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver combines observers. Nil entries are dropped and nested
// MultiObservers are flattened.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil:
		case *MultiObserver:
			m.observers = append(m.observers, o.observers...)
		default:
			m.observers = append(m.observers, o)
		}
	}
	return m
}

// Len reports how many observers receive events.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}

// Names splits a comma-separated observer list such as "slog,zap".
// Blank and repeated names are dropped.
func Names(list string) []string {
	var names []string
	for name := range strings.SplitSeq(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Resolve looks up every registered observer named in list. One name
// yields that observer; several yield a MultiObserver over them.
func Resolve(list string) (Observer, error) {
	names := Names(list)
	if len(names) == 0 {
		return NoOpObserver{}, nil
	}

	resolved := make([]Observer, 0, len(names))
	for _, name := range names {
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}
	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return NewMultiObserver(resolved...), nil
}
