package kernel

import (
	"context"
	"errors"
	"sort"
)

// DocumentState is the part of a document a host may persist: the active
// kernel and each kernel's console history, oldest first. Keys are
// catalog names.
type DocumentState struct {
	Active  string              `json:"active,omitempty" yaml:"active,omitempty" toml:"active,omitempty"`
	History map[string][]string `json:"history,omitempty" yaml:"history,omitempty" toml:"history,omitempty"`
}

// State captures the document's state, including restored history of
// kernels that have not started yet.
func (k *Kernel) State(doc *Document) DocumentState {
	state := DocumentState{History: make(map[string][]string)}

	doc.stateMu.Lock()
	for kernel, texts := range doc.pending {
		state.History[kernel] = append([]string(nil), texts...)
	}
	state.Active = doc.preferred
	doc.stateMu.Unlock()

	for _, s := range doc.registry.List() {
		entries := doc.history.Entries(s.ID())
		if len(entries) == 0 {
			continue
		}
		texts := make([]string, len(entries))
		for i, e := range entries {
			texts[i] = e.Text
		}
		state.History[s.Kernel()] = texts
	}

	if s, ok := doc.registry.Active(); ok {
		state.Active = s.Kernel()
	}
	return state
}

// Restore applies a saved state. History of kernels without a live
// session is loaded when the session starts, and a restored active kernel
// is started by the first submission that needs one. Unknown kernels are
// reported after the rest of the state is applied.
func (k *Kernel) Restore(ctx context.Context, doc *Document, state DocumentState) error {
	var errs []error

	kernels := make([]string, 0, len(state.History))
	for kernel := range state.History {
		kernels = append(kernels, kernel)
	}
	sort.Strings(kernels)

	for _, kernel := range kernels {
		spec, err := k.catalog.Resolve(kernel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if s, ok := doc.registry.Get(spec.Name); ok {
			doc.history.Load(s.ID(), state.History[kernel])
			continue
		}
		doc.setPending(spec.Name, state.History[kernel])
	}

	if state.Active != "" {
		spec, err := k.catalog.Resolve(state.Active)
		if err != nil {
			errs = append(errs, err)
		} else if _, ok := doc.registry.Get(spec.Name); ok {
			if _, err := doc.registry.SetActive(ctx, spec.Name, false); err != nil {
				errs = append(errs, err)
			}
		} else {
			doc.setRestoredActive(spec.Name)
		}
	}
	return errors.Join(errs...)
}
