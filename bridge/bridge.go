// Package bridge copies variables between sessions of different languages.
// Values leave the source session as interchange values, are converted for
// the target language by a Table, and are bound into the target session.
// The source session is only read.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/interchange"
	"github.com/tailored-agentic-units/polyglot/session"
)

// Bridge transfers variables using a conversion table.
type Bridge struct {
	table *Table
}

// New creates a Bridge. A nil table uses NewTable.
func New(table *Table) *Bridge {
	if table == nil {
		table = NewTable()
	}
	return &Bridge{table: table}
}

// Table returns the bridge's conversion table.
func (b *Bridge) Table() *Table {
	return b.table
}

// Transfer copies name from src into dst under the same name. When src and
// dst are the same session the namespace is left untouched, but the name
// must exist.
func (b *Bridge) Transfer(ctx context.Context, name string, src, dst *session.Session) error {
	v, err := b.Read(ctx, name, src)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}

	out, err := b.table.Convert(v, src.Spec().TypeSystem(), dst.Spec().TypeSystem())
	if err != nil {
		return fmt.Errorf("transfer %s from %s to %s: %w", name, src.Kernel(), dst.Kernel(), err)
	}

	if err := dst.Set(ctx, name, out); err != nil {
		if errors.Is(err, engine.ErrUnsupported) {
			return fmt.Errorf("%w: %s in %s: %v", ErrUnsupportedType, name, dst.Kernel(), err)
		}
		return fmt.Errorf("transfer %s into %s: %w", name, dst.Kernel(), err)
	}
	return nil
}

// Read copies name out of s, mapping a missing variable to
// ErrNameNotFound.
func (b *Bridge) Read(ctx context.Context, name string, s *session.Session) (interchange.Value, error) {
	v, err := s.Get(ctx, name)
	if err != nil {
		if errors.Is(err, engine.ErrUndefined) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNameNotFound, name, s.Kernel())
		}
		return nil, fmt.Errorf("read %s from %s: %w", name, s.Kernel(), err)
	}
	return v, nil
}
