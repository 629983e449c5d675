// Package statestore keeps document state outside the kernel so a host
// can reopen a document with its active kernel and console history.
// FileStore writes one YAML file per document with atomic renames;
// SQLiteStore keeps the same YAML documents in a single database file.
package statestore

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/polyglot/kernel"
)

// Sentinel errors for store operations.
var (
	ErrNotFound   = errors.New("document state not found")
	ErrLoadFailed = errors.New("load failed")
	ErrSaveFailed = errors.New("save failed")
)

// Store loads and saves document state by document id.
type Store interface {
	Load(ctx context.Context, id string) (kernel.DocumentState, error)
	Save(ctx context.Context, id string, state kernel.DocumentState) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

func encode(id string, state kernel.DocumentState) ([]byte, error) {
	data, err := yaml.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}
	return data, nil
}

func decode(id string, data []byte) (kernel.DocumentState, error) {
	var state kernel.DocumentState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	return state, nil
}
