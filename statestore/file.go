package statestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailored-agentic-units/polyglot/kernel"
)

const ext = ".yaml"

// FileStore keeps each document in its own YAML file under a root
// directory. It holds no state of its own and is safe for concurrent use
// across documents.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root. The directory is
// created on the first Save.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

// path maps a document id to its file; ids are escaped so paths and URLs
// work as ids.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, url.PathEscape(id)+ext)
}

// Load reads the state of document id.
func (s *FileStore) Load(_ context.Context, id string) (kernel.DocumentState, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return kernel.DocumentState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return kernel.DocumentState{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	return decode(id, data)
}

// Save writes the state of document id, replacing any previous state.
func (s *FileStore) Save(_ context.Context, id string, state kernel.DocumentState) error {
	data, err := encode(id, state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}

	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}
	return nil
}

// Delete removes the state of document id. Missing state is ignored.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete failed: %s: %w", id, err)
	}
	return nil
}

// List returns the ids of documents with saved state, sorted.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
