package statestore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/polyglot/kernel"
	"github.com/tailored-agentic-units/polyglot/statestore"
)

var (
	_ statestore.Store = (*statestore.FileStore)(nil)
	_ statestore.Store = (*statestore.SQLiteStore)(nil)
)

func openSQLite(t *testing.T, path string) *statestore.SQLiteStore {
	t.Helper()
	store, err := statestore.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, filepath.Join(t.TempDir(), "state", "polyglot.db"))

	want := kernel.DocumentState{
		Active:  "Python3",
		History: map[string][]string{"R": {"x <- 1"}, "Python3": {"len(x)", "x"}},
	}
	if err := store.Save(ctx, "nb.ipynb", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, "nb.ipynb", want); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Load(ctx, "nb.ipynb")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "polyglot.db")

	first, err := statestore.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := first.Save(ctx, "doc", kernel.DocumentState{Active: "R"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := openSQLite(t, path).Load(ctx, "doc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Active != "R" {
		t.Errorf("Active = %q, want %q", got.Active, "R")
	}
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "polyglot.db"))

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, filepath.Join(t.TempDir(), "polyglot.db"))

	for _, id := range []string{"c", "a", "b"} {
		if err := store.Save(ctx, id, kernel.DocumentState{}); err != nil {
			t.Fatalf("Save(%q) error = %v", id, err)
		}
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Errorf("Delete() of missing state error = %v, want nil", err)
	}
	if _, err := store.Load(ctx, "b"); !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want ErrNotFound", err)
	}
}
