package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/session"
)

func TestRegistry_GetOrCreate_Idempotent(t *testing.T) {
	reg, driver := newRegistry(t)
	ctx := context.Background()

	first, err := reg.GetOrCreate(ctx, "R")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	second, err := reg.GetOrCreate(ctx, "ir")
	if err != nil {
		t.Fatalf("GetOrCreate by kernel name failed: %v", err)
	}

	if first != second {
		t.Error("same kernel should return the same session")
	}
	if first.ID() == "" {
		t.Error("session ID is empty")
	}
	if n := driver.Starts("R"); n != 1 {
		t.Errorf("got %d starts, want 1", n)
	}
}

func TestRegistry_GetOrCreate_Concurrent(t *testing.T) {
	reg, driver := newRegistry(t)
	ctx := context.Background()
	release := driver.Hold()

	const callers = 8
	var wg sync.WaitGroup
	sessions := make([]*session.Session, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := reg.GetOrCreate(ctx, "Python3")
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			sessions[i] = s
		}()
	}

	release()
	wg.Wait()

	for i, s := range sessions {
		if s != sessions[0] {
			t.Errorf("caller %d got a different session", i)
		}
	}
	if n := driver.Starts("Python3"); n != 1 {
		t.Errorf("got %d starts, want 1", n)
	}
}

func TestRegistry_GetOrCreate_Unknown(t *testing.T) {
	reg, _ := newRegistry(t)

	_, err := reg.GetOrCreate(context.Background(), "Pyhton3")
	if !errors.Is(err, catalog.ErrUnknownKernel) {
		t.Fatalf("got %v, want ErrUnknownKernel", err)
	}
	if !strings.Contains(err.Error(), "did you mean Python3?") {
		t.Errorf("got %q, want a suggestion", err.Error())
	}
}

func TestRegistry_GetOrCreate_StartFailure(t *testing.T) {
	rec := &recorder{}
	reg, driver := newRegistry(t, session.WithStatusFunc(rec.record))
	driver.FailStart("R", errors.New("R is not installed"))

	_, err := reg.GetOrCreate(context.Background(), "R")
	if !errors.Is(err, session.ErrKernelUnavailable) {
		t.Errorf("got %v, want ErrKernelUnavailable", err)
	}
	if _, ok := reg.Get("R"); ok {
		t.Error("failed start should not register a session")
	}

	got := rec.statuses("R")
	if len(got) != 2 || got[1] != session.StatusCrashed {
		t.Errorf("got transitions %v, want [starting crashed]", got)
	}
}

func TestRegistry_SetActive(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	if _, ok := reg.Active(); ok {
		t.Error("new registry should have no active session")
	}

	if _, err := reg.SetActive(ctx, "R", false); !errors.Is(err, catalog.ErrUnknownKernel) {
		t.Errorf("got %v, want ErrUnknownKernel without create", err)
	}

	r, err := reg.SetActive(ctx, "R", true)
	if err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	py, err := reg.SetActive(ctx, "py", true)
	if err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	active, ok := reg.Active()
	if !ok || active != py {
		t.Errorf("got active %v, want Python3", active)
	}
	if active.Color() != "#FFD91A" {
		t.Errorf("got color %q, want %q", active.Color(), "#FFD91A")
	}

	if _, err := reg.SetActive(ctx, "R", false); err != nil {
		t.Fatalf("SetActive existing failed: %v", err)
	}
	if active, _ := reg.Active(); active != r {
		t.Error("switching back should reuse the R session")
	}
	if py.Status() != session.StatusReady {
		t.Errorf("switching should not affect other sessions, got %s", py.Status())
	}
}

func TestRegistry_List(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	for _, tag := range []string{"R", "Python3"} {
		if _, err := reg.GetOrCreate(ctx, tag); err != nil {
			t.Fatalf("GetOrCreate(%s) failed: %v", tag, err)
		}
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("got %d sessions, want 2", len(list))
	}
	if list[0].Kernel() != "Python3" || list[1].Kernel() != "R" {
		t.Errorf("got %s, %s; want sorted by kernel", list[0].Kernel(), list[1].Kernel())
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg, driver := newRegistry(t)
	ctx := context.Background()

	s, err := reg.SetActive(ctx, "R", true)
	if err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	removed, err := reg.Remove(ctx, "R")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed != s {
		t.Error("Remove should return the removed session")
	}
	if _, ok := reg.Active(); ok {
		t.Error("removing the active session should clear the active pointer")
	}
	if !driver.Engine("R").IsShutdown() {
		t.Error("engine should be shut down")
	}
	if s.Status() != session.StatusShuttingDown {
		t.Errorf("got status %s, want shutting_down", s.Status())
	}

	if _, err := reg.Remove(ctx, "R"); !errors.Is(err, catalog.ErrUnknownKernel) {
		t.Errorf("got %v, want ErrUnknownKernel for a second remove", err)
	}
}

func TestRegistry_Remove_Busy(t *testing.T) {
	reg, driver := newRegistry(t)
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "R")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	eng := driver.Engine("R")

	done := make(chan error, 1)
	go func() {
		_, err := s.Execute(ctx, "block()")
		done <- err
	}()
	<-eng.Blocked()

	if _, err := reg.Remove(ctx, "R"); !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("got %v, want ErrSessionBusy", err)
	}

	eng.Release()
	<-done

	if _, err := reg.Remove(ctx, "R"); err != nil {
		t.Errorf("Remove after execution failed: %v", err)
	}
}

func TestRegistry_Remove_RacingExecute(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		s, err := reg.GetOrCreate(ctx, "R")
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}

		done := make(chan error, 1)
		go func() {
			_, err := s.Execute(ctx, "x <- 1")
			done <- err
		}()

		_, removeErr := reg.Remove(ctx, "R")
		execErr := <-done

		if errors.Is(execErr, session.ErrCancelled) {
			t.Fatalf("iteration %d: execution began after the busy check and was cancelled by Remove", i)
		}
		if execErr != nil && !errors.Is(execErr, session.ErrKernelUnavailable) {
			t.Fatalf("iteration %d: unexpected Execute error: %v", i, execErr)
		}
		switch {
		case removeErr == nil:
		case errors.Is(removeErr, session.ErrSessionBusy):
			if _, err := reg.Remove(ctx, "R"); err != nil {
				t.Fatalf("iteration %d: Remove after execution failed: %v", i, err)
			}
		default:
			t.Fatalf("iteration %d: unexpected Remove error: %v", i, removeErr)
		}

		if _, err := s.Execute(ctx, "x <- 1"); !errors.Is(err, session.ErrKernelUnavailable) {
			t.Fatalf("iteration %d: got %v, want ErrKernelUnavailable after Remove", i, err)
		}
	}
}

func TestRegistry_CrashRemoveRecreate(t *testing.T) {
	reg, driver := newRegistry(t)
	ctx := context.Background()

	crashed, err := reg.GetOrCreate(ctx, "R")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	_, _ = crashed.Execute(ctx, "crash()")

	if _, err := reg.Remove(ctx, "R"); err != nil {
		t.Fatalf("Remove crashed session failed: %v", err)
	}

	fresh, err := reg.GetOrCreate(ctx, "R")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if fresh == crashed || fresh.ID() == crashed.ID() {
		t.Error("recreated session should be new")
	}
	if fresh.Status() != session.StatusReady {
		t.Errorf("got status %s, want ready", fresh.Status())
	}
	if n := driver.Starts("R"); n != 2 {
		t.Errorf("got %d starts, want 2", n)
	}
}

func TestRegistry_Close(t *testing.T) {
	reg, d := newRegistry(t)
	ctx := context.Background()

	for _, tag := range []string{"R", "Python3"} {
		if _, err := reg.GetOrCreate(ctx, tag); err != nil {
			t.Fatalf("GetOrCreate(%s) failed: %v", tag, err)
		}
	}

	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, name := range []string{"R", "Python3"} {
		if !d.Engine(name).IsShutdown() {
			t.Errorf("engine %s not shut down", name)
		}
	}
	if len(reg.List()) != 0 {
		t.Error("closed registry should have no sessions")
	}
	if _, err := reg.GetOrCreate(ctx, "R"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
