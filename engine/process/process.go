// Package process drives a language runtime running as a child process.
// The two sides exchange newline-delimited JSON: the host writes a Request
// per line to the child's stdin and reads one Response per request from its
// stdout. Interrupts are delivered as SIGINT. Serve implements the runtime
// side for any engine.Engine.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/interchange"
)

// Driver is the name process registers under.
const Driver = "process"

// Spec options with this prefix are added to the child's environment.
const envPrefix = "env."

// ErrNoCommand is returned when a spec has no command to run.
var ErrNoCommand = errors.New("kernel spec has no command")

func init() {
	if err := engine.Register(Driver, New); err != nil {
		panic(err)
	}
}

// Engine is the host side of a runtime process.
type Engine struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Response

	exited  chan struct{}
	exitErr error
}

// New starts spec.Command and returns once the process is running.
// Satisfies engine.Factory.
func New(ctx context.Context, spec catalog.Spec) (engine.Engine, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCommand, spec.Name)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Env = append(os.Environ(), environ(spec.Options)...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command[0], err)
	}

	e := &Engine{
		cmd:     cmd,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		pending: make(map[uint64]chan Response),
		exited:  make(chan struct{}),
	}
	go e.read(stdout)
	return e, nil
}

func environ(options map[string]string) []string {
	var env []string
	for key, value := range options {
		if name, ok := strings.CutPrefix(key, envPrefix); ok && name != "" {
			env = append(env, name+"="+value)
		}
	}
	sort.Strings(env)
	return env
}

// read delivers responses to their waiting callers until the process
// closes stdout, then reaps it.
func (e *Engine) read(stdout io.Reader) {
	dec := json.NewDecoder(stdout)
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			break
		}

		e.mu.Lock()
		ch, ok := e.pending[resp.ID]
		delete(e.pending, resp.ID)
		e.mu.Unlock()

		// Responses to abandoned requests are dropped.
		if ok {
			ch <- resp
		}
	}

	e.exitErr = e.cmd.Wait()
	close(e.exited)
}

func (e *Engine) call(ctx context.Context, req Request) (Response, error) {
	select {
	case <-e.exited:
		return Response{}, e.crashed()
	default:
	}

	ch := make(chan Response, 1)

	e.mu.Lock()
	e.nextID++
	req.ID = e.nextID
	e.pending[req.ID] = ch
	err := e.enc.Encode(req)
	e.mu.Unlock()

	if err != nil {
		e.forget(req.ID)
		return Response{}, fmt.Errorf("%w: write request: %v", engine.ErrCrashed, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-e.exited:
		select {
		case resp := <-ch:
			return resp, nil
		default:
			return Response{}, e.crashed()
		}
	case <-ctx.Done():
		e.forget(req.ID)
		return Response{}, ctx.Err()
	}
}

func (e *Engine) forget(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, id)
}

func (e *Engine) crashed() error {
	if e.exitErr != nil {
		return fmt.Errorf("%w: %v", engine.ErrCrashed, e.exitErr)
	}
	return fmt.Errorf("%w: process exited", engine.ErrCrashed)
}

func (e *Engine) Execute(ctx context.Context, code string) (engine.Reply, error) {
	resp, err := e.call(ctx, Request{Op: OpExecute, Code: code})
	if err != nil {
		return engine.Reply{}, err
	}
	if err := statusErr(resp); err != nil {
		return engine.Reply{Outputs: resp.Outputs}, err
	}

	reply := engine.Reply{Outputs: resp.Outputs}
	if resp.Error != nil {
		reply.Error = &engine.Error{
			Name:      resp.Error.Name,
			Value:     resp.Error.Value,
			Traceback: resp.Error.Traceback,
		}
	}
	return reply, nil
}

func (e *Engine) Get(ctx context.Context, name string) (interchange.Value, error) {
	resp, err := e.call(ctx, Request{Op: OpGet, Name: name})
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}

	v, err := interchange.Unmarshal(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return v, nil
}

func (e *Engine) Set(ctx context.Context, name string, value interchange.Value) error {
	data, err := interchange.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}

	resp, err := e.call(ctx, Request{Op: OpSet, Name: name, Value: data})
	if err != nil {
		return err
	}
	if err := statusErr(resp); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func (e *Engine) Names(ctx context.Context) ([]string, error) {
	resp, err := e.call(ctx, Request{Op: OpNames})
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// Interrupt sends SIGINT to the process.
func (e *Engine) Interrupt() error {
	select {
	case <-e.exited:
		return e.crashed()
	default:
	}
	if err := e.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrCrashed, err)
	}
	return nil
}

// Shutdown asks the process to exit and kills it if ctx ends first.
func (e *Engine) Shutdown(ctx context.Context) error {
	_, _ = e.call(ctx, Request{Op: OpShutdown})
	_ = e.stdin.Close()

	select {
	case <-e.exited:
		return nil
	case <-ctx.Done():
		_ = e.cmd.Process.Kill()
		<-e.exited
		return ctx.Err()
	}
}

func statusErr(resp Response) error {
	switch resp.Status {
	case StatusOK, "":
		return nil
	case StatusUndefined:
		return engine.ErrUndefined
	case StatusUnsupported:
		return fmt.Errorf("%w: %s", engine.ErrUnsupported, resp.Message)
	case StatusCrashed:
		return fmt.Errorf("%w: %s", engine.ErrCrashed, resp.Message)
	default:
		return fmt.Errorf("runtime: %s", resp.Message)
	}
}
