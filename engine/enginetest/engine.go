// Package enginetest provides a scripted Engine for tests. It understands
// just enough of an R/Python-flavoured syntax to drive the core:
//
//	x <- 1             assignment (also x = 1)
//	rn <- rnorm(5)     numeric vector of length 5
//	v <- c(1, 2, 3)    vector literal (also [1, 2, 3])
//	v[2] <- 9          in-place element update (1-based)
//	len(x)             length as execute_result (also length(x))
//	x / print(x)       value as execute_result
//	cat("text")        stdout stream
//	fail("msg")        raises a RuntimeError
//	crash()            kills the engine
//	block()            waits until interrupted or released
package enginetest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/polyglot/core/protocol"
	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/interchange"
)

var (
	assignRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\s*(?:<-|=)\s*(.+)$`)
	indexRe  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\[(\d+)\]\s*(?:<-|=)\s*(.+)$`)
	callRe   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\((.*)\)$`)
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

// Engine is an in-memory scripted engine. The zero value is not usable;
// call New.
type Engine struct {
	mu               sync.Mutex
	vars             map[string]interchange.Value
	executed         []string
	crashed          bool
	shutdown         bool
	interrupts       int
	crashOnInterrupt bool

	blocked chan struct{}
	release chan struct{}
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		vars:    make(map[string]interchange.Value),
		blocked: make(chan struct{}, 16),
		release: make(chan struct{}, 16),
	}
}

// CrashOnInterrupt makes the next Interrupt unrecoverable.
func (e *Engine) CrashOnInterrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.crashOnInterrupt = true
}

// Blocked receives once each time a block() statement starts waiting.
func (e *Engine) Blocked() <-chan struct{} {
	return e.blocked
}

// Release lets one pending block() statement return normally.
func (e *Engine) Release() {
	e.release <- struct{}{}
}

// Executed returns the code passed to Execute, in order.
func (e *Engine) Executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

// Interrupts returns how many times Interrupt was called.
func (e *Engine) Interrupts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupts
}

// IsShutdown reports whether Shutdown was called.
func (e *Engine) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

func (e *Engine) Execute(ctx context.Context, code string) (engine.Reply, error) {
	e.mu.Lock()
	if e.crashed {
		e.mu.Unlock()
		return engine.Reply{}, engine.ErrCrashed
	}
	e.executed = append(e.executed, code)
	e.mu.Unlock()

	var reply engine.Reply
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch line {
		case "crash()":
			e.mu.Lock()
			e.crashed = true
			e.mu.Unlock()
			return reply, engine.ErrCrashed
		case "block()":
			if err := e.wait(ctx); err != nil {
				return reply, err
			}
			continue
		}

		out, execErr := e.statement(line)
		if execErr != nil {
			reply.Error = execErr
			reply.Outputs = append(reply.Outputs, execErr.Output())
			return reply, nil
		}
		if out != nil {
			reply.Outputs = append(reply.Outputs, *out)
		}
	}
	return reply, nil
}

func (e *Engine) wait(ctx context.Context) error {
	e.blocked <- struct{}{}
	select {
	case <-e.release:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		crashed := e.crashed
		e.mu.Unlock()
		if crashed {
			return fmt.Errorf("%w: %v", engine.ErrCrashed, ctx.Err())
		}
		return ctx.Err()
	}
}

func (e *Engine) statement(line string) (*protocol.Output, *engine.Error) {
	if m := indexRe.FindStringSubmatch(line); m != nil {
		return nil, e.assignIndex(m[1], m[2], m[3])
	}
	if m := assignRe.FindStringSubmatch(line); m != nil {
		v, err := e.eval(m[2])
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.vars[m[1]] = v
		e.mu.Unlock()
		return nil, nil
	}
	if m := callRe.FindStringSubmatch(line); m != nil {
		switch m[1] {
		case "cat":
			v, err := e.eval(m[2])
			if err != nil {
				return nil, err
			}
			out := protocol.NewStream("stdout", format(v))
			return &out, nil
		case "fail":
			v, _ := e.eval(m[2])
			return nil, &engine.Error{Name: "RuntimeError", Value: format(v)}
		case "print":
			line = m[2]
		}
	}

	v, err := e.eval(line)
	if err != nil {
		return nil, err
	}
	out := protocol.NewResult(format(v))
	return &out, nil
}

func (e *Engine) assignIndex(name, index, expr string) *engine.Error {
	i, _ := strconv.Atoi(index)
	v, err := e.eval(expr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	vec, ok := e.vars[name].(interchange.Vector)
	if !ok || i < 1 || i > len(vec) {
		return &engine.Error{Name: "IndexError", Value: fmt.Sprintf("%s[%d] out of range", name, i)}
	}
	vec[i-1] = v
	return nil
}

func (e *Engine) eval(expr string) (interchange.Value, *engine.Error) {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "TRUE", "True", "true":
		return interchange.Bool(true), nil
	case "FALSE", "False", "false":
		return interchange.Bool(false), nil
	case "NULL", "None", "nil":
		return interchange.Null{}, nil
	}

	if n, err := strconv.ParseFloat(expr, 64); err == nil {
		return interchange.Number(n), nil
	}
	if s, err := strconv.Unquote(expr); err == nil {
		return interchange.String(s), nil
	}
	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		return e.list(expr[1 : len(expr)-1])
	}

	if m := callRe.FindStringSubmatch(expr); m != nil {
		switch m[1] {
		case "c", "list":
			return e.list(m[2])
		case "rnorm":
			n, err := strconv.Atoi(strings.TrimSpace(m[2]))
			if err != nil || n < 0 {
				return nil, &engine.Error{Name: "ValueError", Value: "invalid length " + m[2]}
			}
			vec := make(interchange.Vector, n)
			for i := range vec {
				vec[i] = interchange.Number(float64(i+1) / 10)
			}
			return vec, nil
		case "len", "length":
			v, err := e.eval(m[2])
			if err != nil {
				return nil, err
			}
			return interchange.Number(length(v)), nil
		}
		return nil, &engine.Error{Name: "NameError", Value: "unknown function " + m[1]}
	}

	if identRe.MatchString(expr) {
		e.mu.Lock()
		v, ok := e.vars[expr]
		e.mu.Unlock()
		if !ok {
			return nil, &engine.Error{Name: "NameError", Value: fmt.Sprintf("name '%s' is not defined", expr)}
		}
		return v, nil
	}

	return nil, &engine.Error{Name: "SyntaxError", Value: expr}
}

func (e *Engine) list(body string) (interchange.Value, *engine.Error) {
	vec := interchange.Vector{}
	if strings.TrimSpace(body) == "" {
		return vec, nil
	}
	for _, item := range strings.Split(body, ",") {
		v, err := e.eval(item)
		if err != nil {
			return nil, err
		}
		vec = append(vec, v)
	}
	return vec, nil
}

func length(v interchange.Value) int {
	switch x := v.(type) {
	case interchange.Vector:
		return len(x)
	case interchange.Table:
		return len(x.Columns)
	case interchange.Null:
		return 0
	default:
		return 1
	}
}

func format(v interchange.Value) string {
	switch x := v.(type) {
	case interchange.Number:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case interchange.String:
		return string(x)
	case interchange.Bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case interchange.Vector:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = format(item)
		}
		return strings.Join(parts, " ")
	case interchange.Null:
		return "NULL"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (e *Engine) Get(ctx context.Context, name string) (interchange.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.crashed {
		return nil, engine.ErrCrashed
	}
	v, ok := e.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUndefined, name)
	}
	return interchange.Clone(v), nil
}

func (e *Engine) Set(ctx context.Context, name string, value interchange.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.crashed {
		return engine.ErrCrashed
	}
	e.vars[name] = interchange.Clone(value)
	return nil
}

func (e *Engine) Names(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) Interrupt() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.interrupts++
	if e.crashOnInterrupt {
		e.crashed = true
		return engine.ErrCrashed
	}
	return nil
}

func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}
