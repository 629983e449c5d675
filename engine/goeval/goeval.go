// Package goeval is an in-process Go engine backed by the yaegi
// interpreter. Top-level statements and declarations accumulate in one
// interpreter, so a document's Go cells share a namespace the way a REPL
// does.
package goeval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/protocol"
	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/interchange"
)

// Driver is the name goeval registers under.
const Driver = "goeval"

// Preloaded imports, unless the spec's "imports" option overrides them
// with a comma separated list.
var defaultImports = []string{"fmt", "math", "strings"}

func init() {
	if err := engine.Register(Driver, New); err != nil {
		panic(err)
	}
}

// Engine runs Go source through a yaegi interpreter.
type Engine struct {
	run    sync.Mutex
	interp *interp.Interpreter
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// New starts an interpreter for spec. Satisfies engine.Factory.
func New(ctx context.Context, spec catalog.Spec) (engine.Engine, error) {
	e := &Engine{
		stdout: new(bytes.Buffer),
		stderr: new(bytes.Buffer),
	}
	e.interp = interp.New(interp.Options{Stdout: e.stdout, Stderr: e.stderr})

	if err := e.interp.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}

	imports := defaultImports
	if opt, ok := spec.Options["imports"]; ok {
		imports = splitList(opt)
	}
	if len(imports) > 0 {
		src := "import (\n\t" + quoteAll(imports) + "\n)"
		if _, err := e.interp.EvalWithContext(ctx, src); err != nil {
			return nil, fmt.Errorf("preload imports: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) Execute(ctx context.Context, code string) (engine.Reply, error) {
	e.run.Lock()
	defer e.run.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.begin(cancel); err != nil {
		return engine.Reply{}, err
	}
	defer e.end()

	e.stdout.Reset()
	e.stderr.Reset()
	result, err := e.interp.EvalWithContext(runCtx, code)

	var reply engine.Reply
	if e.stdout.Len() > 0 {
		reply.Outputs = append(reply.Outputs, protocol.NewStream("stdout", e.stdout.String()))
	}
	if e.stderr.Len() > 0 {
		reply.Outputs = append(reply.Outputs, protocol.NewStream("stderr", e.stderr.String()))
	}

	if err != nil {
		if runCtx.Err() != nil {
			return reply, runCtx.Err()
		}
		reply.Error = userError(err)
		reply.Outputs = append(reply.Outputs, reply.Error.Output())
		return reply, nil
	}

	if text, ok := display(result); ok {
		reply.Outputs = append(reply.Outputs, protocol.NewResult(text))
	}
	return reply, nil
}

func (e *Engine) begin(cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrCrashed
	}
	e.cancel = cancel
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = nil
}

func (e *Engine) Get(ctx context.Context, name string) (interchange.Value, error) {
	e.run.Lock()
	defer e.run.Unlock()

	v, ok := e.interp.Globals()[name]
	if !ok || !v.IsValid() || v.Kind() == reflect.Func {
		return nil, fmt.Errorf("%w: %s", engine.ErrUndefined, name)
	}
	if !v.CanInterface() {
		return interchange.Opaque{Type: v.Type().String()}, nil
	}
	return interchange.FromGo(v.Interface())
}

func (e *Engine) Set(ctx context.Context, name string, value interchange.Value) error {
	lit, err := literal(value)
	if err != nil {
		return err
	}

	e.run.Lock()
	defer e.run.Unlock()

	if _, declErr := e.interp.EvalWithContext(ctx, fmt.Sprintf("var %s = %s", name, lit)); declErr == nil {
		return nil
	}
	if _, err := e.interp.EvalWithContext(ctx, fmt.Sprintf("%s = %s", name, lit)); err != nil {
		return fmt.Errorf("%w: bind %s: %v", engine.ErrUnsupported, name, err)
	}
	return nil
}

func (e *Engine) Names(ctx context.Context) ([]string, error) {
	e.run.Lock()
	defer e.run.Unlock()

	globals := e.interp.Globals()
	names := make([]string, 0, len(globals))
	for name, v := range globals {
		if v.IsValid() && v.Kind() == reflect.Func {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) Interrupt() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.closed = true
	return nil
}

func userError(err error) *engine.Error {
	var p interp.Panic
	if errors.As(err, &p) {
		return &engine.Error{Name: "panic", Value: fmt.Sprint(p.Value)}
	}
	return &engine.Error{Name: "Error", Value: err.Error()}
}

func display(v reflect.Value) (string, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return "", false
	}
	if v.Kind() == reflect.Func {
		return "", false
	}
	return fmt.Sprint(v.Interface()), true
}

// literal renders value as Go source that yaegi can evaluate.
func literal(value interchange.Value) (string, error) {
	switch v := value.(type) {
	case interchange.Null:
		return "interface{}(nil)", nil
	case interchange.Number:
		return "float64(" + number(float64(v)) + ")", nil
	case interchange.String:
		return strconv.Quote(string(v)), nil
	case interchange.Bool:
		return strconv.FormatBool(bool(v)), nil
	case interchange.Vector:
		elem := "interface{}"
		if kind, ok := v.ElemKind(); ok {
			switch kind {
			case interchange.KindNumber:
				elem = "float64"
			case interchange.KindString:
				elem = "string"
			case interchange.KindBool:
				elem = "bool"
			}
		}
		items := make([]string, len(v))
		for i, item := range v {
			lit, err := literal(item)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			if elem == "float64" {
				lit = number(float64(item.(interchange.Number)))
			}
			items[i] = lit
		}
		return "[]" + elem + "{" + strings.Join(items, ", ") + "}", nil
	default:
		return "", fmt.Errorf("%w: %s", engine.ErrUnsupported, value.Kind())
	}
}

// number needs math to be imported for NaN and infinities.
func number(f float64) string {
	switch {
	case math.IsNaN(f):
		return "math.NaN()"
	case math.IsInf(f, 1):
		return "math.Inf(1)"
	case math.IsInf(f, -1):
		return "math.Inf(-1)"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return strings.Join(quoted, "\n\t")
}
