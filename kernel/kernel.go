// Package kernel routes the statements of interactive documents to
// language sessions. A statement's directive header is parsed, the target
// session is resolved and activated, variables are bridged in, the
// residual code runs, and the outputs come back tagged with the color of
// the kernel that produced them.
//
//	k, err := kernel.New(&cfg)
//	doc, err := k.NewDocument()
//	res := k.Submit(ctx, doc, kernel.Request{Code: "%use R\nrn <- rnorm(5)"})
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/polyglot/bridge"
	"github.com/tailored-agentic-units/polyglot/broadcast"
	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/config"
	"github.com/tailored-agentic-units/polyglot/core/protocol"
	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/history"
	"github.com/tailored-agentic-units/polyglot/interchange"
	"github.com/tailored-agentic-units/polyglot/magic"
	"github.com/tailored-agentic-units/polyglot/observability"
	"github.com/tailored-agentic-units/polyglot/session"
)

// Context tells the router where a statement came from.
type Context int

const (
	ContextCell Context = iota
	ContextConsole
)

// Request is one submitted cell or console statement. Kernel is the
// cell's declared kernel; empty means the document's active kernel.
type Request struct {
	Code    string
	Kernel  string
	Context Context
}

// Result holds the outcome of a submission. Kernel, SessionID and Color
// describe the session that ran the code and are empty when no session
// was resolved.
type Result struct {
	Outputs   []protocol.Output
	Err       error
	Kernel    string
	SessionID string
	Color     catalog.Color
	Cleared   bool
}

func (r *Result) tag(s *session.Session) {
	r.Kernel = s.Kernel()
	r.SessionID = s.ID()
	r.Color = s.Color()
}

// Reply converts the result to the host's execute reply. Router failures
// gain an error output so hosts that only render outputs still show them.
func (r *Result) Reply() protocol.ExecuteReply {
	reply := protocol.ExecuteReply{
		Status:       protocol.StatusOK,
		Kernel:       r.Kernel,
		SessionID:    r.SessionID,
		DisplayColor: string(r.Color),
		Outputs:      r.Outputs,
		Cleared:      r.Cleared,
	}
	if r.Err == nil {
		return reply
	}

	reply.Status = protocol.StatusError
	reply.ErrorName = ErrorName(r.Err)
	var userErr *engine.Error
	if errors.As(r.Err, &userErr) {
		reply.ErrorValue = userErr.Value
		return reply
	}
	reply.ErrorValue = r.Err.Error()
	reply.Outputs = append(append([]protocol.Output(nil), r.Outputs...), protocol.Output{
		Type: protocol.OutputError,
		Name: reply.ErrorName,
		Text: reply.ErrorName + ": " + reply.ErrorValue,
	})
	return reply
}

// Option configures a Kernel after config-driven initialization.
type Option func(*Kernel)

// WithObserver overrides the configured observer.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithStarter overrides engine.Start as the way sessions start engines.
func WithStarter(start engine.Factory) Option {
	return func(k *Kernel) { k.start = start }
}

// WithBridge overrides the default variable bridge.
func WithBridge(b *bridge.Bridge) Option {
	return func(k *Kernel) { k.bridge = b }
}

// Kernel owns the documents of one host and routes their submissions.
type Kernel struct {
	catalog       *catalog.Catalog
	start         engine.Factory
	bridge        *bridge.Bridge
	observer      observability.Observer
	status        *broadcast.Hub[protocol.StatusMessage]
	sessionCfg    session.Config
	defaultKernel string
	timeout       config.Duration
	statusBuffer  int

	mu        sync.Mutex
	documents map[string]*Document
	closed    bool
}

// New creates a Kernel from configuration. Functional options applied
// after initialization can override any subsystem for testing.
func New(cfg *Config, opts ...Option) (*Kernel, error) {
	cat, err := catalog.New(cfg.Kernels...)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}
	if cfg.DefaultKernel != "" {
		if _, err := cat.Resolve(cfg.DefaultKernel); err != nil {
			return nil, fmt.Errorf("invalid default kernel: %w", err)
		}
	}

	name := cfg.Observer
	if name == "" {
		name = defaultObserver
	}
	observer, err := observability.Resolve(name)
	if err != nil {
		observer = observability.NewSlogObserver(slog.Default())
		observer.OnEvent(context.Background(), observability.Event{
			Type:      EventError,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "kernel.New",
			Data:      map[string]any{"error": err.Error()},
		})
	}

	buffer := cfg.StatusBuffer
	if buffer <= 0 {
		buffer = defaultStatusBuffer
	}

	k := &Kernel{
		catalog:       cat,
		start:         engine.Start,
		bridge:        bridge.New(nil),
		observer:      observer,
		status:        broadcast.New[protocol.StatusMessage](),
		sessionCfg:    cfg.Session,
		defaultKernel: cfg.DefaultKernel,
		timeout:       cfg.Timeout,
		statusBuffer:  buffer,
		documents:     make(map[string]*Document),
	}

	for _, opt := range opts {
		opt(k)
	}

	return k, nil
}

// Catalog returns the kernel catalog.
func (k *Kernel) Catalog() *catalog.Catalog {
	return k.catalog
}

// Reload merges the kernel list of cfg into the catalog. Live sessions
// keep the spec they were started with.
func (k *Kernel) Reload(cfg *Config) error {
	if err := k.catalog.Update(cfg.Kernels...); err != nil {
		return fmt.Errorf("failed to update catalog: %w", err)
	}
	k.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventCatalogUpdate,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "kernel.Reload",
		Data:      map[string]any{"kernels": len(cfg.Kernels)},
	})
	return nil
}

// Document returns the document with id, creating it on first use. An
// empty id creates a document with a fresh UUIDv7 id.
func (k *Kernel) Document(id string) (*Document, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, ErrClosed
	}
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	if doc, ok := k.documents[id]; ok {
		return doc, nil
	}

	doc := &Document{id: id, history: history.New()}
	doc.registry = session.NewRegistry(&k.sessionCfg, k.catalog, k.start,
		session.WithStatusFunc(func(t session.Transition) { k.onStatus(doc, t) }),
	)
	k.documents[id] = doc
	return doc, nil
}

// NewDocument creates a document with a fresh id.
func (k *Kernel) NewDocument() (*Document, error) {
	return k.Document("")
}

// Documents returns the ids of the open documents, sorted.
func (k *Kernel) Documents() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	ids := make([]string, 0, len(k.documents))
	for id := range k.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseDocument shuts down the sessions of a document and forgets it.
func (k *Kernel) CloseDocument(ctx context.Context, id string) error {
	k.mu.Lock()
	doc, ok := k.documents[id]
	delete(k.documents, id)
	k.mu.Unlock()

	if !ok {
		return nil
	}
	return doc.registry.Close(ctx)
}

// Close shuts down every document and ends all status subscriptions.
func (k *Kernel) Close(ctx context.Context) error {
	k.mu.Lock()
	k.closed = true
	docs := make([]*Document, 0, len(k.documents))
	for _, doc := range k.documents {
		docs = append(docs, doc)
	}
	k.documents = make(map[string]*Document)
	k.mu.Unlock()

	var errs []error
	for _, doc := range docs {
		if err := doc.registry.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", doc.id, err))
		}
	}
	k.status.Close()
	return errors.Join(errs...)
}

// Submit runs one statement in doc. Failures are reported in Result.Err;
// directive effects applied before a failure persist.
func (k *Kernel) Submit(ctx context.Context, doc *Document, req Request) *Result {
	started := time.Now()
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventSubmitStart,
		Level:     observability.LevelVerbose,
		Timestamp: started,
		Source:    "kernel.Submit",
		Data: map[string]any{
			"document":    doc.id,
			"kernel":      req.Kernel,
			"code_length": len(req.Code),
			"console":     req.Context == ContextConsole,
		},
	})

	res := k.submit(ctx, doc, req)

	if res.Err != nil {
		k.observer.OnEvent(ctx, observability.Event{
			Type:      EventError,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "kernel.Submit",
			Data: map[string]any{
				"document": doc.id,
				"kernel":   res.Kernel,
				"ename":    ErrorName(res.Err),
				"error":    res.Err.Error(),
			},
		})
		return res
	}

	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventSubmitComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "kernel.Submit",
		Data: map[string]any{
			"document":   doc.id,
			"kernel":     res.Kernel,
			"session_id": res.SessionID,
			"outputs":    len(res.Outputs),
			"cleared":    res.Cleared,
			"duration":   time.Since(started).String(),
		},
	})
	return res
}

func (k *Kernel) submit(ctx context.Context, doc *Document, req Request) *Result {
	res := &Result{}

	directives, code, err := magic.Parse(req.Code)
	if err != nil {
		res.Err = err
		return res
	}

	for _, d := range directives {
		if _, ok := d.(magic.ClearHistory); ok {
			doc.history.Clear()
			doc.clearPending()
			res.Cleared = true
			k.observer.OnEvent(ctx, observability.Event{
				Type:      EventHistoryClear,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    "kernel.Submit",
				Data:      map[string]any{"document": doc.id},
			})
			return res
		}
	}

	p, err := k.prepare(ctx, doc, req.Kernel, directives)
	if p.target != nil {
		res.tag(p.target)
	}
	if err == nil && strings.TrimSpace(code) != "" {
		err = k.execute(ctx, p.target, code, res)
	}
	// A busy session never saw the statement.
	if p.target != nil && req.Context == ContextConsole && !errors.Is(err, session.ErrSessionBusy) {
		if text := strings.TrimSpace(req.Code); text != "" {
			doc.history.Append(p.target.ID(), text)
		}
	}
	if err != nil {
		res.Err = err
		return res
	}

	if err := k.finish(ctx, doc, p, res); err != nil {
		res.Err = err
	}
	return res
}

// plan is the routing decided by the directive phase.
type plan struct {
	// origin is the active session once directives are applied.
	origin *session.Session
	// target runs the code; it differs from origin only under %with.
	target *session.Session

	with       *magic.With
	puts       []magic.PutVariable
	preview    bool
	previewAll bool
	previews   []string
}

func (k *Kernel) prepare(ctx context.Context, doc *Document, declared string, directives []magic.Directive) (*plan, error) {
	doc.mu.Lock()
	defer doc.mu.Unlock()

	p := &plan{}
	var (
		gets   []magic.GetVariable
		hasUse bool
	)
	for _, d := range directives {
		switch d := d.(type) {
		case magic.UseKernel:
			hasUse = true
		case magic.GetVariable:
			gets = append(gets, d)
		case magic.PutVariable:
			p.puts = append(p.puts, d)
		case magic.Preview:
			p.preview = true
			if len(d.Names) == 0 {
				p.previewAll = true
			}
			p.previews = append(p.previews, d.Names...)
		case magic.With:
			p.with = &d
		}
	}

	active, err := k.resolve(ctx, doc, declared, hasUse)
	if err != nil {
		return p, err
	}
	p.origin, p.target = active, active

	for _, d := range directives {
		use, ok := d.(magic.UseKernel)
		if !ok {
			continue
		}
		s, err := k.activate(ctx, doc, use.Kernel)
		if err != nil {
			return p, err
		}
		p.origin, p.target = s, s
	}

	if p.with != nil {
		s, err := doc.registry.GetOrCreate(ctx, p.with.Kernel)
		if err != nil {
			return p, err
		}
		p.target = s
	}

	if p.target.Status() == session.StatusCrashed {
		return p, fmt.Errorf("%w: %s crashed; remove it to start a new session", session.ErrKernelUnavailable, p.target.Kernel())
	}

	for _, g := range gets {
		src, err := doc.registry.GetOrCreate(ctx, g.From)
		if err != nil {
			return p, err
		}
		if err := k.transfer(ctx, doc, g.Name, src, p.origin); err != nil {
			return p, err
		}
	}

	if p.with != nil {
		for _, name := range p.with.In {
			if err := k.transfer(ctx, doc, name, p.origin, p.target); err != nil {
				return p, err
			}
		}
	}
	return p, nil
}

// resolve picks the session a statement starts in: the declared kernel,
// else the active session, else the restored or default kernel. When the
// header switches kernels anyway no fallback session is started.
func (k *Kernel) resolve(ctx context.Context, doc *Document, declared string, hasUse bool) (*session.Session, error) {
	if declared != "" {
		return k.activate(ctx, doc, declared)
	}
	if s, ok := doc.registry.Active(); ok {
		return s, nil
	}
	if hasUse {
		return nil, nil
	}

	tag := doc.restoredActive()
	if tag == "" {
		tag = k.defaultKernel
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: no active kernel and no default", catalog.ErrUnknownKernel)
	}
	return k.activate(ctx, doc, tag)
}

func (k *Kernel) activate(ctx context.Context, doc *Document, tag string) (*session.Session, error) {
	s, err := doc.registry.SetActive(ctx, tag, true)
	if err != nil {
		return nil, err
	}
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventActivate,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "kernel.Submit",
		Data: map[string]any{
			"document":   doc.id,
			"kernel":     s.Kernel(),
			"session_id": s.ID(),
		},
	})
	return s, nil
}

func (k *Kernel) execute(ctx context.Context, s *session.Session, code string, res *Result) error {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout.Std())
		defer cancel()
	}

	reply, err := s.Execute(ctx, code)
	res.Outputs = append(res.Outputs, reply.Outputs...)
	if err != nil {
		return err
	}
	if reply.Error != nil {
		return reply.Error
	}
	return nil
}

// finish applies the post-execution directives: %with outputs, %put and
// %preview, all sourced from the session that ran the code.
func (k *Kernel) finish(ctx context.Context, doc *Document, p *plan, res *Result) error {
	if p.with != nil {
		for _, name := range p.with.Out {
			if err := k.transfer(ctx, doc, name, p.target, p.origin); err != nil {
				return err
			}
		}
	}

	for _, put := range p.puts {
		dst, err := doc.registry.GetOrCreate(ctx, put.To)
		if err != nil {
			return err
		}
		if err := k.transfer(ctx, doc, put.Name, p.target, dst); err != nil {
			return err
		}
	}

	if !p.preview {
		return nil
	}
	names := p.previews
	if p.previewAll {
		var err error
		if names, err = p.target.Names(ctx); err != nil {
			return err
		}
	}
	for _, name := range names {
		v, err := k.bridge.Read(ctx, name, p.target)
		if errors.Is(err, bridge.ErrNameNotFound) {
			res.Outputs = append(res.Outputs, protocol.NewStream("stderr", name+": not defined\n"))
			continue
		}
		if err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, protocol.NewDisplay(interchange.Summary(name, v)))
	}
	return nil
}

func (k *Kernel) transfer(ctx context.Context, doc *Document, name string, src, dst *session.Session) error {
	err := k.bridge.Transfer(ctx, name, src, dst)
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventTransfer,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "kernel.Submit",
		Data: map[string]any{
			"document": doc.id,
			"name":     name,
			"from":     src.Kernel(),
			"to":       dst.Kernel(),
			"ok":       err == nil,
		},
	})
	return err
}

// live returns the session for tag, or the active session for an empty
// tag, without starting one.
func (k *Kernel) live(doc *Document, tag string) (*session.Session, error) {
	if s, ok := doc.lookup(tag); ok {
		return s, nil
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: no active kernel", ErrNoSession)
	}
	if _, err := k.catalog.Resolve(tag); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSession, tag)
}

// Interrupt cancels the in-flight request of the session for tag (the
// active session when tag is empty). Idle sessions are unaffected.
func (k *Kernel) Interrupt(doc *Document, tag string) error {
	s, err := k.live(doc, tag)
	if err != nil {
		return err
	}
	return s.Interrupt()
}

// Remove shuts down the session for tag and drops its console history.
// A later reference to the kernel starts a fresh session.
func (k *Kernel) Remove(ctx context.Context, doc *Document, tag string) error {
	if tag == "" {
		s, ok := doc.registry.Active()
		if !ok {
			return fmt.Errorf("%w: no active kernel", ErrNoSession)
		}
		tag = s.Kernel()
	}

	s, err := doc.registry.Remove(ctx, tag)
	if s != nil {
		doc.history.Drop(s.ID())
	}
	return err
}

// Navigate moves the console history cursor of the session for tag. The
// second result is false at the prompt below the newest entry or above
// the oldest one.
func (k *Kernel) Navigate(doc *Document, tag string, dir history.Direction) (string, bool, error) {
	s, err := k.live(doc, tag)
	if err != nil {
		return "", false, err
	}
	text, ok := doc.history.Navigate(s.ID(), dir)
	return text, ok, nil
}

// Subscribe registers for session status messages of every document. A
// non-positive buffer uses the configured status buffer.
func (k *Kernel) Subscribe(buffer int) *broadcast.Subscription[protocol.StatusMessage] {
	if buffer <= 0 {
		buffer = k.statusBuffer
	}
	return k.status.Subscribe(buffer)
}

// Snapshot returns the current status of each live session of doc.
func (k *Kernel) Snapshot(doc *Document) []protocol.StatusMessage {
	sessions := doc.registry.List()
	msgs := make([]protocol.StatusMessage, 0, len(sessions))
	for _, s := range sessions {
		msgs = append(msgs, protocol.StatusMessage{
			Document:  doc.id,
			SessionID: s.ID(),
			Kernel:    s.Kernel(),
			State:     ExecutionState(s.Status()),
		})
	}
	return msgs
}

// Metrics returns the status broadcast counters.
func (k *Kernel) Metrics() broadcast.MetricsSnapshot {
	return k.status.Metrics().Snapshot()
}

func (k *Kernel) onStatus(doc *Document, t session.Transition) {
	if t.Status == session.StatusReady {
		if texts := doc.takePending(t.Kernel); texts != nil {
			doc.history.Load(t.SessionID, texts)
		}
	}

	k.status.Publish(protocol.StatusMessage{
		Document:  doc.id,
		SessionID: t.SessionID,
		Kernel:    t.Kernel,
		State:     ExecutionState(t.Status),
	})
	k.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventStatus,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "kernel.Document",
		Data: map[string]any{
			"document":   doc.id,
			"kernel":     t.Kernel,
			"session_id": t.SessionID,
			"status":     t.Status.String(),
		},
	})
}

// ExecutionState maps a session status to the state broadcast to hosts.
func ExecutionState(s session.Status) protocol.ExecutionState {
	switch s {
	case session.StatusStarting:
		return protocol.StateStarting
	case session.StatusBusy:
		return protocol.StateBusy
	case session.StatusCrashed:
		return protocol.StateDead
	case session.StatusShuttingDown:
		return protocol.StateShuttingDown
	default:
		return protocol.StateIdle
	}
}
