// Package server exposes a Kernel over Connect RPC. Messages travel as
// google.protobuf.Struct values whose fields follow the core/protocol JSON
// names, so any Connect, gRPC or gRPC-Web client can call the service
// without generated code.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/polyglot/core/protocol"
	"github.com/tailored-agentic-units/polyglot/history"
	"github.com/tailored-agentic-units/polyglot/kernel"
	"github.com/tailored-agentic-units/polyglot/observability"
	"github.com/tailored-agentic-units/polyglot/statestore"
)

// ServiceName is the fully-qualified name of the kernel service.
const ServiceName = "polyglot.v1.KernelService"

// Procedure paths of the kernel service.
const (
	ExecuteProcedure         = "/" + ServiceName + "/Execute"
	InterruptProcedure       = "/" + ServiceName + "/Interrupt"
	ListKernelsProcedure     = "/" + ServiceName + "/ListKernels"
	NavigateHistoryProcedure = "/" + ServiceName + "/NavigateHistory"
	RemoveProcedure          = "/" + ServiceName + "/Remove"
	WatchStatusProcedure     = "/" + ServiceName + "/WatchStatus"
)

// Server event types.
const (
	EventRequest observability.EventType = "server.request"
	EventState   observability.EventType = "server.state"
)

// Option configures a Server.
type Option func(*Server)

// WithObserver sets the observer for request events.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithStateStore restores each document from store when it is first
// opened and saves its state after every execution.
func WithStateStore(store statestore.Store) Option {
	return func(s *Server) { s.store = store }
}

// Server adapts a Kernel to Connect handlers.
type Server struct {
	kernel   *kernel.Kernel
	observer observability.Observer
	store    statestore.Store

	mu     sync.Mutex
	opened map[string]bool
	opens  singleflight.Group
}

// New creates a Server for k.
func New(k *kernel.Kernel, opts ...Option) *Server {
	s := &Server{
		kernel:   k,
		observer: observability.NoOpObserver{},
		opened:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns an http.Handler serving every procedure of the service.
func (s *Server) Handler() http.Handler {
	opts := connect.WithInterceptors(s.observe())
	mux := http.NewServeMux()

	mux.Handle(ExecuteProcedure, connect.NewUnaryHandler(ExecuteProcedure, s.execute, opts))
	mux.Handle(InterruptProcedure, connect.NewUnaryHandler(InterruptProcedure, s.interrupt, opts))
	mux.Handle(ListKernelsProcedure, connect.NewUnaryHandler(ListKernelsProcedure, s.listKernels, opts))
	mux.Handle(NavigateHistoryProcedure, connect.NewUnaryHandler(NavigateHistoryProcedure, s.navigate, opts))
	mux.Handle(RemoveProcedure, connect.NewUnaryHandler(RemoveProcedure, s.remove, opts))
	mux.Handle(WatchStatusProcedure, connect.NewServerStreamHandler(WatchStatusProcedure, s.watchStatus, opts))
	return mux
}

func (s *Server) document(ctx context.Context, id string) (*kernel.Document, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("document is required"))
	}
	doc, err := s.kernel.Document(id)
	if err != nil {
		return nil, connectError(err)
	}
	if s.store == nil {
		return doc, nil
	}

	if !s.isOpen(id) {
		// Requests racing on a new document wait for its restore.
		_, _, _ = s.opens.Do(id, func() (any, error) {
			if !s.isOpen(id) {
				s.restore(ctx, doc)
				s.mu.Lock()
				s.opened[id] = true
				s.mu.Unlock()
			}
			return nil, nil
		})
	}
	return doc, nil
}

func (s *Server) isOpen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened[id]
}

func (s *Server) restore(ctx context.Context, doc *kernel.Document) {
	state, err := s.store.Load(ctx, doc.ID())
	switch {
	case errors.Is(err, statestore.ErrNotFound):
	case err != nil:
		s.reportState(ctx, doc.ID(), err)
	default:
		if err := s.kernel.Restore(ctx, doc, state); err != nil {
			s.reportState(ctx, doc.ID(), err)
		}
	}
}

func (s *Server) save(ctx context.Context, doc *kernel.Document) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, doc.ID(), s.kernel.State(doc)); err != nil {
		s.reportState(ctx, doc.ID(), err)
	}
}

func (s *Server) reportState(ctx context.Context, id string, err error) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventState,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "server.Server",
		Data:      map[string]any{"document": id, "error": err.Error()},
	})
}

func decode[T any](req *connect.Request[structpb.Struct]) (T, error) {
	msg, err := protocol.FromStruct[T](req.Msg)
	if err != nil {
		return msg, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return msg, nil
}

func encode(msg any) (*connect.Response[structpb.Struct], error) {
	st, err := protocol.ToStruct(msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

func (s *Server) execute(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg, err := decode[protocol.ExecuteRequest](req)
	if err != nil {
		return nil, err
	}
	doc, err := s.document(ctx, msg.Document)
	if err != nil {
		return nil, err
	}

	kind := kernel.ContextCell
	if msg.Console {
		kind = kernel.ContextConsole
	}
	res := s.kernel.Submit(ctx, doc, kernel.Request{Code: msg.Code, Kernel: msg.Kernel, Context: kind})
	s.save(ctx, doc)
	return encode(res.Reply())
}

func (s *Server) interrupt(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg, err := decode[protocol.InterruptRequest](req)
	if err != nil {
		return nil, err
	}
	doc, err := s.document(ctx, msg.Document)
	if err != nil {
		return nil, err
	}
	if err := s.kernel.Interrupt(doc, msg.Kernel); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&structpb.Struct{}), nil
}

func (s *Server) listKernels(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	specs := s.kernel.Catalog().List()
	list := protocol.KernelList{Kernels: make([]protocol.KernelInfo, len(specs))}
	for i, spec := range specs {
		list.Kernels[i] = protocol.KernelInfo{
			Name:     spec.Name,
			Kernel:   spec.Kernel,
			Language: spec.TypeSystem(),
			Color:    string(spec.Color),
			Options:  spec.Options,
		}
	}
	return encode(list)
}

func (s *Server) navigate(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg, err := decode[protocol.NavigateRequest](req)
	if err != nil {
		return nil, err
	}
	dir, ok := history.ParseDirection(msg.Direction)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid direction %q", msg.Direction))
	}
	doc, err := s.document(ctx, msg.Document)
	if err != nil {
		return nil, err
	}

	text, found, err := s.kernel.Navigate(doc, msg.Kernel, dir)
	if err != nil {
		return nil, connectError(err)
	}
	return encode(protocol.NavigateReply{Text: text, Found: found})
}

func (s *Server) remove(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg, err := decode[protocol.RemoveRequest](req)
	if err != nil {
		return nil, err
	}
	doc, err := s.document(ctx, msg.Document)
	if err != nil {
		return nil, err
	}
	if err := s.kernel.Remove(ctx, doc, msg.Kernel); err != nil {
		return nil, connectError(err)
	}
	s.save(ctx, doc)
	return connect.NewResponse(&structpb.Struct{}), nil
}

// watchStatus sends the current state of each live session, then every
// status change, until the client disconnects or the kernel closes.
func (s *Server) watchStatus(ctx context.Context, req *connect.Request[structpb.Struct], stream *connect.ServerStream[structpb.Struct]) error {
	msg, err := decode[protocol.WatchRequest](req)
	if err != nil {
		return err
	}

	sub := s.kernel.Subscribe(0)
	defer sub.Close()

	var initial []protocol.StatusMessage
	if msg.Document != "" {
		doc, err := s.document(ctx, msg.Document)
		if err != nil {
			return err
		}
		initial = s.kernel.Snapshot(doc)
	} else {
		for _, id := range s.kernel.Documents() {
			doc, err := s.kernel.Document(id)
			if err != nil {
				return connectError(err)
			}
			initial = append(initial, s.kernel.Snapshot(doc)...)
		}
	}
	for _, status := range initial {
		if err := send(stream, status); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case status, ok := <-sub.C():
			if !ok {
				return nil
			}
			if msg.Document != "" && status.Document != msg.Document {
				continue
			}
			if err := send(stream, status); err != nil {
				return err
			}
		}
	}
}

func send(stream *connect.ServerStream[structpb.Struct], status protocol.StatusMessage) error {
	st, err := protocol.ToStruct(status)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	return stream.Send(st)
}

// observe reports every unary call to the observer.
func (s *Server) observe() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			started := time.Now()
			res, err := next(ctx, req)

			level := observability.LevelVerbose
			code := "ok"
			if err != nil {
				level = observability.LevelWarning
				code = connect.CodeOf(err).String()
			}
			s.observer.OnEvent(ctx, observability.Event{
				Type:      EventRequest,
				Level:     level,
				Timestamp: time.Now(),
				Source:    "server.Server",
				Data: map[string]any{
					"procedure": req.Spec().Procedure,
					"code":      code,
					"duration":  time.Since(started).String(),
				},
			})
			return res, err
		}
	}
}
