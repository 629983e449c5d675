package server_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/protocol"
	"github.com/tailored-agentic-units/polyglot/engine/enginetest"
	"github.com/tailored-agentic-units/polyglot/kernel"
	"github.com/tailored-agentic-units/polyglot/observability"
	"github.com/tailored-agentic-units/polyglot/server"
	"github.com/tailored-agentic-units/polyglot/statestore"
)

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (c *captureObserver) OnEvent(ctx context.Context, event observability.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureObserver) byType(typ observability.EventType) []observability.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []observability.Event
	for _, e := range c.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	k        *kernel.Kernel
	url      string
	ts       *httptest.Server
	observer *captureObserver
}

func newFixture(t *testing.T, opts ...server.Option) *fixture {
	t.Helper()

	cfg := kernel.DefaultConfig()
	cfg.Kernels = []catalog.Spec{
		{Name: "R", Kernel: "ir", Language: "R", Color: "#DCDCDA", Driver: "scripted"},
		{Name: "Python3", Kernel: "python3", Language: "Python", Color: "#FFD91A", Driver: "scripted"},
		{Name: "SoS", Kernel: "sos", Language: "SoS", Color: "#FFFFFF", Driver: "scripted"},
	}
	cfg.DefaultKernel = "SoS"

	k, err := kernel.New(&cfg, kernel.WithStarter(enginetest.NewDriver().Start))
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close(context.Background()) })

	observer := &captureObserver{}
	srv := server.New(k, append([]server.Option{server.WithObserver(observer)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{k: k, url: ts.URL, ts: ts, observer: observer}
}

func (f *fixture) client(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
	return connect.NewClient[structpb.Struct, structpb.Struct](f.ts.Client(), f.url+procedure)
}

func call[T any](t *testing.T, f *fixture, procedure string, msg any) (T, error) {
	t.Helper()
	var out T
	st, err := protocol.ToStruct(msg)
	require.NoError(t, err)

	res, err := f.client(procedure).CallUnary(context.Background(), connect.NewRequest(st))
	if err != nil {
		return out, err
	}
	out, err = protocol.FromStruct[T](res.Msg)
	require.NoError(t, err)
	return out, nil
}

func execute(t *testing.T, f *fixture, req protocol.ExecuteRequest) protocol.ExecuteReply {
	t.Helper()
	reply, err := call[protocol.ExecuteReply](t, f, server.ExecuteProcedure, req)
	require.NoError(t, err)
	return reply
}

func plain(outputs []protocol.Output) []string {
	out := make([]string, len(outputs))
	for i, o := range outputs {
		out[i] = o.PlainText()
	}
	return out
}

func TestExecute_UseAndTransfer(t *testing.T) {
	f := newFixture(t)

	reply := execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use R\nrn <- rnorm(5)"})
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, "R", reply.Kernel)
	assert.Equal(t, "#DCDCDA", reply.DisplayColor)

	reply = execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use Python3\n%get rn --from R\nlen(rn)"})
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, "Python3", reply.Kernel)
	assert.Equal(t, []string{"5"}, plain(reply.Outputs))
	assert.NotEmpty(t, reply.SessionID)
}

func TestExecute_ErrorReply(t *testing.T) {
	f := newFixture(t)

	reply := execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use Julia"})
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, "UnknownKernel", reply.ErrorName)
	require.NotEmpty(t, reply.Outputs)
	assert.Equal(t, protocol.OutputError, reply.Outputs[len(reply.Outputs)-1].Type)
}

func TestExecute_DocumentsAreIndependent(t *testing.T) {
	f := newFixture(t)

	execute(t, f, protocol.ExecuteRequest{Document: "a", Code: "%use R"})
	reply := execute(t, f, protocol.ExecuteRequest{Document: "b", Code: "1"})
	assert.Equal(t, "SoS", reply.Kernel)
	assert.ElementsMatch(t, []string{"a", "b"}, f.k.Documents())
}

func TestExecute_InvalidArgument(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		msg  map[string]any
	}{
		{"missing document", map[string]any{"code": "1"}},
		{"wrong field type", map[string]any{"document": "nb", "code": 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[protocol.ExecuteReply](t, f, server.ExecuteProcedure, tt.msg)
			assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err), "got %v", err)
		})
	}
}

func TestListKernels(t *testing.T) {
	f := newFixture(t)

	list, err := call[protocol.KernelList](t, f, server.ListKernelsProcedure, struct{}{})
	require.NoError(t, err)
	require.Len(t, list.Kernels, 3)

	byName := make(map[string]protocol.KernelInfo)
	for _, info := range list.Kernels {
		byName[info.Name] = info
	}
	assert.Equal(t, protocol.KernelInfo{Name: "R", Kernel: "ir", Language: "R", Color: "#DCDCDA"}, byName["R"])
	assert.Equal(t, "Python", byName["Python3"].Language)
}

func TestInterrupt_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		kernel string
		want   connect.Code
	}{
		{"no session", "R", connect.CodeFailedPrecondition},
		{"unknown kernel", "Julia", connect.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[map[string]any](t, f, server.InterruptProcedure,
				protocol.InterruptRequest{Document: "nb", Kernel: tt.kernel})
			assert.Equal(t, tt.want, connect.CodeOf(err), "got %v", err)
		})
	}
}

func TestInterrupt_Idle(t *testing.T) {
	f := newFixture(t)
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use R"})

	_, err := call[map[string]any](t, f, server.InterruptProcedure, protocol.InterruptRequest{Document: "nb", Kernel: "R"})
	assert.NoError(t, err)
}

func TestNavigateHistory(t *testing.T) {
	f := newFixture(t)
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Kernel: "R", Console: true, Code: "x <- 1"})
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Kernel: "R", Console: true, Code: "y <- 2"})

	nav := func(dir string) protocol.NavigateReply {
		reply, err := call[protocol.NavigateReply](t, f, server.NavigateHistoryProcedure,
			protocol.NavigateRequest{Document: "nb", Kernel: "R", Direction: dir})
		require.NoError(t, err)
		return reply
	}

	assert.Equal(t, protocol.NavigateReply{Text: "y <- 2", Found: true}, nav("up"))
	assert.Equal(t, protocol.NavigateReply{Text: "x <- 1", Found: true}, nav("up"))
	assert.Equal(t, protocol.NavigateReply{Text: "y <- 2", Found: true}, nav("down"))

	_, err := call[protocol.NavigateReply](t, f, server.NavigateHistoryProcedure,
		protocol.NavigateRequest{Document: "nb", Kernel: "R", Direction: "sideways"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	first := execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use R\nx <- 1"})

	_, err := call[map[string]any](t, f, server.RemoveProcedure, protocol.RemoveRequest{Document: "nb", Kernel: "R"})
	require.NoError(t, err)

	second := execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use R"})
	assert.NotEqual(t, first.SessionID, second.SessionID)

	_, err = call[map[string]any](t, f, server.RemoveProcedure, protocol.RemoveRequest{Document: "nb", Kernel: "Python3"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestWatchStatus(t *testing.T) {
	f := newFixture(t)
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "%use R"})
	execute(t, f, protocol.ExecuteRequest{Document: "other", Code: "%use Python3"})

	req, err := protocol.ToStruct(protocol.WatchRequest{Document: "nb"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := f.client(server.WatchStatusProcedure).CallServerStream(ctx, connect.NewRequest(req))
	require.NoError(t, err)
	defer stream.Close()

	next := func() protocol.StatusMessage {
		require.True(t, stream.Receive(), "stream ended: %v", stream.Err())
		msg, err := protocol.FromStruct[protocol.StatusMessage](stream.Msg())
		require.NoError(t, err)
		return msg
	}

	snapshot := next()
	assert.Equal(t, "nb", snapshot.Document)
	assert.Equal(t, "R", snapshot.Kernel)
	assert.Equal(t, protocol.StateIdle, snapshot.State)

	execute(t, f, protocol.ExecuteRequest{Document: "other", Code: "z = 1"})
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "x <- 1"})

	busy, idle := next(), next()
	assert.Equal(t, "nb", busy.Document)
	assert.Equal(t, protocol.StateBusy, busy.State)
	assert.Equal(t, protocol.StateIdle, idle.State)
	assert.Equal(t, snapshot.SessionID, idle.SessionID)
}

func TestRequestEvents(t *testing.T) {
	f := newFixture(t)
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Code: "1"})
	_, _ = call[map[string]any](t, f, server.InterruptProcedure, protocol.InterruptRequest{Document: "nb", Kernel: "R"})

	events := f.observer.byType(server.EventRequest)
	require.Len(t, events, 2)
	assert.Equal(t, server.ExecuteProcedure, events[0].Data["procedure"])
	assert.Equal(t, "ok", events[0].Data["code"])
	assert.Equal(t, observability.LevelWarning, events[1].Level)
	assert.Equal(t, connect.CodeFailedPrecondition.String(), events[1].Data["code"])
}

func TestStateStore_SaveAndRestore(t *testing.T) {
	store := statestore.NewFileStore(t.TempDir())

	f := newFixture(t, server.WithStateStore(store))
	execute(t, f, protocol.ExecuteRequest{Document: "nb", Kernel: "R", Console: true, Code: "x <- 1"})

	state, err := store.Load(context.Background(), "nb")
	require.NoError(t, err)
	assert.Equal(t, "R", state.Active)
	assert.Equal(t, []string{"x <- 1"}, state.History["R"])

	reopened := newFixture(t, server.WithStateStore(store))
	reply := execute(t, reopened, protocol.ExecuteRequest{Document: "nb", Code: "y <- 2"})
	assert.Equal(t, "R", reply.Kernel)

	nav, err := call[protocol.NavigateReply](t, reopened, server.NavigateHistoryProcedure,
		protocol.NavigateRequest{Document: "nb", Kernel: "R", Direction: "up"})
	require.NoError(t, err)
	assert.Equal(t, protocol.NavigateReply{Text: "x <- 1", Found: true}, nav)
}

func TestStateStore_ConcurrentOpenWaitsForRestore(t *testing.T) {
	store := statestore.NewFileStore(t.TempDir())
	require.NoError(t, store.Save(context.Background(), "nb", kernel.DocumentState{
		Active:  "R",
		History: map[string][]string{"R": {"x <- 1"}},
	}))

	f := newFixture(t, server.WithStateStore(store))
	req, err := protocol.ToStruct(protocol.ExecuteRequest{Document: "nb"})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	kernels := make(chan string, n)
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.client(server.ExecuteProcedure).CallUnary(context.Background(), connect.NewRequest(req))
			if err != nil {
				errs <- err
				return
			}
			reply, err := protocol.FromStruct[protocol.ExecuteReply](res.Msg)
			if err != nil {
				errs <- err
				return
			}
			kernels <- reply.Kernel
		}()
	}
	wg.Wait()
	close(kernels)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for k := range kernels {
		assert.Equal(t, "R", k, "every request sees the restored active kernel")
	}
}
