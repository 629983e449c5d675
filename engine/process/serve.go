package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/interchange"
)

// Serve answers requests read from r using eng and writes responses to w,
// until r is exhausted or a shutdown request is handled. A signal on
// interrupts cancels the running execute request; interrupts may be nil.
// Serve returns engine.ErrCrashed after reporting a crashed engine.
func Serve(ctx context.Context, r io.Reader, w io.Writer, eng engine.Engine, interrupts <-chan os.Signal) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		resp := handle(ctx, eng, req, interrupts)
		resp.ID = req.ID
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}

		switch {
		case req.Op == OpShutdown:
			return nil
		case resp.Status == StatusCrashed:
			return engine.ErrCrashed
		}
	}
}

func handle(ctx context.Context, eng engine.Engine, req Request, interrupts <-chan os.Signal) Response {
	switch req.Op {
	case OpExecute:
		return execute(ctx, eng, req.Code, interrupts)

	case OpGet:
		v, err := eng.Get(ctx, req.Name)
		if err != nil {
			return failure(err)
		}
		data, err := interchange.Marshal(v)
		if err != nil {
			return Response{Status: StatusUnsupported, Message: err.Error()}
		}
		return Response{Status: StatusOK, Value: data}

	case OpSet:
		v, err := interchange.Unmarshal(req.Value)
		if err != nil {
			return Response{Status: StatusFailed, Message: err.Error()}
		}
		if err := eng.Set(ctx, req.Name, v); err != nil {
			return failure(err)
		}
		return Response{Status: StatusOK}

	case OpNames:
		names, err := eng.Names(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{Status: StatusOK, Names: names}

	case OpShutdown:
		if err := eng.Shutdown(ctx); err != nil {
			return failure(err)
		}
		return Response{Status: StatusOK}

	default:
		return Response{Status: StatusFailed, Message: "unknown op " + req.Op}
	}
}

func execute(ctx context.Context, eng engine.Engine, code string, interrupts <-chan os.Signal) Response {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		reply engine.Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := eng.Execute(runCtx, code)
		done <- result{reply, err}
	}()

	interrupted := false
	for {
		select {
		case res := <-done:
			if interrupted && errors.Is(res.err, context.Canceled) {
				ki := &engine.Error{Name: "KeyboardInterrupt"}
				return Response{
					Status:  StatusOK,
					Outputs: append(res.reply.Outputs, ki.Output()),
					Error:   &ErrorInfo{Name: ki.Name},
				}
			}
			if res.err != nil {
				resp := failure(res.err)
				resp.Outputs = res.reply.Outputs
				return resp
			}
			resp := Response{Status: StatusOK, Outputs: res.reply.Outputs}
			if res.reply.Error != nil {
				resp.Error = &ErrorInfo{
					Name:      res.reply.Error.Name,
					Value:     res.reply.Error.Value,
					Traceback: res.reply.Error.Traceback,
				}
			}
			return resp
		case <-interrupts:
			interrupted = true
			_ = eng.Interrupt()
			cancel()
		}
	}
}

func failure(err error) Response {
	switch {
	case errors.Is(err, engine.ErrCrashed):
		return Response{Status: StatusCrashed, Message: err.Error()}
	case errors.Is(err, engine.ErrUndefined):
		return Response{Status: StatusUndefined, Message: err.Error()}
	case errors.Is(err, engine.ErrUnsupported):
		return Response{Status: StatusUnsupported, Message: err.Error()}
	default:
		return Response{Status: StatusFailed, Message: err.Error()}
	}
}
