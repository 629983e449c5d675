package observability_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tailored-agentic-units/polyglot/observability"
)

func TestLevel_ZapLevel(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  zapcore.Level
	}{
		{observability.LevelVerbose, zapcore.DebugLevel},
		{observability.LevelInfo, zapcore.InfoLevel},
		{observability.LevelWarning, zapcore.WarnLevel},
		{observability.LevelError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.ZapLevel(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZapObserver_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := observability.NewZapObserver(zap.New(core))

	obs.OnEvent(context.Background(), observability.Event{
		Type:   "session.status",
		Level:  observability.LevelInfo,
		Source: "session.Registry",
		Data:   map[string]any{"kernel": "R", "status": "busy"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "session.status" {
		t.Errorf("got message %q, want %q", entry.Message, "session.status")
	}
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("got level %v, want info", entry.Level)
	}

	fields := entry.ContextMap()
	if fields["source"] != "session.Registry" {
		t.Errorf("got source %v, want session.Registry", fields["source"])
	}
	if fields["kernel"] != "R" {
		t.Errorf("got kernel %v, want R", fields["kernel"])
	}
}

func TestZapObserver_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	obs := observability.NewZapObserver(zap.New(core))

	obs.OnEvent(context.Background(), observability.Event{Type: "verbose", Level: observability.LevelVerbose})
	obs.OnEvent(context.Background(), observability.Event{Type: "error", Level: observability.LevelError})

	if got := logs.Len(); got != 1 {
		t.Fatalf("got %d entries, want 1", got)
	}
	if logs.All()[0].Message != "error" {
		t.Errorf("got %q, want error", logs.All()[0].Message)
	}
}

func TestZapObserver_GlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	obs, err := observability.GetObserver("zap")
	if err != nil {
		t.Fatalf("GetObserver failed: %v", err)
	}
	obs.OnEvent(context.Background(), observability.Event{Type: "kernel.submit.start", Level: observability.LevelInfo})

	if logs.Len() != 1 {
		t.Errorf("got %d entries, want 1", logs.Len())
	}
}

func TestGetObserver_Unknown(t *testing.T) {
	_, err := observability.GetObserver("nope")
	if !errors.Is(err, observability.ErrUnknownObserver) {
		t.Errorf("got %v, want ErrUnknownObserver", err)
	}
}
