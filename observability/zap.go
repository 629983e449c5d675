package observability

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapObserver emits events to a zap.Logger. A nil logger resolves to
// zap.L() on every event, so the observer follows zap.ReplaceGlobals.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver creates a ZapObserver that emits to logger.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	return &ZapObserver{logger: logger}
}

// ZapLevel maps this level to the corresponding zapcore.Level.
func (l Level) ZapLevel() zapcore.Level {
	switch {
	case l <= 8:
		return zapcore.DebugLevel
	case l <= 12:
		return zapcore.InfoLevel
	case l <= 16:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func (o *ZapObserver) OnEvent(ctx context.Context, event Event) {
	logger := o.logger
	if logger == nil {
		logger = zap.L()
	}

	ce := logger.Check(event.Level.ZapLevel(), string(event.Type))
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("source", event.Source))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Data[k]))
	}
	ce.Write(fields...)
}
