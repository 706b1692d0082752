package logger

import (
	"context"

	"go.uber.org/zap"
)

// CtxZapLogger context-aware zap wrapper. The module is bound at creation
// time; call sites only pass a context and the trace id is extracted
// automatically.
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// NewNop returns a logger that discards everything. Intended for tests and
// for components constructed without an explicit logger.
func NewNop() *CtxZapLogger {
	cfg := DefaultManagerConfig()
	return &CtxZapLogger{base: zap.NewNop(), module: "nop", config: &cfg}
}

// DebugCtx logs at Debug level with trace id enrichment.
func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrichFields(ctx, fields)...)
}

// InfoCtx logs at Info level with trace id enrichment.
func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrichFields(ctx, fields)...)
}

// WarnCtx logs at Warn level with trace id enrichment.
func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrichFields(ctx, fields)...)
}

// ErrorCtx logs at Error level with trace id enrichment.
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Error(msg, l.enrichFields(ctx, fields)...)
}

// Debug convenience variant without a context.
func (l *CtxZapLogger) Debug(msg string, fields ...zap.Field) {
	l.DebugCtx(context.Background(), msg, fields...)
}

// Info convenience variant without a context.
func (l *CtxZapLogger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

// Warn convenience variant without a context.
func (l *CtxZapLogger) Warn(msg string, fields ...zap.Field) {
	l.WarnCtx(context.Background(), msg, fields...)
}

// Error convenience variant without a context.
func (l *CtxZapLogger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

// With returns a logger carrying preset fields.
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// GetZapLogger exposes the underlying zap.Logger for third-party integration.
func (l *CtxZapLogger) GetZapLogger() *zap.Logger {
	return l.base
}

// enrichFields adds app_name and the trace id extracted from context.
func (l *CtxZapLogger) enrichFields(ctx context.Context, fields []zap.Field) []zap.Field {
	enriched := make([]zap.Field, 0, len(fields)+2)

	if l.config != nil {
		enriched = append(enriched, zap.String("app_name", l.config.AppName))

		if l.config.EnableTraceID && ctx != nil {
			if v := ctx.Value(l.config.TraceIDKey); v != nil {
				if traceID, ok := v.(string); ok && traceID != "" {
					enriched = append(enriched, zap.String(l.config.TraceIDFieldName, traceID))
				}
			}
		}
	}

	return append(enriched, fields...)
}
