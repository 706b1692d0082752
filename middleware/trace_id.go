package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDKeyDefault context key the loggers read the trace id from
	TraceIDKeyDefault = "trace_id"

	// TraceIDHeaderDefault HTTP header carrying the trace id
	TraceIDHeaderDefault = "X-Trace-ID"
)

// TraceConfig trace id middleware configuration.
type TraceConfig struct {
	// TraceIDKey context key (default "trace_id")
	TraceIDKey string

	// TraceIDHeader HTTP header key (default "X-Trace-ID")
	TraceIDHeader string

	// EnableResponseHeader write the trace id into the response
	EnableResponseHeader bool

	// Generator custom trace id generator (default UUID)
	Generator func() string
}

// DefaultTraceConfig returns the middleware defaults.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		TraceIDKey:           TraceIDKeyDefault,
		TraceIDHeader:        TraceIDHeaderDefault,
		EnableResponseHeader: true,
		Generator:            func() string { return uuid.New().String() },
	}
}

// TraceID extracts the trace id from the request header, generating one when
// absent, and injects it into both the gin context and the request context so
// the context-aware loggers pick it up.
func TraceID(cfg TraceConfig) gin.HandlerFunc {
	if cfg.TraceIDKey == "" {
		cfg.TraceIDKey = TraceIDKeyDefault
	}
	if cfg.TraceIDHeader == "" {
		cfg.TraceIDHeader = TraceIDHeaderDefault
	}
	if cfg.Generator == nil {
		cfg.Generator = func() string { return uuid.New().String() }
	}

	return func(c *gin.Context) {
		traceID := c.GetHeader(cfg.TraceIDHeader)
		if traceID == "" {
			traceID = cfg.Generator()
		}

		c.Set(cfg.TraceIDKey, traceID)
		ctx := context.WithValue(c.Request.Context(), cfg.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(ctx)

		if cfg.EnableResponseHeader {
			c.Header(cfg.TraceIDHeader, traceID)
		}

		c.Next()
	}
}

// GetTraceID reads the trace id from a gin context.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(TraceIDKeyDefault); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
