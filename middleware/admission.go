package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theo-thinker/music-server-admission/admission"
)

// AdmissionConfig gin middleware configuration.
type AdmissionConfig struct {
	// Engine admission engine (required)
	Engine *admission.Engine

	// Policy name of the registered policy guarding HTTP traffic (required)
	Policy string

	// OperationFunc derives the operation name (default: method:path)
	OperationFunc func(*gin.Context) string

	// DeniedHandler renders the denial response (default: 429 JSON)
	DeniedHandler func(*gin.Context, *admission.Decision)

	// SkipFunc skips admission for matching requests (optional)
	SkipFunc func(*gin.Context) bool

	// SkipPaths paths exempt from admission (optional)
	SkipPaths []string
}

// DefaultAdmissionConfig returns the middleware defaults.
func DefaultAdmissionConfig(engine *admission.Engine, policy string) AdmissionConfig {
	return AdmissionConfig{
		Engine: engine,
		Policy: policy,
		OperationFunc: func(c *gin.Context) string {
			return fmt.Sprintf("%s:%s", strings.ToLower(c.Request.Method), c.FullPath())
		},
		DeniedHandler: func(c *gin.Context, d *admission.Decision) {
			msg := d.Message
			if msg == "" {
				msg = "too many requests"
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    d.ErrorCode,
				"message": msg,
			})
			c.Abort()
		},
	}
}

// Admission creates the gin admission middleware with defaults.
//
// Every decision is rendered into X-RateLimit headers; denied requests are
// answered with 429 and the policy's message.
func Admission(engine *admission.Engine, policy string) gin.HandlerFunc {
	return AdmissionWithConfig(DefaultAdmissionConfig(engine, policy))
}

// AdmissionWithConfig creates the gin admission middleware.
func AdmissionWithConfig(cfg AdmissionConfig) gin.HandlerFunc {
	if cfg.Engine == nil {
		panic("AdmissionConfig.Engine cannot be nil")
	}
	if cfg.Policy == "" {
		panic("AdmissionConfig.Policy cannot be empty")
	}
	if cfg.OperationFunc == nil {
		cfg.OperationFunc = func(c *gin.Context) string {
			return fmt.Sprintf("%s:%s", strings.ToLower(c.Request.Method), c.FullPath())
		}
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = DefaultAdmissionConfig(cfg.Engine, cfg.Policy).DeniedHandler
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if !cfg.Engine.IsEnabled() {
			c.Next()
			return
		}
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		if cfg.SkipFunc != nil && cfg.SkipFunc(c) {
			c.Next()
			return
		}

		rc := requestContext(c, cfg.OperationFunc(c))

		d, err := cfg.Engine.Evaluate(c.Request.Context(), cfg.Policy, rc)
		if err != nil {
			// Unknown policy is a wiring mistake; do not take traffic down.
			c.Next()
			return
		}

		writeRateLimitHeaders(c, d)

		if !d.Allowed {
			cfg.DeniedHandler(c, d)
			return
		}
		c.Next()
	}
}

// requestContext maps the HTTP request onto the admission context. The
// principal is taken from the auth layer when it stored one.
func requestContext(c *gin.Context, operation string) *admission.RequestContext {
	principal := ""
	if v, ok := c.Get("user_id"); ok {
		principal = fmt.Sprint(v)
	}
	return &admission.RequestContext{
		Operation:   operation,
		CallerIP:    c.ClientIP(),
		Principal:   principal,
		Device:      c.GetHeader("X-Device-ID"),
		Application: c.GetHeader("X-App-ID"),
		UserAgent:   c.Request.UserAgent(),
	}
}

// writeRateLimitHeaders renders the decision into standard headers.
func writeRateLimitHeaders(c *gin.Context, d *admission.Decision) {
	if d.Limit > 0 {
		c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	}
	if d.Remaining >= 0 {
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	}
	if !d.ResetAt.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			c.Header("Retry-After", strconv.FormatInt(d.SecondsToReset(time.Now()), 10))
		}
	}
}
