// Package api exposes read-only admission introspection endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theo-thinker/music-server-admission/admission"
)

// Response unified response format.
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func okJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Msg: "success", Data: data})
}

func badRequestJson(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Msg: msg})
}

func notFoundJson(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: 404, Msg: msg})
}

// Handler admission introspection endpoints.
type Handler struct {
	engine *admission.Engine
}

// NewHandler creates the handler.
func NewHandler(engine *admission.Engine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts the endpoints under group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/policies", h.ListPolicies)
	group.GET("/stats/:type/:key", h.GetStats)
	group.GET("/stats/:type/:key/alerts", h.GetAlerts)
	group.GET("/hotspots/:operation", h.GetHotspots)
}

// ListPolicies returns all registered policy names.
func (h *Handler) ListPolicies(c *gin.Context) {
	okJson(c, h.engine.PolicyNames())
}

// statsSnapshot wire form of one statistics bucket.
type statsSnapshot struct {
	Bucket             string           `json:"bucket"`
	Total              int64            `json:"total"`
	Allowed            int64            `json:"allowed"`
	Blocked            int64            `json:"blocked"`
	Hotspot            int64            `json:"hotspot"`
	Errors             int64            `json:"errors"`
	BlockRate          float64          `json:"block_rate"`
	Anomalous          bool             `json:"anomalous"`
	MostActiveStrategy string           `json:"most_active_strategy,omitempty"`
	MostActiveKey      string           `json:"most_active_key,omitempty"`
	PerStrategy        map[string]int64 `json:"per_strategy,omitempty"`
	PerKey             map[string]int64 `json:"per_key,omitempty"`
}

// GetStats returns one statistics bucket.
// :type is hour or day, :key the bucket key (yyyymmddHH / yyyymmdd) or
// "current" for the bucket of the present instant.
func (h *Handler) GetStats(c *gin.Context) {
	bt, key, ok := h.bucketParams(c)
	if !ok {
		return
	}

	stats := h.engine.Stats()
	snap := stats.Snapshot(bt, key)
	if snap == nil {
		notFoundJson(c, "no statistics for bucket "+key)
		return
	}

	okJson(c, statsSnapshot{
		Bucket:             key,
		Total:              snap.Total,
		Allowed:            snap.Allowed,
		Blocked:            snap.Blocked,
		Hotspot:            snap.Hotspot,
		Errors:             snap.Errors,
		BlockRate:          stats.BlockRate(bt, key),
		Anomalous:          stats.IsAnomalous(bt, key),
		MostActiveStrategy: stats.MostActiveStrategy(bt, key),
		MostActiveKey:      stats.MostActiveKey(bt, key),
		PerStrategy:        snap.PerStrategy,
		PerKey:             snap.PerKey,
	})
}

// GetAlerts returns the alerts of one bucket, filtered by ?category=.
func (h *Handler) GetAlerts(c *gin.Context) {
	bt, key, ok := h.bucketParams(c)
	if !ok {
		return
	}
	alerts := h.engine.Stats().Alerts(bt, key, c.Query("category"))
	okJson(c, alerts)
}

// GetHotspots returns the top accessed parameter values of one operation.
// ?date=yyyymmdd selects the day (default today), ?n= the ranking depth.
func (h *Handler) GetHotspots(c *gin.Context) {
	operation := c.Param("operation")

	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("20060102", raw)
		if err != nil {
			badRequestJson(c, "invalid date, expected yyyymmdd")
			return
		}
		day = parsed
	}

	var n int64 = 10
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			badRequestJson(c, "invalid n")
			return
		}
		n = parsed
	}

	entries, err := h.engine.Hotspot().TopN(c.Request.Context(), operation, day, n)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, Response{Code: 503, Msg: err.Error()})
		return
	}
	okJson(c, entries)
}

// bucketParams parses and validates the :type and :key route parameters.
func (h *Handler) bucketParams(c *gin.Context) (admission.BucketType, string, bool) {
	var bt admission.BucketType
	switch c.Param("type") {
	case "hour":
		bt = admission.BucketHour
	case "day":
		bt = admission.BucketDay
	default:
		badRequestJson(c, "bucket type must be hour or day")
		return "", "", false
	}

	key := c.Param("key")
	if key == "current" || key == "" {
		key = admission.BucketKey(bt, time.Now())
	}
	return bt, key, true
}
