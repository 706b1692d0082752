package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theo-thinker/music-server-admission/admission"
)

var testBase = time.UnixMilli(1_700_000_000_000)

func setupAPI(t *testing.T, mutate func(*admission.Config)) (*admission.Engine, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := admission.DefaultConfig()
	cfg.Stats.FlushInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := admission.NewEngine(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	router := gin.New()
	NewHandler(engine).Register(router.Group("/admin/admission"))
	return engine, router
}

func doGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func TestAPI_ListPolicies(t *testing.T) {
	engine, router := setupAPI(t, nil)
	require.NoError(t, engine.RegisterPolicy("login", admission.Policy{
		Limit: 5,
	}))

	w := doGet(router, "/admin/admission/policies")
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	decodeData(t, w, &names)
	assert.Contains(t, names, "login")
}

func TestAPI_GetStats(t *testing.T) {
	engine, router := setupAPI(t, nil)
	require.NoError(t, engine.RegisterPolicy("p", admission.Policy{
		Limit: 1, Period: 60, TimeUnit: "second",
	}))

	rc := &admission.RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()
	_, err := engine.Evaluate(ctx, "p", rc)
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, "p", rc)
	require.NoError(t, err)

	bucket := admission.BucketKey(admission.BucketHour, testBase)
	w := doGet(router, fmt.Sprintf("/admin/admission/stats/hour/%s", bucket))
	require.Equal(t, http.StatusOK, w.Code)

	var snap struct {
		Total     int64   `json:"total"`
		Allowed   int64   `json:"allowed"`
		Blocked   int64   `json:"blocked"`
		BlockRate float64 `json:"block_rate"`
	}
	decodeData(t, w, &snap)
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.Allowed)
	assert.Equal(t, int64(1), snap.Blocked)
	assert.Equal(t, float64(50), snap.BlockRate)
}

func TestAPI_GetStatsValidation(t *testing.T) {
	_, router := setupAPI(t, nil)

	w := doGet(router, "/admin/admission/stats/week/20240101")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doGet(router, "/admin/admission/stats/hour/1999010100")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_GetAlerts(t *testing.T) {
	engine, router := setupAPI(t, nil)
	require.NoError(t, engine.RegisterPolicy("p", admission.Policy{
		Limit: 1, Period: 60, TimeUnit: "second",
		Group: "login",
	}))

	rc := &admission.RequestContext{Operation: "op", Now: testBase}
	ctx := context.Background()
	_, err := engine.Evaluate(ctx, "p", rc)
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, "p", rc)
	require.NoError(t, err)

	bucket := admission.BucketKey(admission.BucketHour, testBase)
	w := doGet(router, fmt.Sprintf("/admin/admission/stats/hour/%s/alerts?category=login", bucket))
	require.Equal(t, http.StatusOK, w.Code)

	var alerts []admission.Alert
	decodeData(t, w, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "login", alerts[0].Category)
}

func TestAPI_GetHotspots(t *testing.T) {
	engine, router := setupAPI(t, func(c *admission.Config) {
		c.Hotspot = admission.HotspotConfig{
			Enabled: true, Limit: 100, Period: time.Minute, TopN: 10,
		}
	})
	require.NoError(t, engine.RegisterPolicy("play", admission.Policy{
		Limit: 100, Period: 60, TimeUnit: "second",
		Dimension: string(admission.DimensionParameter),
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := engine.Evaluate(ctx, "play", &admission.RequestContext{
			Operation: "song.play",
			Args:      []interface{}{"song-1"},
			Now:       testBase,
		})
		require.NoError(t, err)
	}

	day := testBase.Format("20060102")
	w := doGet(router, fmt.Sprintf("/admin/admission/hotspots/song.play?date=%s", day))
	require.Equal(t, http.StatusOK, w.Code)

	var entries []admission.RankEntry
	decodeData(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "song-1", entries[0].Member)
	assert.Equal(t, int64(3), entries[0].Count)

	w = doGet(router, "/admin/admission/hotspots/song.play?date=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doGet(router, "/admin/admission/hotspots/song.play?n=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
