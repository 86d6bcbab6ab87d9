package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/classifier"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
	"github.com/yeisme/hsrelay/pkg/middleware"
)

func newTestEngine(t *testing.T, mutate func(*configs.AppConfig)) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"label":"neutral"}`))
	}))
	t.Cleanup(upstream.Close)

	cfg, err := configs.Load("")
	require.NoError(t, err)

	cfg.Upstream.BaseURL = upstream.URL
	cfg.Upstream.Timeout = time.Second

	if mutate != nil {
		mutate(cfg)
	}

	store, err := spool.New(afero.NewMemMapFs(), "/spool", cfg.Upload.FilePrefix)
	require.NoError(t, err)

	mgr := &storage.Manager{Config: cfg, Spool: store, Classifier: classifier.New(cfg.Upstream)}

	return NewEngine(cfg, mgr)
}

func TestEngineRoutes(t *testing.T) {
	e := newTestEngine(t, nil)

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/upstream", http.StatusOK},
		{http.MethodGet, "/api/uploadFile", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/analyse", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))

		assert.Equal(t, tc.status, w.Code, tc.path)
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID), tc.path)
	}
}

func TestEngineMetricsRoute(t *testing.T) {
	e := newTestEngine(t, func(c *configs.AppConfig) {
		c.Metrics.Enabled = true
	})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEngineRateLimit(t *testing.T) {
	e := newTestEngine(t, func(c *configs.AppConfig) {
		c.RateLimit = configs.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1, Key: "global"}
	})

	codes := make([]int, 0, 2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
