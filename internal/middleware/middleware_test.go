package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/state", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/api/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRouter(Logger(zap.New(core), "/health"))

	for _, path := range []string{"/health", "/api/state", "/api/missing", "/api/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 4)
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		assert.Equal(t, want[i], e.Level, e.ContextMap()["path"])
		assert.Equal(t, "request", e.Message)
	}
	assert.Equal(t, int64(404), entries[2].ContextMap()["status"])
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed string
		origin  string
		want    string
	}{
		{"wildcard", "*", "http://evil.test", "*"},
		{"empty list allows all", "", "http://a.test", "*"},
		{"listed origin", "http://localhost:3000, http://127.0.0.1:3000", "http://127.0.0.1:3000", "http://127.0.0.1:3000"},
		{"unlisted origin", "http://localhost:3000", "http://evil.test", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(CORS(tt.allowed))
			req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(CORS("*"))
	req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}
