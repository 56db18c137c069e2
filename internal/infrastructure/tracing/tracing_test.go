package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	router := gin.New()
	router.Use(HTTPMiddleware(New(zap.New(core))))
	router.GET("/api/terminals/:id", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c.Request.Context()))
	})
	router.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})
	return router, logs
}

func TestMiddlewareKeepsClientRequestID(t *testing.T) {
	router, logs := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/terminals/t1", nil)
	req.Header.Set(RequestIDHeader, "cli-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "cli-42", w.Body.String())
	assert.Equal(t, "cli-42", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "cli-42", ctx["request_id"])
	assert.Equal(t, "GET /api/terminals/:id", ctx["operation"])
	assert.Equal(t, "t1", ctx["terminal_id"])
	assert.Equal(t, "trace", entries[0].LoggerName)
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	router, _ := newRouter(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"has spaces", "not a valid id"},
		{"too long", strings.Repeat("x", maxRequestIDLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/terminals/t1", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.Len(t, got, 36)
			assert.Equal(t, got, w.Body.String())
		})
	}
}

func TestServerErrorsLogAtWarn(t *testing.T) {
	router, logs := newRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.EqualValues(t, 500, entries[0].ContextMap()["status"])
}

func TestSpanDuration(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New(zap.New(core))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracer.now = func() time.Time { return now }

	span, ctx := tracer.StartSpan(WithRequestID(context.Background(), "r1"), "save")
	assert.Equal(t, "r1", RequestID(ctx))
	now = now.Add(250 * time.Millisecond)
	tracer.Finish(span)

	assert.Equal(t, 250*time.Millisecond, span.Duration)
	assert.Equal(t, 1, logs.Len())
}
