package http

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

func ping(addr string, r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = addr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_PerClientBuckets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, ping("10.0.0.1:1234", r).Code)
	assert.Equal(t, http.StatusOK, ping("10.0.0.1:1234", r).Code)
	assert.Equal(t, http.StatusTooManyRequests, ping("10.0.0.1:1234", r).Code,
		"burst exhausted")

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, ping("10.0.0.2:1234", r).Code)
}

func TestLoggingMiddleware_StructuredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(LoggingMiddleware(zap.New(core).Sugar()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	ping("10.0.0.1:1234", r)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/ping", fields["path"])
	assert.EqualValues(t, http.StatusNoContent, fields["status"])
	assert.Equal(t, "10.0.0.1", fields["clientIp"])
}
