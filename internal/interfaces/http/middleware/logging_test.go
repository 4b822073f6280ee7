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
	"go.uber.org/zap/zaptest"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
)

func newObservedLogger(t *testing.T) (logging.Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), buf, zapcore.DebugLevel)
	return logging.NewLoggerFromCore(core), buf
}

func loggedRouter(logger logging.Logger, config LoggingConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RequestLogging(logger, config))
	r.GET("/items", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/missing", func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{}) })
	r.GET("/boom", func(c *gin.Context) { c.JSON(http.StatusInternalServerError, gin.H{}) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequestLogging_LogsStatusAndPath(t *testing.T) {
	logger, buf := newObservedLogger(t)
	r := loggedRouter(logger, DefaultLoggingConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items?limit=5", nil))

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"status":200`)
	assert.Contains(t, lines[0], `"path":"/items?limit=5"`)
	assert.Contains(t, lines[0], `"method":"GET"`)
	assert.Contains(t, lines[0], `"request_id"`)
	assert.Contains(t, lines[0], `"level":"info"`)
}

func TestRequestLogging_ClientErrorWarns(t *testing.T) {
	logger, buf := newObservedLogger(t)
	r := loggedRouter(logger, DefaultLoggingConfig())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[0], `"status":404`)
}

func TestRequestLogging_ServerErrorLogsError(t *testing.T) {
	logger, buf := newObservedLogger(t)
	r := loggedRouter(logger, DefaultLoggingConfig())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"error"`)
}

func TestRequestLogging_SkipsConfiguredPaths(t *testing.T) {
	logger, buf := newObservedLogger(t)
	r := loggedRouter(logger, DefaultLoggingConfig())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Empty(t, buf.Lines())
}

func TestRequestLogging_SlowRequestWarns(t *testing.T) {
	logger, buf := newObservedLogger(t)
	config := LoggingConfig{SlowThreshold: 1} // one nanosecond, everything counts as slow
	r := loggedRouter(logger, config)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items", nil))

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[0], "slow")
}
