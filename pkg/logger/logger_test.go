package logger

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/batch-admin-api/pkg/config"
)

func TestNewWithRotatingFile(t *testing.T) {
	cfg := &config.Config{Env: config.EnvDevelopment}
	cfg.Log.Format = "console"
	cfg.Log.Level = "debug"
	cfg.Log.File = filepath.Join(t.TempDir(), "api.log")
	cfg.Log.MaxSizeMB = 1

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("hello")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/bad"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/bad", entries[1].ContextMap()["path"])
}
