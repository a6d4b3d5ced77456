package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/middleware"
)

// fakePinger reports a fixed connectivity result.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func setupHealthTestRouter(handler *HealthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.New("test")))
	router.GET("/health", handler.Health)
	router.GET("/health/ready", handler.Ready)
	return router
}

func TestHealth(t *testing.T) {
	router := setupHealthTestRouter(NewHealthHandler(nil, "test"))

	w := doRequest(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Environment)
}

func TestReady_FileStore(t *testing.T) {
	router := setupHealthTestRouter(NewHealthHandler(nil, "test"))

	w := doRequest(router, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "file", resp.Store)
}

func TestReady_Connected(t *testing.T) {
	router := setupHealthTestRouter(NewHealthHandler(&fakePinger{}, "test"))

	w := doRequest(router, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "connected", resp.Store)
}

func TestReady_Disconnected(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	router := setupHealthTestRouter(NewHealthHandler(pinger, "test"))

	w := doRequest(router, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "disconnected", resp.Store)
}
