package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"realtime-chat-service/internal/ws"
)

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDebugRoutes(router, ws.NewHub(), false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/hub", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRoutesEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDebugRoutes(router, ws.NewHub(), true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/hub", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connections":0`)
	assert.Contains(t, rec.Body.String(), `"rooms":0`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/online/alice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"online":false`)
}
