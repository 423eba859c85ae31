package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-chat-service/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints exposing live registry state.
func RegisterDebugRoutes(router *gin.Engine, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/hub", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connections": hub.ClientCount(),
			"rooms":       hub.RoomCount(),
		})
	})

	router.GET("/debug/online/:user_id", func(c *gin.Context) {
		userID := c.Param("user_id")
		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
			"online":  hub.IsOnline(userID),
		})
	})
}
