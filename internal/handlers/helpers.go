package handlers

import (
	"github.com/gin-gonic/gin"

	"realtime-chat-service/internal/middleware"
	"realtime-chat-service/internal/models"
)

func currentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
