package httpapi

import (
	"github.com/gin-gonic/gin"
)

// jsonResponse отправляет успешный ответ в общем конверте.
func jsonResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// jsonError отправляет ошибку в общем конверте.
func jsonError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	})
}
