// internal/handlers/helpers.go

package handlers

import (
	"github.com/gin-gonic/gin"
)

// returnError keeps error bodies uniform across the API so the dashboard
// can always read a single "message" field.
func returnError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"message": message,
	})
}
