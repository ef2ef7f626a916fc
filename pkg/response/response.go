package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: message, Data: data})
}

// FailWithStatus writes the flat error body the audio endpoints speak.
func FailWithStatus(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
