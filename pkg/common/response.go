package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// SuccessResponse sends a 200 response with data
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// SuccessResponseWithMeta sends a 200 response with data and pagination meta
func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// CreatedResponse sends a 201 response with data
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// ErrorResponse sends an error response with the given status code
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, Response{Success: false, Error: message})
}

// AppErrorResponse sends an error response derived from an AppError
func AppErrorResponse(c *gin.Context, err *AppError) {
	c.JSON(err.Code, Response{Success: false, Error: err.Message, Details: err.Details})
}
