package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StandardResponse is the envelope of every successful API response.
type StandardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the envelope of every failed API response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, StandardResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponseWithCode sends an error envelope with a custom status code.
func ErrorResponseWithCode(c *gin.Context, statusCode int, message string, err error) {
	ErrorResponseWithData(c, statusCode, message, err, nil)
}

// ErrorResponseWithData sends an error envelope that still carries a payload,
// such as the partial result of a run that ended early.
func ErrorResponseWithData(c *gin.Context, statusCode int, message string, err error, data any) {
	errorMsg := ""
	if err != nil {
		errorMsg = err.Error()
	}
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Message: message,
		Error:   errorMsg,
		Code:    statusCode,
		Data:    data,
	})
}

func BadRequestError(c *gin.Context, message string, err error) {
	ErrorResponseWithCode(c, http.StatusBadRequest, message, err)
}

func InternalServerError(c *gin.Context, message string, err error) {
	ErrorResponseWithCode(c, http.StatusInternalServerError, message, err)
}

func UnauthorizedError(c *gin.Context, message string, err error) {
	ErrorResponseWithCode(c, http.StatusUnauthorized, message, err)
}

func ConflictError(c *gin.Context, message string) {
	ErrorResponseWithCode(c, http.StatusConflict, message, nil)
}

func ValidationError(c *gin.Context, err error) {
	BadRequestError(c, "Validation failed", err)
}
