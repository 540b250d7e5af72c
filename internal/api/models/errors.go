package models

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// MsgNotAuthenticated is the only text a client sees for any authentication
// failure.
const MsgNotAuthenticated = "Not authenticated"

// APIError represents a structured API error
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, statusCode int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to the error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// ErrUnauthorized is the uniform authentication failure.
func ErrUnauthorized() *APIError {
	return NewAPIError(ErrCodeUnauthorized, MsgNotAuthenticated, http.StatusUnauthorized)
}

// Abort writes err as a failed BaseResponse and stops the handler chain.
func Abort(c *gin.Context, err *APIError) {
	c.AbortWithStatusJSON(err.StatusCode, BaseResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
		},
		Timestamp: time.Now().Unix(),
		RequestID: c.GetString("request_id"),
	})
}
