package model

import (
	"fmt"
	"time"
)

// Response is the JSON envelope of every monitor API reply.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// APIError is a machine-readable error payload.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// API error codes.
const (
	ErrInternal = "internal_error"
	ErrNotFound = "not_found"
)

// NewNotFoundError builds the standard not-found payload.
func NewNotFoundError(kind, id string) *APIError {
	return &APIError{Code: ErrNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}
