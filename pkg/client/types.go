package client

import (
	"fmt"
	"time"
)

// Task mirrors the record returned by the REST surface.
type Task struct {
	PID      int64     `json:"pid"`
	Task     string    `json:"task"`
	Priority string    `json:"priority"`
	Created  time.Time `json:"created"`
}

// CreateRequest is the body of POST /tasks. Type is NAIVE, FIFO or PRIORITY;
// Priority is LOW, MEDIUM or HIGH. Both are case-insensitive.
type CreateRequest struct {
	Task     string `json:"task"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
}

type removeRequest struct {
	List []int64 `json:"list"`
}

type capacityBody struct {
	Max int `json:"max"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// APIError is returned for any non-2xx answer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
