// Package models defines the shared data types for dreamstone.
//
// It contains the flow request/response records exchanged with the prompt
// flows, the persistent records for users, reading progress and flow
// invocations, and the standard API response envelope.
package models

import (
	"fmt"
	"strings"
	"time"
)

// FlowRequest is the named-field input of a prompt flow. Optional fields may
// be absent from the map; required fields must be present and non-empty.
type FlowRequest map[string]string

// FlowResponse is the named-field output of a prompt flow. Required output
// fields are always present and non-empty on success.
type FlowResponse map[string]string

// Field returns the named request field, trimmed of surrounding whitespace.
func (r FlowRequest) Field(name string) string {
	return strings.TrimSpace(r[name])
}

// InvocationStatus describes the outcome of a single flow invocation.
type InvocationStatus string

const (
	// InvocationStatusOK indicates the provider reply passed output validation.
	InvocationStatusOK InvocationStatus = "ok"
	// InvocationStatusFallback indicates the flow substituted its canned fallback body.
	InvocationStatusFallback InvocationStatus = "fallback"
	// InvocationStatusError indicates the flow returned an error to the caller.
	InvocationStatusError InvocationStatus = "error"
)

// User represents a registered reader account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Credentials carries a username/password pair for register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks that both credential fields are usable.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("missing required field: username")
	}
	if len(c.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// ReadingProgress records where a reader currently is in the novel.
type ReadingProgress struct {
	Username  string    `json:"username"`
	Chapter   int       `json:"chapter"`
	Position  int       `json:"position"` // rune offset within the chapter body
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the progress update refers to a plausible location.
func (p ReadingProgress) Validate() error {
	if p.Chapter < 1 {
		return fmt.Errorf("chapter must be at least 1, got %d", p.Chapter)
	}
	if p.Position < 0 {
		return fmt.Errorf("position must not be negative, got %d", p.Position)
	}
	return nil
}

// FlowInvocation is one entry in the flow audit log. It backs the learning
// analytics feature and the /stats endpoint.
type FlowInvocation struct {
	ID        string           `json:"id"`
	Username  string           `json:"username"`
	Flow      string           `json:"flow"`
	Status    InvocationStatus `json:"status"`
	LatencyMS int64            `json:"latency_ms"`
	Time      int64            `json:"time"`
}

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
