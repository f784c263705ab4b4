package server

import (
	"time"

	"github.com/mahir/coursebot/pkg/session"
)

// ChatRequest is the incoming chat payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the chat reply payload.
type ChatResponse struct {
	Message   string    `json:"message"`
	Course    string    `json:"course"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Uptime    float64   `json:"uptime_seconds"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the error payload for all failure responses.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CoursesResponse lists the available course categories.
type CoursesResponse struct {
	Courses     []string `json:"courses"`
	Description string   `json:"description"`
}

// SessionListResponse lists active session identifiers.
type SessionListResponse struct {
	Sessions   []string `json:"sessions"`
	TotalCount int      `json:"total_count"`
}

// HistoryResponse returns a session's retained messages.
type HistoryResponse struct {
	SessionID     string            `json:"session_id"`
	Messages      []session.Message `json:"messages"`
	TotalMessages int               `json:"total_messages"`
}

// SessionActionResponse reports the outcome of a clear or delete.
type SessionActionResponse struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}
