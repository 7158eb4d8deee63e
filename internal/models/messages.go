package models

import "github.com/google/uuid"

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type SubmissionCounts struct {
	View     string `json:"view"`
	Pending  int    `json:"pending"`
	Reviewed int    `json:"reviewed"`
}

type ExtractionResult struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	Characters   int       `json:"characters"`
	Error        string    `json:"error,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
