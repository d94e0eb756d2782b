package session

import "time"

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	UserID       string `json:"user_id" validate:"omitempty,max=128"`
	LanguageCode string `json:"language_code" validate:"omitempty,alpha,min=2,max=8"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	LanguageCode    string    `json:"language_code"`
	InitialRoute    string    `json:"initial_route"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
