// Package domain contains core domain types for the SELVE assessment service.
package domain

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of an assessment attempt.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in-progress"
	StatusCompleted  SessionStatus = "completed"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// Session is one assessment attempt.
type Session struct {
	ID          string          `json:"id"`
	UserID      *string         `json:"userId"`
	Status      SessionStatus   `json:"status"`
	CurrentStep int             `json:"currentStep"`
	Metadata    json.RawMessage `json:"metadata"`
	CompletedAt *time.Time      `json:"completedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Answers     []*Answer       `json:"answers,omitempty"`
}

// IsCompleted returns true once the session has transitioned to completed.
func (s *Session) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// Complete moves the session to completed and stamps CompletedAt.
// It returns false when the session was already completed, leaving CompletedAt untouched.
func (s *Session) Complete(now time.Time) bool {
	if s.IsCompleted() && s.CompletedAt != nil {
		return false
	}
	s.Status = StatusCompleted
	if s.CompletedAt == nil {
		s.CompletedAt = &now
	}
	s.UpdatedAt = now
	return true
}

// SessionPatch is a partial update. A nil field is left untouched.
type SessionPatch struct {
	Status      *SessionStatus
	CurrentStep *int
	Metadata    json.RawMessage
}

// Empty returns true if the patch touches no field.
func (p SessionPatch) Empty() bool {
	return p.Status == nil && p.CurrentStep == nil && p.Metadata == nil
}
