package domain

import (
	"encoding/json"
	"time"
)

// Answer is the stored response to one question within a session.
// There is at most one Answer per (SessionID, QuestionID).
type Answer struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId"`
	QuestionID string          `json:"questionId"`
	Value      json.RawMessage `json:"answer"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// AnsweredSet returns the question IDs covered by answers.
func AnsweredSet(answers []*Answer) map[string]struct{} {
	set := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		set[a.QuestionID] = struct{}{}
	}
	return set
}
