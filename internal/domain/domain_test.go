package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateProgress(t *testing.T) {
	tests := []struct {
		total, answered int
		want            Progress
	}{
		{10, 3, Progress{Current: 3, Total: 10, Percentage: 30}},
		{3, 1, Progress{Current: 1, Total: 3, Percentage: 33}},
		{3, 2, Progress{Current: 2, Total: 3, Percentage: 67}},
		{4, 4, Progress{Current: 4, Total: 4, Percentage: 100}},
		{4, 6, Progress{Current: 6, Total: 4, Percentage: 100}},
		{0, 0, Progress{Current: 0, Total: 0, Percentage: 100}},
		{5, -1, Progress{Current: 0, Total: 5, Percentage: 0}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.answered, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateProgress(tt.total, tt.answered))
		})
	}
}

func TestSessionComplete(t *testing.T) {
	s := &Session{Status: StatusInProgress}
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, s.Complete(first))
	assert.True(t, s.IsCompleted())
	assert.Equal(t, first, *s.CompletedAt)

	assert.False(t, s.Complete(first.Add(time.Hour)))
	assert.Equal(t, first, *s.CompletedAt)
}

func TestSessionPatchEmpty(t *testing.T) {
	assert.True(t, SessionPatch{}.Empty())
	step := 0
	assert.False(t, SessionPatch{CurrentStep: &step}.Empty())
	assert.False(t, SessionPatch{Metadata: []byte(`{}`)}.Empty())
}

func TestSortQuestions(t *testing.T) {
	qs := []*Question{
		{ID: "c", Order: 2},
		{ID: "b", Order: 1},
		{ID: "a", Order: 2},
	}
	SortQuestions(qs)
	assert.Equal(t, []string{"b", "a", "c"}, []string{qs[0].ID, qs[1].ID, qs[2].ID})

	c := &Catalog{Questions: qs}
	assert.Equal(t, "a", c.Question("a").ID)
	assert.Nil(t, c.Question("zzz"))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("wrap: %w", NewValidationError("answer", "is required"))))
	assert.False(t, IsValidation(errors.New("plain")))

	assert.True(t, IsNotFound(&NotFoundError{Kind: "session", ID: "x"}))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", ErrNotFound)))
	assert.False(t, IsNotFound(nil))

	assert.Equal(t, `session "x" not found`, (&NotFoundError{Kind: "session", ID: "x"}).Error())
	assert.Equal(t, "answer: is required", NewValidationError("answer", "is required").Error())

	up := &UpstreamError{StatusCode: 503}
	assert.Contains(t, up.Error(), "503")
}

func TestAnsweredSet(t *testing.T) {
	set := AnsweredSet([]*Answer{{QuestionID: "q1"}, {QuestionID: "q2"}, {QuestionID: "q1"}})
	assert.Len(t, set, 2)
}
