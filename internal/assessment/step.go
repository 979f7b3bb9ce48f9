package assessment

import (
	"encoding/json"

	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/render"
)

// Mode selects how the next question is chosen.
type Mode string

const (
	// ModeLocal walks the stored question bank in ascending order.
	ModeLocal Mode = "local"
	// ModeAdaptive delegates selection to the external engine.
	ModeAdaptive Mode = "adaptive"
)

// QuestionView is a question plus its render descriptor.
type QuestionView struct {
	*domain.Question
	View render.View `json:"view"`
}

// Step is the answer to "what comes next" for a session.
type Step struct {
	Done       bool               `json:"done,omitempty"`
	Question   *QuestionView      `json:"question,omitempty"`
	Checkpoint *domain.Checkpoint `json:"checkpoint,omitempty"`
	Progress   domain.Progress    `json:"progress"`
}

func (s *Service) view(q *domain.Question, value json.RawMessage) *QuestionView {
	return &QuestionView{Question: q, View: s.renderers.Render(q.Type, q.Config, value)}
}

// nextUnanswered returns the lowest-order question not in answered.
func nextUnanswered(questions []*domain.Question, answered map[string]struct{}) *domain.Question {
	ordered := make([]*domain.Question, len(questions))
	copy(ordered, questions)
	domain.SortQuestions(ordered)
	for _, q := range ordered {
		if _, ok := answered[q.ID]; !ok {
			return q
		}
	}
	return nil
}

// answeredCount counts questions in the bank that have an answer.
func answeredCount(questions []*domain.Question, answered map[string]struct{}) int {
	n := 0
	for _, q := range questions {
		if _, ok := answered[q.ID]; ok {
			n++
		}
	}
	return n
}
