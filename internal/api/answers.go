package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/selve/internal/domain"
)

type recordAnswerRequest struct {
	SessionID  string          `json:"sessionId"`
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

type recordAnswerResponse struct {
	Success     bool           `json:"success"`
	Answer      *domain.Answer `json:"answer"`
	CurrentStep int            `json:"currentStep"`
}

type answersResponse struct {
	Answers []*domain.Answer `json:"answers"`
}

// RecordAnswer stores or overwrites the answer for a question.
func (h *Handler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req recordAnswerRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	answer, step, err := h.svc.RecordAnswer(r.Context(), req.SessionID, req.QuestionID, req.Answer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, recordAnswerResponse{Success: true, Answer: answer, CurrentStep: step})
}

// ListAnswers returns the session's answers in creation order.
func (h *Handler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	answers, err := h.svc.Answers(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if answers == nil {
		answers = []*domain.Answer{}
	}
	JSON(w, http.StatusOK, answersResponse{Answers: answers})
}
