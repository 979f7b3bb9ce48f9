package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/identity"
)

type createSessionRequest struct {
	UserID   *string         `json:"userId"`
	Metadata json.RawMessage `json:"metadata"`
}

type createSessionResponse struct {
	SessionID string          `json:"sessionId"`
	Session   *domain.Session `json:"session"`
}

type sessionResponse struct {
	Session *domain.Session `json:"session"`
}

// updateSessionRequest keeps pointers so absent fields stay untouched.
type updateSessionRequest struct {
	SessionID   string                `json:"sessionId"`
	Status      *domain.SessionStatus `json:"status"`
	CurrentStep *int                  `json:"currentStep"`
	Metadata    json.RawMessage       `json:"metadata"`
}

// CreateSession starts a new session. An empty body is an anonymous session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.writeError(w, r, err)
		return
	}
	if req.UserID == nil {
		if sub := identity.UserIDFromContext(r.Context()); sub != "" {
			req.UserID = &sub
		}
	}

	session, err := h.svc.Create(r.Context(), req.UserID, req.Metadata)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, createSessionResponse{SessionID: session.ID, Session: session})
}

// GetSession returns the session named by the sessionId query parameter.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if session.Answers == nil {
		session.Answers = []*domain.Answer{}
	}
	JSON(w, http.StatusOK, sessionResponse{Session: session})
}

// UpdateSession applies a partial update.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	patch := domain.SessionPatch{
		Status:      req.Status,
		CurrentStep: req.CurrentStep,
		Metadata:    req.Metadata,
	}
	if string(patch.Metadata) == "null" {
		patch.Metadata = nil
	}

	session, err := h.svc.Update(r.Context(), req.SessionID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sessionResponse{Session: session})
}
