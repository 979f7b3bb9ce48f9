package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NextQuestion returns the next step for a session in the configured mode.
func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	step, err := h.svc.Next(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, step)
}

// Advance walks the local question bank regardless of mode.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	step, err := h.svc.Advance(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, step)
}

// Catalog returns every question, section and checkpoint.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	batch, err := h.svc.Catalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, batch)
}
