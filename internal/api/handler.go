// Package api provides HTTP handlers for the SELVE API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/selve/internal/assessment"
	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/identity"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = domain.NewValidationError("", "request body is required")

// Handler provides common handler utilities.
type Handler struct {
	svc    *assessment.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler over the assessment service.
func NewHandler(svc *assessment.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers session, answer and question routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.GetSession)
		r.Patch("/", h.UpdateSession)
		r.Post("/{sessionId}/advance", h.Advance)
	})
	r.Route("/answers", func(r chi.Router) {
		r.Post("/", h.RecordAnswer)
		r.Get("/", h.ListAnswers)
	})
	r.Route("/questions", func(r chi.Router) {
		r.Get("/", h.Catalog)
		r.Get("/{sessionId}", h.NextQuestion)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON request body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return domain.NewValidationError("", "invalid JSON body: %v", err)
	}
	return nil
}

// writeError maps service errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *domain.ValidationError
		upstream    *domain.UpstreamError
		persistence *domain.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		Error(w, http.StatusBadRequest, validation.Error())
	case domain.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case errors.As(err, &upstream):
		h.logger.Warn("Adaptive engine call failed", "path", r.URL.Path, "ip", identity.IPFromRequest(r), "error", err)
		status := http.StatusBadGateway
		if upstream.Timeout {
			status = http.StatusGatewayTimeout
		}
		Error(w, status, upstream.Error())
	case errors.As(err, &persistence):
		h.logger.Error("Store operation failed",
			"path", r.URL.Path,
			"ip", identity.IPFromRequest(r),
			"op", persistence.Op,
			"retryable", persistence.Retryable,
			"error", persistence.Err)
		JSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "failed to " + persistence.Op,
			"retryable": persistence.Retryable,
		})
	default:
		h.logger.Error("Unhandled error", "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
