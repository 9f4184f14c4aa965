package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/service"
)

type Handler struct {
	svc    *service.Services
	logger *slog.Logger
}

func New(svc *service.Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// serverError maps bridge errors to client errors and logs the rest.
func (h *Handler) serverError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	var (
		urlErr *bridge.InvalidURLError
		serErr *bridge.SerializationError
	)
	switch {
	case errors.As(err, &urlErr), errors.As(err, &serErr), errors.Is(err, bridge.ErrEmptyName),
		errors.Is(err, bridge.ErrInvalidFunction):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, bridge.ErrClosed):
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Error("handler error", "path", r.URL.Path, "err", err)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
