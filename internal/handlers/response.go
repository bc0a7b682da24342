package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"genstudio/internal/models"
	"genstudio/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ResponseBody{
		Status:     "success",
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// writeError sends the error envelope. message is a string or a list of
// strings.
func writeError(w http.ResponseWriter, status int, message interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ResponseBody{
		Status:     "error",
		StatusCode: status,
		Message:    message,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var (
		validation   *services.ValidationError
		conflict     *services.ConflictError
		notFound     *services.NotFoundError
		unauthorized *services.UnauthorizedError
		forbidden    *services.ForbiddenError
		rateLimited  *services.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Messages())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Message)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Message)
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusUnauthorized, unauthorized.Message)
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, forbidden.Message)
	case errors.As(err, &rateLimited):
		writeError(w, http.StatusTooManyRequests, rateLimited.Message)
	default:
		logger.WithError(err).Error("unhandled service error")
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
