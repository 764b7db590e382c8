package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kerhoff/wishlist/internal/service"
)

// apiError is the canonical JSON error envelope returned by the API.
type apiError struct {
	Code    string
	Message string
	Status  int
}

func newError(code, message string, status int) apiError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return apiError{Code: code, Message: message, Status: status}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, e apiError) {
	payload := map[string]any{
		"error":   sanitize(e.Code, 80),
		"message": sanitize(e.Message, 512),
		"status":  e.Status,
	}
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		payload["request_id"] = sanitize(requestID, 80)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("failed to encode JSON error")
	}
}

// respondServiceError maps service failures onto HTTP statuses. Anything untyped is a 500.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		s.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("Request failed")
		s.writeError(w, r, newError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
		return
	}

	status := http.StatusInternalServerError
	switch svcErr.Kind {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindAuthorization:
		status = http.StatusUnauthorized
	case service.KindDependencyUnavailable:
		status = http.StatusServiceUnavailable
		s.logger.WithError(err).Warn("Dependency unavailable")
	}
	s.writeError(w, r, newError(svcErr.Code, svcErr.Message, status))
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
