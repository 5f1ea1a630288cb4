package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err onto an HTTP status and writes it.
func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

// statusFor maps the error taxonomy onto HTTP statuses. Backend 4xx answers
// pass through; anything else from the backend is a bad gateway.
func statusFor(err error) int {
	var (
		ve *models.ValidationError
		nf *models.NotFoundError
		te *models.TimeoutError
		re *models.RequestError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, models.ErrJobNotTerminal):
		return http.StatusConflict
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.As(err, &re):
		if re.Status >= 400 && re.Status < 500 {
			return re.Status
		}
	}
	return http.StatusBadGateway
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.ValidationError{Message: "invalid request body"}
	}
	return nil
}
