package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/growfluent/internal/oracle"
	"github.com/conorfennell/growfluent/internal/session"
	"github.com/conorfennell/growfluent/internal/storage"
)

// errBadRequest marks malformed input.
var errBadRequest = errors.New("bad request")

// maxBodyBytes leaves room for base64 encoded audio answers.
const maxBodyBytes = 16 << 20

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to its HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, errBadRequest), errors.As(err, &verrs):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, session.ErrSelectionRefused):
		return http.StatusUnprocessableEntity, "SELECTION_REFUSED"
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrUnexpectedCard):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, oracle.ErrNotConfigured):
		return http.StatusServiceUnavailable, "ORACLE_DISABLED"
	case errors.Is(err, oracle.ErrFailed):
		return http.StatusBadGateway, "ORACLE_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Unhandled error", "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	respondJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: msg}})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"INTERNAL_SERVER_ERROR","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return badRequest("Content-Type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("malformed JSON: %v", err)
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}
