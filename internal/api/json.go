package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/starford/tablekit/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrPathSecurity):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrParse), errors.Is(err, apperr.ErrType), errors.Is(err, apperr.ErrForeignKey):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrIO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status for err. Internal errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		attrs = append(attrs, slog.String("error", err.Error()))
		slog.Error(op+" failed", attrs...)
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	if status == http.StatusNotFound {
		writeJSON(w, status, errorBody("not found"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
