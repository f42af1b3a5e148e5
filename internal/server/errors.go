package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lox/settlersforbots/internal/advice"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/session"
	"github.com/lox/settlersforbots/internal/store"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, arbiter.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrRoomNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, arbiter.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, session.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, arbiter.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, session.ErrRoomFull):
		return http.StatusConflict, "room_full"
	case errors.Is(err, arbiter.ErrFatal):
		return http.StatusInternalServerError, "fatal"
	case errors.Is(err, game.ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action"
	case errors.Is(err, session.ErrInvalidRequest), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, advice.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Ignore write errors on disconnected clients
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorData{Error: err.Error(), Code: code})
}
