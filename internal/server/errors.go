package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"groupsync/internal/eventstore"
	"groupsync/internal/gs"
	"groupsync/internal/staging"
)

// errorStatus maps an error onto its HTTP status and wire code. Traversal is
// checked before the generic validation errors it is usually joined with.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, gs.ErrPathTraversal):
		return http.StatusBadRequest, gs.CodePathTraversal
	case errors.Is(err, gs.ErrTransferIncomplete):
		return http.StatusBadRequest, gs.CodeTransferIncomplete
	case errors.Is(err, gs.ErrInvalidEvent):
		return http.StatusBadRequest, gs.CodeInvalidEvent
	case errors.Is(err, gs.ErrInvalidRequest):
		return http.StatusBadRequest, gs.CodeInvalidRequest
	case errors.Is(err, gs.ErrUnknownGroup):
		return http.StatusNotFound, gs.CodeUnknownGroup
	case errors.Is(err, gs.ErrUnknownClient):
		return http.StatusNotFound, gs.CodeUnknownClient
	case errors.Is(err, gs.ErrNotFound):
		return http.StatusNotFound, gs.CodeNotFound
	case errors.Is(err, gs.ErrGroupConflict):
		return http.StatusConflict, gs.CodeGroupConflict
	case errors.Is(err, staging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, gs.CodeTooLarge
	case errors.Is(err, staging.ErrFull):
		return http.StatusServiceUnavailable, gs.CodeStagingFull
	default:
		return http.StatusInternalServerError, gs.CodeStoreFailure
	}
}

// writeError sends err as an ErrorResponse. Internal failures are logged and
// their detail is kept off the wire.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal server error"
	case eventstore.IsValidation(err):
		s.logger.Warn("request rejected", "path", r.URL.Path, "client", r.Header.Get(gs.HeaderClientID), "error", err)
	}
	writeJSON(w, status, gs.ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
