package gs

import (
	"errors"

	"groupsync/internal/pathid"
)

// Error taxonomy. Callers match with errors.Is; lower layers attach these to
// the underlying cause with fmt.Errorf("...: %w: %w", ErrX, err).
var (
	ErrPathTraversal      = pathid.ErrTraversalRejected
	ErrInvalidEvent       = errors.New("invalid event")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnknownGroup       = errors.New("unknown watch group")
	ErrUnknownClient      = errors.New("unknown client")
	ErrGroupConflict      = errors.New("watch group conflict")
	ErrNotFound           = errors.New("not found")
	ErrTransferIncomplete = errors.New("transfer incomplete")
	ErrNetwork            = errors.New("network failure")
	ErrStore              = errors.New("store failure")
)
