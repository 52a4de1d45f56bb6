package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"groupsync/internal/gs"
)

var codeErrors = map[string]error{
	gs.CodePathTraversal:      gs.ErrPathTraversal,
	gs.CodeInvalidEvent:       gs.ErrInvalidEvent,
	gs.CodeInvalidRequest:     gs.ErrInvalidRequest,
	gs.CodeTransferIncomplete: gs.ErrTransferIncomplete,
	gs.CodeUnknownGroup:       gs.ErrUnknownGroup,
	gs.CodeUnknownClient:      gs.ErrUnknownClient,
	gs.CodeNotFound:           gs.ErrNotFound,
	gs.CodeGroupConflict:      gs.ErrGroupConflict,
	gs.CodeTooLarge:           ErrTooLarge,
	gs.CodeStoreFailure:       gs.ErrStore,
}

// responseError turns an error response into the matching sentinel. Server
// side failures are also ErrNetwork so the session retries them.
func responseError(resp *http.Response) error {
	var body gs.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}

	sentinel, known := codeErrors[body.Code]
	switch {
	case resp.StatusCode >= 500 && known:
		return fmt.Errorf("%w: %w: %s", gs.ErrNetwork, sentinel, body.Error)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d: %s", gs.ErrNetwork, resp.StatusCode, body.Error)
	case known:
		return fmt.Errorf("%w: %s", sentinel, body.Error)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body.Error)
	}
}
