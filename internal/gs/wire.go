package gs

// Request headers identifying the calling client.
const (
	HeaderClientID       = "X-Client-Id"
	HeaderClientHostname = "X-Client-Hostname"
	HeaderEventSequence  = "X-Event-Sequence"
	HeaderContentSHA256  = "X-Content-Sha256"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodePathTraversal      = "path_traversal_rejected"
	CodeInvalidEvent       = "invalid_event"
	CodeInvalidRequest     = "invalid_request"
	CodeTransferIncomplete = "transfer_incomplete"
	CodeUnknownGroup       = "unknown_group"
	CodeUnknownClient      = "unknown_client"
	CodeNotFound           = "not_found"
	CodeGroupConflict      = "group_conflict"
	CodeTooLarge           = "too_large"
	CodeStagingFull        = "staging_full"
	CodeStoreFailure       = "store_failure"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RegisterClientRequest registers or refreshes a client.
type RegisterClientRequest struct {
	ClientID          string `json:"client_id,omitempty"`
	HostName          string `json:"host_name"`
	MinPollIntervalMs int64  `json:"min_poll_interval_ms"`
}

// GroupRequest names a group to create or rename.
type GroupRequest struct {
	Name string `json:"name"`
}

// PlanRequest asks for the reconciliation plan of a client manifest.
type PlanRequest struct {
	GroupID  int64           `json:"group_id"`
	Manifest []ManifestEntry `json:"manifest"`
}

// VersionResponse is returned by /version.
type VersionResponse struct {
	Version string `json:"version"`
}

// Multipart field names of an upload. The file part must come last.
const (
	UploadFieldGroupID   = "group_id"
	UploadFieldPath      = "path"
	UploadFieldUTCMillis = "utc_millis"
	UploadFieldSize      = "size"
	UploadFieldChecksum  = "checksum"
	UploadFieldFile      = "file"
)
