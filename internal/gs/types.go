package gs

import (
	"fmt"
	"time"
)

// EventKind is the kind of a FileEvent.
type EventKind string

const (
	EventChange EventKind = "change"
	EventDelete EventKind = "delete"
)

// ParseEventKind converts a wire value into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventChange, EventDelete:
		return EventKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, s)
	}
}

// Client is one synchronizing device.
type Client struct {
	ID                string    `json:"client_id"`
	HostName          string    `json:"host_name"`
	MinPollIntervalMs int64     `json:"min_poll_interval_ms"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ServerWatchGroup is a logical sync group shared across devices.
type ServerWatchGroup struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClientWatchGroup maps one client's local directory to a ServerWatchGroup.
type ClientWatchGroup struct {
	ID                 int64     `json:"id"`
	ClientID           string    `json:"client_id"`
	LocalPath          string    `json:"local_path"`
	ExcludeDotDirs     bool      `json:"exclude_dot_dirs"`
	ServerWatchGroupID int64     `json:"server_watch_group_id"`
	ExcludedDirs       []string  `json:"excluded_dirs"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// FileEvent is one immutable entry of a group's history. Sequence is the
// per-group ingestion order and the only tie-breaker between events.
type FileEvent struct {
	ID        string    `json:"id"`
	Sequence  int64     `json:"sequence"`
	GroupID   int64     `json:"group_id"`
	ClientID  string    `json:"client_id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UTCMillis int64     `json:"utc_millis"`
	Kind      EventKind `json:"kind"`
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the event leaves its path present.
func (e *FileEvent) Live() bool {
	return e.Kind == EventChange
}

// CandidateEvent is an event submitted for ingestion, before a sequence is
// assigned.
type CandidateEvent struct {
	GroupID   int64     `json:"group_id"`
	ClientID  string    `json:"-"`
	Path      string    `json:"path"`
	Kind      EventKind `json:"kind"`
	Size      int64     `json:"size"`
	UTCMillis int64     `json:"utc_millis"`
	Checksum  string    `json:"checksum,omitempty"`

	// Staged marks a change whose content was just stored by an upload.
	Staged bool `json:"-"`
}

// UploadRequest describes an incoming content upload. Size is the declared
// length, or -1 when unknown. Checksum is optional.
type UploadRequest struct {
	GroupID   int64
	ClientID  string
	Path      string
	UTCMillis int64
	Size      int64
	Checksum  string
}

// MappingRequest registers a client's local directory against a group name.
type MappingRequest struct {
	ClientID       string   `json:"client_id"`
	LocalPath      string   `json:"local_path"`
	GroupName      string   `json:"group_name"`
	ExcludeDotDirs bool     `json:"exclude_dot_dirs"`
	ExcludedDirs   []string `json:"excluded_dirs"`
}

// ManifestEntry is one file as observed by a client.
type ManifestEntry struct {
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	ModifiedMillis int64  `json:"modified_millis"`
	Checksum       string `json:"checksum,omitempty"`
}

// Pull instructs a client to download the current content of a path.
type Pull struct {
	Path         string `json:"path"`
	ExpectedSize int64  `json:"expected_size"`
	Checksum     string `json:"checksum,omitempty"`
}

// DeleteLocal instructs a client to remove a path that is tombstoned on the
// server.
type DeleteLocal struct {
	Path string `json:"path"`
}

// Plan is the reconciliation plan for one client and group, computed at
// Cursor.
type Plan struct {
	GroupID int64         `json:"group_id"`
	Cursor  int64         `json:"cursor"`
	Pulls   []Pull        `json:"pulls"`
	Deletes []DeleteLocal `json:"deletes"`
}

// Empty reports whether the plan requires no local action.
func (p *Plan) Empty() bool {
	return len(p.Pulls) == 0 && len(p.Deletes) == 0
}
