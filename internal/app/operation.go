package app

import "time"

// Role is the kind of process an App runs.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Operation identifies one process run in the log. Every record it writes
// carries ID.
type Operation struct {
	ID      string
	Role    Role
	Started time.Time
}

// NewOperation creates an Operation started at now.
func NewOperation(role Role, now time.Time) *Operation {
	now = now.UTC()
	return &Operation{
		ID:      string(role) + "-" + now.Format("20060102T150405Z"),
		Role:    role,
		Started: now,
	}
}

// LogFile is the rotating log file name of the role.
func (op *Operation) LogFile() string {
	return "gs-" + string(op.Role) + ".log"
}
