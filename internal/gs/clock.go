package gs

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so cycle timing and event millis are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// UTCMillis returns the clock's current time as milliseconds since the epoch,
// the timestamp format carried by FileEvents.
func UTCMillis(c Clock) int64 {
	return c.Now().UTC().UnixMilli()
}

// IDGenerator produces event and client identifiers.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
