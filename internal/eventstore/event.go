package eventstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/aevon-lab/eventstore/internal/eventstore/token"
)

// TimestampLayout is the ISO-8601 millisecond-precision, UTC, lexicographically
// sortable layout used for the timestamp column. Storing
// timestamps as text rather than a native timestamp column is intentional —
// it sidesteps driver/dialect differences in millisecond precision while
// preserving ordering under plain string comparison. Do not change this
// layout without auditing every comparison site in the postgres package.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// EventMessage is one domain event or snapshot row. Payload and
// Metadata are opaque blobs to the engine; a Serializer produces and
// consumes them on the caller's behalf.
type EventMessage struct {
	// GlobalIndex is assigned by the database on append; zero until then.
	// Unused for snapshot rows.
	GlobalIndex int64

	EventID         string
	AggregateID     string
	SequenceNumber  int64
	AggregateType   string
	Timestamp       time.Time
	PayloadType     string
	PayloadRevision int
	Payload         []byte
	Metadata        []byte
}

// TrackedEvent pairs a global-stream event with the token a resuming reader
// should present to avoid re-delivering it.
type TrackedEvent struct {
	Event EventMessage
	Token token.Token
}

// NewEventID generates an event_id for a caller that has no natural
// idempotency key of its own to supply.
func NewEventID() string {
	return uuid.NewString()
}
