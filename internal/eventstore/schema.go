package eventstore

// Schema names the tables and columns the engine reads and writes. It is a
// pure value, immutable after construction, and lets a deployment run
// several engines against differently-named tables in the same database —
// e.g. per-tenant schemas — without the engine hard-coding anything.
//
// Table/column names here are operator configuration, not user input: they
// are read once at startup from the application config (internal/eventstore/config)
// and interpolated into SQL text when the storage adapter is constructed
// (postgres.New).
type Schema struct {
	EventTable    string
	SnapshotTable string

	ColGlobalIndex     string
	ColEventID         string
	ColAggregateID     string
	ColSequenceNumber  string
	ColAggregateType   string
	ColTimestamp       string
	ColPayloadType     string
	ColPayloadRevision string
	ColPayload         string
	ColMetadata        string
}

// DefaultSchema returns the default table/column names.
func DefaultSchema() Schema {
	return Schema{
		EventTable:    "domain_event_entry",
		SnapshotTable: "snapshot_event_entry",

		ColGlobalIndex:     "global_index",
		ColEventID:         "event_id",
		ColAggregateID:     "aggregate_id",
		ColSequenceNumber:  "sequence_number",
		ColAggregateType:   "aggregate_type",
		ColTimestamp:       "timestamp",
		ColPayloadType:     "payload_type",
		ColPayloadRevision: "payload_revision",
		ColPayload:         "payload",
		ColMetadata:        "metadata",
	}
}
