package eventstore

// DomainEvent is the external, typed representation of an event: whatever
// the caller's command/aggregate layer produces and consumes. The engine
// never looks inside it — it hands DomainEvent to a Serializer and stores
// whatever bytes come back. Serialization is an external collaborator, not
// an engine concern.
type DomainEvent struct {
	Type     string
	Revision int
	Payload  interface{}
	Metadata map[string]string
}

// Serializer converts a DomainEvent to/from the payload/metadata blob pair
// persisted alongside an event row.
type Serializer interface {
	// Serialize encodes evt into opaque payload and metadata bytes.
	Serialize(evt DomainEvent) (payload, metadata []byte, err error)

	// Deserialize decodes a stored row's payload/metadata back into a
	// DomainEvent, given the payload_type/payload_revision recorded on the
	// row. Implementations that also hold an Upcaster pipeline should
	// apply it here before returning, so callers above the engine only
	// ever see the latest revision's shape.
	Deserialize(payloadType string, payloadRevision int, payload, metadata []byte) (DomainEvent, error)
}
