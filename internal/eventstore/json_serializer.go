package eventstore

import (
	"encoding/json"
	"fmt"
)

// JSONSerializer implements Serializer for payload_data_type: bytes.
// Payload and metadata are each encoded as a JSON document, with nil
// metadata producing nil bytes (SQL NULL) rather than the literal string
// "null".
type JSONSerializer struct {
	upcasters      *UpcasterPipeline
	latestRevision func(payloadType string) int
}

// NewJSONSerializer builds a JSONSerializer. pipeline may be nil if no
// upcasting is configured. latestRevision resolves the current revision a
// caller expects to see for a given payload type; if nil, rows are decoded
// as stored with no upcasting attempted.
func NewJSONSerializer(pipeline *UpcasterPipeline, latestRevision func(payloadType string) int) *JSONSerializer {
	return &JSONSerializer{upcasters: pipeline, latestRevision: latestRevision}
}

func (s *JSONSerializer) Serialize(evt DomainEvent) (payload, metadata []byte, err error) {
	payload, err = json.Marshal(evt.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("eventstore: marshal payload: %w", err)
	}

	if len(evt.Metadata) > 0 {
		metadata, err = json.Marshal(evt.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("eventstore: marshal metadata: %w", err)
		}
	}

	return payload, metadata, nil
}

func (s *JSONSerializer) Deserialize(payloadType string, payloadRevision int, payload, metadata []byte) (DomainEvent, error) {
	targetRevision := payloadRevision
	if s.latestRevision != nil {
		targetRevision = s.latestRevision(payloadType)
	}
	if s.upcasters != nil && targetRevision > payloadRevision {
		var err error
		payload, metadata, targetRevision, err = s.upcasters.Apply(payloadType, payloadRevision, targetRevision, payload, metadata)
		if err != nil {
			return DomainEvent{}, err
		}
	}

	var decodedPayload interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decodedPayload); err != nil {
			return DomainEvent{}, fmt.Errorf("eventstore: unmarshal payload: %w", err)
		}
	}

	var decodedMetadata map[string]string
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &decodedMetadata); err != nil {
			return DomainEvent{}, fmt.Errorf("eventstore: unmarshal metadata: %w", err)
		}
	}

	return DomainEvent{
		Type:     payloadType,
		Revision: targetRevision,
		Payload:  decodedPayload,
		Metadata: decodedMetadata,
	}, nil
}
