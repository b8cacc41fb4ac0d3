package eventstore

import "fmt"

// Upcaster transforms a serialized payload of one revision into the next
// revision's shape, so that readers only ever need to understand the
// latest revision. Modeled as a small registry keyed by (payload type,
// revision), the same lookup-by-key shape as a format registry.
type Upcaster interface {
	// CanUpcast reports whether this upcaster handles payloadType at
	// fromRevision.
	CanUpcast(payloadType string, fromRevision int) bool

	// Upcast transforms payload/metadata from fromRevision to fromRevision+1.
	Upcast(payloadType string, fromRevision int, payload, metadata []byte) (newPayload, newMetadata []byte, err error)
}

// UpcasterPipeline applies a chain of Upcasters in revision order until the
// payload reaches targetRevision; a missing step is an error (see Apply).
type UpcasterPipeline struct {
	upcasters []Upcaster
}

// NewUpcasterPipeline builds a pipeline from the given upcasters. Order does
// not matter at construction time — Apply always looks up the first
// upcaster whose CanUpcast matches the payload's current revision.
func NewUpcasterPipeline(upcasters ...Upcaster) *UpcasterPipeline {
	return &UpcasterPipeline{upcasters: upcasters}
}

// Apply repeatedly upcasts payload/metadata until payloadRevision reaches
// targetRevision. It returns an error if no registered upcaster can bridge
// the gap — a dangling old revision with no upcaster is a configuration
// error, not a data error.
func (p *UpcasterPipeline) Apply(payloadType string, payloadRevision, targetRevision int, payload, metadata []byte) ([]byte, []byte, int, error) {
	rev := payloadRevision
	for rev < targetRevision {
		u := p.find(payloadType, rev)
		if u == nil {
			return nil, nil, rev, fmt.Errorf(
				"eventstore: no upcaster registered for %q from revision %d to %d",
				payloadType, rev, rev+1)
		}
		var err error
		payload, metadata, err = u.Upcast(payloadType, rev, payload, metadata)
		if err != nil {
			return nil, nil, rev, fmt.Errorf("eventstore: upcast %q rev %d: %w", payloadType, rev, err)
		}
		rev++
	}
	return payload, metadata, rev, nil
}

func (p *UpcasterPipeline) find(payloadType string, fromRevision int) Upcaster {
	for _, u := range p.upcasters {
		if u.CanUpcast(payloadType, fromRevision) {
			return u
		}
	}
	return nil
}
