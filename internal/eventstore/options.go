package eventstore

import "fmt"

// PayloadDataType selects how payload/metadata blobs are stored: as opaque
// bytes (driver BLOB/bytea) or as a native DB object (e.g. Postgres jsonb).
type PayloadDataType string

const (
	PayloadDataTypeBytes  PayloadDataType = "bytes"
	PayloadDataTypeObject PayloadDataType = "object"
)

// Options holds the configuration knobs recognized by the engine.
// BatchSize, MaxGapOffset, LowestGlobalSequence, GapTimeoutMS and
// GapCleaningThreshold may be updated live through Engine.SetOptions; the
// engine reads them fresh on every call rather than caching them, so
// changes take effect on the next call with no lock beyond an atomic swap.
type Options struct {
	BatchSize            int
	MaxGapOffset         int64
	LowestGlobalSequence int64
	GapTimeoutMS         int64
	GapCleaningThreshold int
	PayloadDataType      PayloadDataType
}

// DefaultOptions returns reasonable defaults for a single-tenant deployment.
func DefaultOptions() Options {
	return Options{
		BatchSize:            100,
		MaxGapOffset:         10000,
		LowestGlobalSequence: 1,
		GapTimeoutMS:         60000,
		GapCleaningThreshold: 250,
		PayloadDataType:      PayloadDataTypeBytes,
	}
}

// Validate rejects an Options value that cannot produce legal tokens or
// queries.
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("eventstore: batch_size must be > 0, got %d", o.BatchSize)
	}
	if o.MaxGapOffset <= 0 {
		return fmt.Errorf("eventstore: max_gap_offset must be > 0, got %d", o.MaxGapOffset)
	}
	if o.LowestGlobalSequence < 0 {
		return fmt.Errorf("eventstore: lowest_global_sequence must be >= 0, got %d", o.LowestGlobalSequence)
	}
	if o.GapTimeoutMS <= 0 {
		return fmt.Errorf("eventstore: gap_timeout_ms must be > 0, got %d", o.GapTimeoutMS)
	}
	if o.GapCleaningThreshold <= 0 {
		return fmt.Errorf("eventstore: gap_cleaning_threshold must be > 0, got %d", o.GapCleaningThreshold)
	}
	switch o.PayloadDataType {
	case PayloadDataTypeBytes, PayloadDataTypeObject:
	default:
		return fmt.Errorf("eventstore: unsupported payload_data_type %q", o.PayloadDataType)
	}
	return nil
}
