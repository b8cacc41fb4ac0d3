package postgres

import (
	"fmt"
	"time"

	"github.com/aevon-lab/eventstore/internal/eventstore"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans one row of the columns common to every event/
// snapshot select into a payload-agnostic EventMessage, parsing the stored
// ISO-8601 timestamp column.
func scanEventRow(row scanner) (eventstore.EventMessage, error) {
	var evt eventstore.EventMessage
	var rawTimestamp string

	err := row.Scan(
		&evt.GlobalIndex,
		&evt.EventID,
		&evt.AggregateID,
		&evt.SequenceNumber,
		&evt.AggregateType,
		&rawTimestamp,
		&evt.PayloadType,
		&evt.PayloadRevision,
		&evt.Payload,
		&evt.Metadata,
	)
	if err != nil {
		return eventstore.EventMessage{}, fmt.Errorf("scan event row: %w", err) //nolint:wrapcheck // preserves sql.ErrNoRows for errors.Is
	}

	ts, err := time.Parse(eventstore.TimestampLayout, rawTimestamp)
	if err != nil {
		return eventstore.EventMessage{}, fmt.Errorf("parse timestamp %q: %w", rawTimestamp, err)
	}
	evt.Timestamp = ts

	return evt, nil
}

// formatTimestamp renders t in the wire layout every timestamp column uses:
// millisecond-precision, UTC, lexicographically sortable.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(eventstore.TimestampLayout)
}
