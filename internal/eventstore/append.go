package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
)

// AppendEvents persists events for a single aggregate in one transaction.
// events must be non-empty, belong to the same aggregate,
// and carry strictly increasing SequenceNumbers. On a duplicate
// (aggregate_id, sequence_number) the call fails with an error wrapping
// engineerr.ErrConcurrency (via *engineerr.ConcurrencyError) referencing the
// first event in the batch; any other driver/SQL failure is reported
// wrapping engineerr.ErrStorage. An empty slice is a silent no-op.
func (e *Engine) AppendEvents(ctx context.Context, events []EventMessage) error {
	if len(events) == 0 {
		return nil
	}

	aggregateID := events[0].AggregateID
	for i, evt := range events {
		if evt.AggregateID != aggregateID {
			return fmt.Errorf("eventstore: AppendEvents: event %d has aggregate_id %q, expected %q (batch must be single-aggregate)",
				i, evt.AggregateID, aggregateID)
		}
		if i > 0 && evt.SequenceNumber != events[i-1].SequenceNumber+1 {
			return fmt.Errorf("eventstore: AppendEvents: event %d has sequence_number %d, expected %d (strictly increasing)",
				i, evt.SequenceNumber, events[i-1].SequenceNumber+1)
		}
	}

	return e.withTx(ctx, false, func(tx *sql.Tx) error {
		if err := e.hooks.InsertEvents(ctx, tx, events); err != nil {
			if e.isDuplicateKey(err) {
				return &engineerr.ConcurrencyError{
					AggregateID:    aggregateID,
					SequenceNumber: events[0].SequenceNumber,
					Cause:          err,
				}
			}
			return engineerr.WrapStorage("append events", err)
		}
		return nil
	})
}
