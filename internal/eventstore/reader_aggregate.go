package eventstore

import (
	"context"
	"database/sql"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
)

// ReadAggregate returns up to batchSize events for aggregateID with
// sequence_number in [firstSequenceNumber, firstSequenceNumber+batchSize),
// ordered ascending. The per-aggregate stream is contiguous
// by definition — no gap handling applies here. The read runs inside a
// (read-only) transaction, required by some drivers to stream blob columns
// safely.
func (e *Engine) ReadAggregate(ctx context.Context, aggregateID string, firstSequenceNumber int64, batchSize int) ([]EventMessage, error) {
	if batchSize <= 0 {
		batchSize = e.Options().BatchSize
	}

	var events []EventMessage
	err := e.withTx(ctx, true, func(tx *sql.Tx) error {
		var err error
		events, err = e.hooks.SelectAggregateEvents(ctx, tx, aggregateID, firstSequenceNumber, batchSize)
		if err != nil {
			return engineerr.WrapStorage("read aggregate events", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ReadLatestSnapshot returns the snapshot with the greatest sequence_number
// for aggregateID, or (nil, nil) if none exists.
func (e *Engine) ReadLatestSnapshot(ctx context.Context, aggregateID string) (*EventMessage, error) {
	var snapshot *EventMessage
	err := e.withTx(ctx, true, func(tx *sql.Tx) error {
		var err error
		snapshot, err = e.hooks.SelectLatestSnapshot(ctx, tx, aggregateID)
		if err != nil {
			return engineerr.WrapStorage("read latest snapshot", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
