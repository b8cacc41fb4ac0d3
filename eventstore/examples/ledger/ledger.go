// Package ledger is a sample aggregate built on top of the event storage
// engine: a running balance reconstructed by replaying deposit and
// withdrawal events, snapshotting the balance itself rather than any
// derived float. It exists to show how a caller rebuilds an aggregate from
// the engine's two read operations (snapshot + per-aggregate replay), not
// as part of the engine itself.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aevon-lab/eventstore/internal/eventstore"
)

const (
	EventDeposited = "ledger.deposited"
	EventWithdrawn = "ledger.withdrawn"
	EventSnapshot  = "ledger.snapshot"

	defaultBatchSize = 500
)

// Ledger is the reconstructed aggregate state: a balance and the sequence
// number it was built through.
type Ledger struct {
	AggregateID    string
	Balance        decimal.Decimal
	SequenceNumber int64
}

// ExtractDecimal pulls a numeric value from a decoded event payload by
// field name. Returns decimal.Zero if the field is missing, empty, or not a
// recognized numeric type. JSON numbers unmarshal to float64 in Go —
// NewFromFloat converts that to an exact decimal representation rather than
// carrying float64 rounding error into a running balance.
func ExtractDecimal(data map[string]interface{}, field string) decimal.Decimal {
	if field == "" {
		return decimal.Zero
	}
	v, ok := data[field]
	if !ok {
		return decimal.Zero
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case int32:
		return decimal.NewFromInt(int64(val))
	case string:
		d, err := decimal.NewFromString(val)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// Apply mutates l according to one decoded domain event. Event types other
// than the three above are ignored, so a ledger reconstruction tolerates a
// stream shared with other aggregate types.
func (l *Ledger) Apply(evt eventstore.DomainEvent, sequenceNumber int64) error {
	data, _ := evt.Payload.(map[string]interface{})

	switch evt.Type {
	case EventDeposited:
		l.Balance = l.Balance.Add(ExtractDecimal(data, "amount"))
	case EventWithdrawn:
		amount := ExtractDecimal(data, "amount")
		if amount.GreaterThan(l.Balance) {
			return fmt.Errorf("ledger %s: withdrawal %s exceeds balance %s", l.AggregateID, amount, l.Balance)
		}
		l.Balance = l.Balance.Sub(amount)
	case EventSnapshot:
		l.Balance = ExtractDecimal(data, "balance")
	}
	l.SequenceNumber = sequenceNumber
	return nil
}

// Rebuild reconstructs a Ledger for aggregateID: load its latest snapshot,
// if any, then replay every event committed after it in sequence order.
// batchSize controls the page size of each ReadAggregate call; values <= 0
// fall back to defaultBatchSize.
func Rebuild(ctx context.Context, eng *eventstore.Engine, ser eventstore.Serializer, aggregateID string, batchSize int) (*Ledger, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	l := &Ledger{AggregateID: aggregateID}
	firstSequence := int64(0)

	snap, err := eng.ReadLatestSnapshot(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		evt, err := ser.Deserialize(snap.PayloadType, snap.PayloadRevision, snap.Payload, snap.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: decode snapshot: %w", aggregateID, err)
		}
		if err := l.Apply(evt, snap.SequenceNumber); err != nil {
			return nil, err
		}
		firstSequence = snap.SequenceNumber + 1
	}

	for {
		events, err := eng.ReadAggregate(ctx, aggregateID, firstSequence, batchSize)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			break
		}
		for _, row := range events {
			evt, err := ser.Deserialize(row.PayloadType, row.PayloadRevision, row.Payload, row.Metadata)
			if err != nil {
				return nil, fmt.Errorf("ledger %s: decode event at sequence %d: %w", aggregateID, row.SequenceNumber, err)
			}
			if err := l.Apply(evt, row.SequenceNumber); err != nil {
				return nil, err
			}
		}
		firstSequence = events[len(events)-1].SequenceNumber + 1
		if len(events) < batchSize {
			break
		}
	}

	return l, nil
}
