package eventstore_test

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	. "github.com/aevon-lab/eventstore/internal/eventstore"
)

// fakeHooks is an in-memory StorageHooks used by the engine's unit tests, so
// AppendEvents/StoreSnapshot/ReadAggregate/ReadTracked can be exercised
// without a real database. It reproduces just enough of the (aggregate_id,
// sequence_number) uniqueness constraint and global ordering to drive the
// token state machine.
type fakeHooks struct {
	events      []EventMessage
	snapshots   map[string][]EventMessage
	nextGlobal  int64
	errOnInsert error
}

func newFakeHooks() *fakeHooks {
	return &fakeHooks{snapshots: make(map[string][]EventMessage)}
}

var errDuplicateKey = errors.New("fake: duplicate key")

func (f *fakeHooks) InsertEvents(ctx context.Context, tx *sql.Tx, rows []EventMessage) error {
	if f.errOnInsert != nil {
		return f.errOnInsert
	}
	for _, r := range rows {
		for _, existing := range f.events {
			if existing.AggregateID == r.AggregateID && existing.SequenceNumber == r.SequenceNumber {
				return errDuplicateKey
			}
		}
	}
	for i := range rows {
		f.nextGlobal++
		rows[i].GlobalIndex = f.nextGlobal
		f.events = append(f.events, rows[i])
	}
	return nil
}

func (f *fakeHooks) InsertSnapshot(ctx context.Context, tx *sql.Tx, row EventMessage) error {
	for _, s := range f.snapshots[row.AggregateID] {
		if s.SequenceNumber == row.SequenceNumber {
			return errDuplicateKey
		}
	}
	f.snapshots[row.AggregateID] = append(f.snapshots[row.AggregateID], row)
	return nil
}

func (f *fakeHooks) PruneSnapshotsBelow(ctx context.Context, tx *sql.Tx, aggregateID string, belowSequence int64) error {
	kept := f.snapshots[aggregateID][:0]
	for _, s := range f.snapshots[aggregateID] {
		if s.SequenceNumber >= belowSequence {
			kept = append(kept, s)
		}
	}
	f.snapshots[aggregateID] = kept
	return nil
}

func (f *fakeHooks) SelectAggregateEvents(ctx context.Context, tx *sql.Tx, aggregateID string, firstSequence int64, batchSize int) ([]EventMessage, error) {
	var out []EventMessage
	for _, e := range f.events {
		if e.AggregateID == aggregateID && e.SequenceNumber >= firstSequence {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	if len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

func (f *fakeHooks) SelectLatestSnapshot(ctx context.Context, tx *sql.Tx, aggregateID string) (*EventMessage, error) {
	snaps := f.snapshots[aggregateID]
	if len(snaps) == 0 {
		return nil, nil
	}
	best := snaps[0]
	for _, s := range snaps[1:] {
		if s.SequenceNumber > best.SequenceNumber {
			best = s
		}
	}
	return &best, nil
}

func (f *fakeHooks) SelectTrackedEvents(ctx context.Context, tx *sql.Tx, fromExclusive, throughInclusive int64, gaps []int64, batchSize int) ([]EventMessage, error) {
	gapSet := make(map[int64]bool, len(gaps))
	for _, g := range gaps {
		gapSet[g] = true
	}
	var out []EventMessage
	for _, e := range f.events {
		inRange := e.GlobalIndex > fromExclusive && e.GlobalIndex <= throughInclusive
		if inRange || gapSet[e.GlobalIndex] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalIndex < out[j].GlobalIndex })
	if len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

func (f *fakeHooks) SelectGapCandidates(ctx context.Context, tx *sql.Tx, lo, hi int64) ([]GapRow, error) {
	var out []GapRow
	for _, e := range f.events {
		if e.GlobalIndex >= lo && e.GlobalIndex < hi {
			out = append(out, GapRow{GlobalIndex: e.GlobalIndex, Timestamp: e.Timestamp})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalIndex < out[j].GlobalIndex })
	return out, nil
}

func isFakeDuplicateKey(err error) bool {
	return errors.Is(err, errDuplicateKey)
}
