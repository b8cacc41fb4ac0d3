package postgres

import (
	"fmt"

	"github.com/aevon-lab/eventstore/internal/eventstore"
)

// queries holds the SQL text for one Schema, interpolated once at
// construction time since a Schema is immutable after construction. Table
// and column names come from operator configuration, not request input, so
// building query strings with fmt.Sprintf here carries no injection risk.
type queries struct {
	insertEvent         string
	insertSnapshot      string
	pruneSnapshotsBelow string
	selectAggregate     string
	selectLatestSnap    string
	selectTracked       string
	selectGapCandidates string
}

func buildQueries(s eventstore.Schema) queries {
	ev := s.EventTable
	sn := s.SnapshotTable

	return queries{
		insertEvent: fmt.Sprintf(`
			INSERT INTO %s (
				%s, %s, %s, %s, %s, %s, %s, %s, %s
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING %s
		`, ev,
			s.ColEventID, s.ColAggregateID, s.ColSequenceNumber, s.ColAggregateType,
			s.ColTimestamp, s.ColPayloadType, s.ColPayloadRevision, s.ColPayload, s.ColMetadata,
			s.ColGlobalIndex,
		),

		insertSnapshot: fmt.Sprintf(`
			INSERT INTO %s (
				%s, %s, %s, %s, %s, %s, %s, %s, %s
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (%s, %s) DO NOTHING
		`, sn,
			s.ColEventID, s.ColAggregateID, s.ColSequenceNumber, s.ColAggregateType,
			s.ColTimestamp, s.ColPayloadType, s.ColPayloadRevision, s.ColPayload, s.ColMetadata,
			s.ColAggregateID, s.ColSequenceNumber,
		),

		pruneSnapshotsBelow: fmt.Sprintf(`
			DELETE FROM %s WHERE %s = $1 AND %s < $2
		`, sn, s.ColAggregateID, s.ColSequenceNumber),

		selectAggregate: fmt.Sprintf(`
			SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
			FROM %s
			WHERE %s = $1 AND %s >= $2
			ORDER BY %s ASC
			LIMIT $3
		`, s.ColGlobalIndex, s.ColEventID, s.ColAggregateID, s.ColSequenceNumber, s.ColAggregateType,
			s.ColTimestamp, s.ColPayloadType, s.ColPayloadRevision, s.ColPayload, s.ColMetadata,
			ev, s.ColAggregateID, s.ColSequenceNumber, s.ColSequenceNumber,
		),

		// The snapshot table has no global_index column; a constant 0 fills
		// that slot so the row scans like an event row.
		selectLatestSnap: fmt.Sprintf(`
			SELECT 0 AS %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
			FROM %s
			WHERE %s = $1
			ORDER BY %s DESC
			LIMIT 1
		`, s.ColGlobalIndex, s.ColEventID, s.ColAggregateID, s.ColSequenceNumber, s.ColAggregateType,
			s.ColTimestamp, s.ColPayloadType, s.ColPayloadRevision, s.ColPayload, s.ColMetadata,
			sn, s.ColAggregateID, s.ColSequenceNumber,
		),

		// selectTracked returns every row in (fromExclusive, throughInclusive]
		// plus any row occupying one of the caller's known gap indices, since a
		// gap slot may have filled since the caller last read.
		selectTracked: fmt.Sprintf(`
			SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
			FROM %s
			WHERE (%s > $1 AND %s <= $2) OR %s = ANY($3)
			ORDER BY %s ASC
			LIMIT $4
		`, s.ColGlobalIndex, s.ColEventID, s.ColAggregateID, s.ColSequenceNumber, s.ColAggregateType,
			s.ColTimestamp, s.ColPayloadType, s.ColPayloadRevision, s.ColPayload, s.ColMetadata,
			ev, s.ColGlobalIndex, s.ColGlobalIndex, s.ColGlobalIndex, s.ColGlobalIndex,
		),

		selectGapCandidates: fmt.Sprintf(`
			SELECT %s, %s
			FROM %s
			WHERE %s >= $1 AND %s < $2
			ORDER BY %s ASC
		`, s.ColGlobalIndex, s.ColTimestamp, ev, s.ColGlobalIndex, s.ColGlobalIndex, s.ColGlobalIndex),
	}
}
