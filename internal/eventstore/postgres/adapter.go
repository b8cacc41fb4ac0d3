// Package postgres implements eventstore.StorageHooks against PostgreSQL,
// with a Schema-templated, serializer-agnostic adapter: table and column
// names are plugged in once at construction rather than fixed in the query
// text.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/eventstore/internal/eventstore"
	"github.com/lib/pq"
)

const connectPingTimeout = 5 * time.Second

// Adapter implements eventstore.StorageHooks for PostgreSQL. Query text is
// built once from a Schema at construction time and run as plain
// parameterized statements on the caller's transaction; nothing is prepared.
type Adapter struct {
	db *sql.DB
	q  queries
}

// Open opens dsn, pings it, and validates that schema's tables exist.
// maxOpenConns/maxIdleConns set the usual database/sql connection pool
// knobs.
func Open(ctx context.Context, dsn string, schema eventstore.Schema, maxOpenConns, maxIdleConns int) (*Adapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore/postgres: ping: %w", err)
	}

	if err := validateSchema(db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore/postgres: schema validation failed - did you run migrations?: %w", err)
	}

	slog.Info("[Postgres] Connection pool configured",
		"max_open_conns", maxOpenConns, "max_idle_conns", maxIdleConns)

	return New(db, schema), nil
}

// New wraps an already-open *sql.DB. Prefer Open unless the caller manages
// the pool itself (e.g. tests against sqlmock).
func New(db *sql.DB, schema eventstore.Schema) *Adapter {
	return &Adapter{db: db, q: buildQueries(schema)}
}

// DB returns the underlying connection pool, e.g. for migrations or health
// checks that need to operate outside the StorageHooks seam.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Close closes the underlying connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func validateSchema(db *sql.DB, schema eventstore.Schema) error {
	for _, table := range []string{schema.EventTable, schema.SnapshotTable} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %q: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %q does not exist", table)
		}
	}
	return nil
}

// InsertEvents appends rows for a single aggregate, assigning GlobalIndex
// from the RETURNING clause of each insert. The caller
// (eventstore.Engine.AppendEvents) already runs this inside a transaction
// and has validated strictly-increasing sequence numbers.
func (a *Adapter) InsertEvents(ctx context.Context, tx *sql.Tx, rows []eventstore.EventMessage) error {
	for i := range rows {
		var globalIndex int64
		err := tx.QueryRowContext(ctx, a.q.insertEvent,
			rows[i].EventID,
			rows[i].AggregateID,
			rows[i].SequenceNumber,
			rows[i].AggregateType,
			formatTimestamp(rows[i].Timestamp),
			rows[i].PayloadType,
			rows[i].PayloadRevision,
			rows[i].Payload,
			rows[i].Metadata,
		).Scan(&globalIndex)
		if err != nil {
			return fmt.Errorf("insert event %d (aggregate %q, seq %d): %w", i, rows[i].AggregateID, rows[i].SequenceNumber, err)
		}
		rows[i].GlobalIndex = globalIndex
	}
	return nil
}

// InsertSnapshot inserts row, doing nothing on an (aggregate_id,
// sequence_number) conflict. sql.ErrNoRows semantics aren't available here
// since there's no RETURNING clause, so the no-op is detected via
// RowsAffected instead.
func (a *Adapter) InsertSnapshot(ctx context.Context, tx *sql.Tx, row eventstore.EventMessage) error {
	res, err := tx.ExecContext(ctx, a.q.insertSnapshot,
		row.EventID,
		row.AggregateID,
		row.SequenceNumber,
		row.AggregateType,
		formatTimestamp(row.Timestamp),
		row.PayloadType,
		row.PayloadRevision,
		row.Payload,
		row.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot (aggregate %q, seq %d): %w", row.AggregateID, row.SequenceNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert snapshot rows affected: %w", err)
	}
	if n == 0 {
		// ON CONFLICT DO NOTHING: a snapshot at this sequence already exists.
		// There is no driver error to classify, so the no-op is surfaced as a
		// synthetic error that IsDuplicateKeyError recognizes; with that
		// detector, Engine.StoreSnapshot swallows it as a duplicate.
		return errSnapshotNoOp
	}
	return nil
}

// PruneSnapshotsBelow deletes snapshots for aggregateID strictly older than
// belowSequence.
func (a *Adapter) PruneSnapshotsBelow(ctx context.Context, tx *sql.Tx, aggregateID string, belowSequence int64) error {
	if _, err := tx.ExecContext(ctx, a.q.pruneSnapshotsBelow, aggregateID, belowSequence); err != nil {
		return fmt.Errorf("prune snapshots below %d for aggregate %q: %w", belowSequence, aggregateID, err)
	}
	return nil
}

// SelectAggregateEvents returns up to batchSize events for aggregateID with
// sequence_number >= firstSequence, ascending.
func (a *Adapter) SelectAggregateEvents(ctx context.Context, tx *sql.Tx, aggregateID string, firstSequence int64, batchSize int) ([]eventstore.EventMessage, error) {
	rows, err := tx.QueryContext(ctx, a.q.selectAggregate, aggregateID, firstSequence, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select aggregate events: %w", err)
	}
	defer rows.Close()

	var events []eventstore.EventMessage
	for rows.Next() {
		evt, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate events: %w", err)
	}
	return events, nil
}

// SelectLatestSnapshot returns the highest-sequence snapshot for
// aggregateID, or (nil, nil) if none exists.
func (a *Adapter) SelectLatestSnapshot(ctx context.Context, tx *sql.Tx, aggregateID string) (*eventstore.EventMessage, error) {
	row := tx.QueryRowContext(ctx, a.q.selectLatestSnap, aggregateID)
	evt, err := scanEventRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest snapshot: %w", err)
	}
	return &evt, nil
}

// SelectTrackedEvents returns rows needed to advance a tracking token:
// everything newly committed in (fromExclusive, throughInclusive], plus any
// row now occupying one of the caller's known gaps.
func (a *Adapter) SelectTrackedEvents(ctx context.Context, tx *sql.Tx, fromExclusive, throughInclusive int64, gaps []int64, batchSize int) ([]eventstore.EventMessage, error) {
	rows, err := tx.QueryContext(ctx, a.q.selectTracked, fromExclusive, throughInclusive, pq.Array(gaps), batchSize)
	if err != nil {
		return nil, fmt.Errorf("select tracked events: %w", err)
	}
	defer rows.Close()

	var events []eventstore.EventMessage
	for rows.Next() {
		evt, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked events: %w", err)
	}
	return events, nil
}

// SelectGapCandidates returns the (global_index, timestamp) of every row in
// [lo, hi), the minimal projection the cleanup sweep needs.
// A row whose timestamp column fails to parse ends the scan: no rows are
// returned, and the error wraps engineerr.ErrTimestampParse so
// eventstore.cleanGaps can keep the prior token rather than fail the whole
// read.
func (a *Adapter) SelectGapCandidates(ctx context.Context, tx *sql.Tx, lo, hi int64) ([]eventstore.GapRow, error) {
	rows, err := tx.QueryContext(ctx, a.q.selectGapCandidates, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("select gap candidates: %w", err)
	}
	defer rows.Close()

	var out []eventstore.GapRow
	for rows.Next() {
		var globalIndex int64
		var rawTimestamp string
		if err := rows.Scan(&globalIndex, &rawTimestamp); err != nil {
			return nil, fmt.Errorf("scan gap candidate: %w", err)
		}
		ts, err := time.Parse(eventstore.TimestampLayout, rawTimestamp)
		if err != nil {
			return nil, errTimestampParse(globalIndex, err)
		}
		out = append(out, eventstore.GapRow{GlobalIndex: globalIndex, Timestamp: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gap candidates: %w", err)
	}
	return out, nil
}
