// Package eventstore implements a relational-backed event storage engine:
// batched append with optimistic per-aggregate versioning, idempotent
// snapshot storage, a per-aggregate sequence reader, and a gap-aware global
// tracked reader for projectors.
//
// Engine is a concrete type that holds a batching policy — Options and a
// Clock — and drives storage through the StorageHooks interface rather
// than through a base-class hierarchy. It holds no Serializer and no
// upcaster pipeline: payload and metadata pass through it as opaque bytes,
// and callers serialize and deserialize them (see Serializer). The default
// hooks implementation is internal/eventstore/postgres.
package eventstore

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
)

// GapRow is the minimal projection used by the cleanup sweep: just enough
// to decide whether a gap has filled or gone stale.
type GapRow struct {
	GlobalIndex int64
	Timestamp   time.Time
}

// StorageHooks is the seam the four public operations drive. A concrete
// implementation (internal/eventstore/postgres) supplies the SQL; Engine
// itself never constructs a query string.
type StorageHooks interface {
	InsertEvents(ctx context.Context, tx *sql.Tx, rows []EventMessage) error
	InsertSnapshot(ctx context.Context, tx *sql.Tx, row EventMessage) error
	PruneSnapshotsBelow(ctx context.Context, tx *sql.Tx, aggregateID string, belowSequence int64) error

	SelectAggregateEvents(ctx context.Context, tx *sql.Tx, aggregateID string, firstSequence int64, batchSize int) ([]EventMessage, error)
	SelectLatestSnapshot(ctx context.Context, tx *sql.Tx, aggregateID string) (*EventMessage, error)

	SelectTrackedEvents(ctx context.Context, tx *sql.Tx, fromExclusive, throughInclusive int64, gaps []int64, batchSize int) ([]EventMessage, error)
	SelectGapCandidates(ctx context.Context, tx *sql.Tx, lo, hi int64) ([]GapRow, error)
}

// Engine is the relational-backed event storage engine.
type Engine struct {
	db    *sql.DB
	hooks StorageHooks

	options atomic.Pointer[Options]
	clock   Clock

	isDuplicateKey engineerr.DuplicateKeyDetector
}

// New constructs an Engine. db and hooks are required; clock defaults to
// SystemClock if nil; isDuplicateKey defaults to a detector that never
// matches (callers relying on concurrency detection must supply one — the
// postgres package exposes IsDuplicateKeyError for lib/pq).
func New(db *sql.DB, hooks StorageHooks, options Options, clock Clock, isDuplicateKey engineerr.DuplicateKeyDetector) (*Engine, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock
	}
	if isDuplicateKey == nil {
		isDuplicateKey = func(error) bool { return false }
	}
	e := &Engine{
		db:             db,
		hooks:          hooks,
		clock:          clock,
		isDuplicateKey: isDuplicateKey,
	}
	e.options.Store(&options)
	return e, nil
}

// Options returns the options currently in effect.
func (e *Engine) Options() Options {
	return *e.options.Load()
}

// SetOptions swaps the options in effect. Safe to call concurrently with
// any in-flight operation: BatchSize, MaxGapOffset, LowestGlobalSequence,
// GapTimeoutMS and GapCleaningThreshold take effect on the next call that
// reads them, per-call, with no restart and no lock beyond the atomic swap
// itself. Rejects an invalid Options without disturbing the one already in
// effect.
func (e *Engine) SetOptions(options Options) error {
	if err := options.Validate(); err != nil {
		return err
	}
	e.options.Store(&options)
	return nil
}

// withTx runs fn inside a transaction, guaranteeing commit on success and
// rollback on any exit path — including a panic propagating out of fn. A
// single helper shared by all five transactional operations below, rather
// than repeating the BeginTx/defer Rollback/Commit idiom at each call site.
func (e *Engine) withTx(ctx context.Context, readOnly bool, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return engineerr.WrapStorage("begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return engineerr.WrapStorage("commit transaction", err)
	}
	return nil
}
