package postgres

import (
	"errors"
	"fmt"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
	"github.com/lib/pq"
)

// errSnapshotNoOp marks an InsertSnapshot call that hit ON CONFLICT DO
// NOTHING. It is never returned to the engine's caller — IsDuplicateKeyError
// recognizes it so eventstore.StoreSnapshot treats it the same as a
// uniqueness-constraint violation from InsertEvents.
var errSnapshotNoOp = errors.New("eventstore/postgres: snapshot insert was a no-op (conflict)")

// errTimestampParse wraps engineerr.ErrTimestampParse with the offending
// global_index so log lines stay useful, while keeping errors.Is(err,
// engineerr.ErrTimestampParse) true for eventstore.cleanGaps.
func errTimestampParse(globalIndex int64, cause error) error {
	return fmt.Errorf("eventstore/postgres: parse timestamp at global_index %d: %w: %w", globalIndex, cause, engineerr.ErrTimestampParse)
}

// IsDuplicateKeyError classifies a driver error as a Postgres unique
// violation (SQLSTATE 23505) against the (aggregate_id, sequence_number)
// constraint, or as the synthetic no-op sentinel from InsertSnapshot. Pass
// this as the DuplicateKeyDetector to eventstore.New when using this
// adapter: detection is driver-specific and must not be hard-coded into the
// engine itself.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errSnapshotNoOp) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
