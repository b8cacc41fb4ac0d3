package eventstore

import (
	"context"
	"database/sql"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
)

// StoreSnapshot upserts a snapshot and prunes older snapshots for the same
// aggregate, in one transaction. The prune runs strictly
// after the insert within the same transaction, so a reader arriving
// mid-transaction never observes a state with no snapshot at all. A
// duplicate-key on the insert (a concurrent writer already produced an
// equal-or-newer snapshot) is swallowed: snapshots are advisory and
// idempotent, and the no-op insert leaves nothing to prune, so the prune
// is skipped and the otherwise empty transaction is committed. Any other failure
// propagates wrapping engineerr.ErrStorage.
func (e *Engine) StoreSnapshot(ctx context.Context, snapshot EventMessage) error {
	swallowed := false

	err := e.withTx(ctx, false, func(tx *sql.Tx) error {
		if err := e.hooks.InsertSnapshot(ctx, tx, snapshot); err != nil {
			if e.isDuplicateKey(err) {
				swallowed = true
				return nil
			}
			return engineerr.WrapStorage("insert snapshot", err)
		}

		if err := e.hooks.PruneSnapshotsBelow(ctx, tx, snapshot.AggregateID, snapshot.SequenceNumber); err != nil {
			return engineerr.WrapStorage("prune snapshots", err)
		}
		return nil
	})
	if swallowed {
		return nil
	}
	return err
}
