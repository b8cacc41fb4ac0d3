package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
	"github.com/aevon-lab/eventstore/internal/eventstore/token"
)

// ReadTracked returns the next batchSize (or fewer) events in global-commit
// order following prev, each paired with the token a resuming reader should
// present next. prev may be nil to mean "no previous
// token" — the caller hasn't read anything yet.
//
// The read-only transaction is committed whenever the read succeeds,
// including when the gap cleanup sweep aborts after a timestamp parse
// failure; on a storage error it is rolled back instead.
func (e *Engine) ReadTracked(ctx context.Context, prev *token.Token, batchSize int) ([]TrackedEvent, error) {
	opts := e.Options()
	if batchSize <= 0 {
		batchSize = opts.BatchSize
	}

	var results []TrackedEvent
	err := e.withTx(ctx, true, func(tx *sql.Tx) error {
		current := prev
		if current != nil && current.GapCount() > opts.GapCleaningThreshold {
			cleaned, err := e.cleanGaps(ctx, tx, *current, opts)
			if err != nil {
				return err
			}
			current = &cleaned
		}

		var fromExclusive int64 = -1
		var gaps []int64
		if current != nil {
			fromExclusive = current.Index()
			gaps = current.Gaps()
		}
		throughInclusive := fromExclusive + int64(batchSize)

		rows, err := e.hooks.SelectTrackedEvents(ctx, tx, fromExclusive, throughInclusive, gaps, batchSize)
		if err != nil {
			return engineerr.WrapStorage("read tracked events", err)
		}

		running := current
		gapTimeout := time.Duration(opts.GapTimeoutMS) * time.Millisecond
		now := e.clock()

		for _, row := range rows {
			allowGaps := row.Timestamp.After(now.Add(-gapTimeout))

			var next token.Token
			if running == nil {
				var gapSeed []int64
				if allowGaps {
					for g := opts.LowestGlobalSequence; g < row.GlobalIndex; g++ {
						gapSeed = append(gapSeed, g)
					}
				}
				next = token.New(row.GlobalIndex, gapSeed)
			} else {
				next = running.AdvanceTo(row.GlobalIndex, opts.MaxGapOffset, allowGaps)
			}
			running = &next
			results = append(results, TrackedEvent{Event: row, Token: next})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// cleanGaps walks candidate rows spanning the token's gap range and, for
// each one old enough to be considered stale, drops the gap immediately
// below it. It stops early the moment it meets a row that fills a known gap
// or is too recent to declare anything stale yet — subsequent gap holders
// may still be mid-commit.
func (e *Engine) cleanGaps(ctx context.Context, tx *sql.Tx, t token.Token, opts Options) (token.Token, error) {
	gaps := t.Gaps()
	if len(gaps) == 0 {
		return t, nil
	}
	// The scan window extends one position past the highest gap so the row
	// that would confirm it is abandoned — the next committed event after
	// it — is visible even when that gap has no sibling gap above it.
	lo, hi := gaps[0], gaps[len(gaps)-1]

	candidates, err := e.hooks.SelectGapCandidates(ctx, tx, lo, hi+2)
	if err != nil {
		if errors.Is(err, engineerr.ErrTimestampParse) {
			slog.Info("[eventstore] Aborting gap cleanup after timestamp parse failure, keeping prior token")
			return t, nil
		}
		return t, engineerr.WrapStorage("clean gaps", err)
	}

	cleaned := t
	gapTimeout := time.Duration(opts.GapTimeoutMS) * time.Millisecond
	now := e.clock()

	for _, row := range candidates {
		if cleaned.HasGap(row.GlobalIndex) {
			break
		}
		if row.Timestamp.After(now.Add(-gapTimeout)) {
			break
		}
		if cleaned.HasGap(row.GlobalIndex - 1) {
			cleaned = cleaned.AdvanceTo(row.GlobalIndex-1, opts.MaxGapOffset, false)
		}
	}

	return cleaned, nil
}
