// Package projector drives a poll loop over the engine's tracked reader.
// Consumers of the global stream need somewhere to live outside the engine
// itself: a ticker-driven drain-the-backlog loop that saves its tracking
// token after each successfully handled batch.
package projector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aevon-lab/eventstore/internal/eventstore"
	"github.com/aevon-lab/eventstore/internal/eventstore/token"
)

// Handler processes one tracked event. Returning an error stops the
// processor: Run returns that error, and the token for the batch holding
// the failed event is not saved, so a restarted processor re-reads that
// batch from the last saved token.
type Handler func(ctx context.Context, event eventstore.TrackedEvent) error

// Processor polls one named consumer of the tracked stream, persisting its
// token after every successfully handled batch.
type Processor struct {
	Name         string
	Engine       *eventstore.Engine
	Store        TokenStore
	Handle       Handler
	PollInterval time.Duration
	BatchSize    int

	// maxConsecutiveBatches bounds one drain pass so a processor that's far
	// behind doesn't starve the ticker loop of its own cancellation check.
	maxConsecutiveBatches int
}

func (p *Processor) normalized() Processor {
	out := *p
	if out.PollInterval <= 0 {
		out.PollInterval = 500 * time.Millisecond
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.maxConsecutiveBatches <= 0 {
		out.maxConsecutiveBatches = 100
	}
	return out
}

// Run drains the backlog once at start and again on every tick until ctx
// is cancelled, then returns nil. A failure to load the token, read,
// handle an event or save the token ends Run with that error.
func (p *Processor) Run(ctx context.Context) error {
	cfg := p.normalized()

	tok, err := cfg.Store.Load(ctx, cfg.Name)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("[Projector] Starting processor", "name", cfg.Name, "poll_interval", cfg.PollInterval)

	tok, err = cfg.drainBacklog(ctx, tok)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			tok, err = cfg.drainBacklog(ctx, tok)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			slog.Info("[Projector] Stopping processor (context cancelled)", "name", cfg.Name)
			return nil
		}
	}
}

func (cfg Processor) drainBacklog(ctx context.Context, tok *token.Token) (*token.Token, error) {
	batchCount := 0
	for batchCount < cfg.maxConsecutiveBatches {
		select {
		case <-ctx.Done():
			return tok, nil
		default:
		}

		events, err := cfg.Engine.ReadTracked(ctx, tok, cfg.BatchSize)
		if err != nil {
			slog.Error("[Projector] Read tracked events failed", "name", cfg.Name, "error", err)
			return tok, err
		}
		if len(events) == 0 {
			return tok, nil
		}

		for _, evt := range events {
			if err := cfg.Handle(ctx, evt); err != nil {
				slog.Error("[Projector] Handler failed, token not advanced past this event",
					"name", cfg.Name, "global_index", evt.Event.GlobalIndex, "error", err)
				return tok, err
			}
			next := evt.Token
			tok = &next
		}

		if err := cfg.Store.Save(ctx, cfg.Name, *tok); err != nil {
			return tok, err
		}

		batchCount++
		if len(events) < cfg.BatchSize {
			return tok, nil
		}
	}

	slog.Warn("[Projector] Max consecutive batches reached, pausing drain",
		"name", cfg.Name, "max_batches", cfg.maxConsecutiveBatches)
	return tok, nil
}

// ErrNoProcessors is returned by RunAll when given an empty slice.
var ErrNoProcessors = errors.New("eventstore/projector: no processors given")
