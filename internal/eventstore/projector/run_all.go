package projector

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll starts every processor concurrently and blocks until ctx is
// cancelled or one of them returns a non-nil error, at which point the
// remaining processors are cancelled too (errgroup's first-error-wins
// semantics). This is the usual way to run several independently-named
// processors side by side with coordinated shutdown instead of
// independent, unsupervised goroutines.
func RunAll(ctx context.Context, processors []*Processor) error {
	if len(processors) == 0 {
		return ErrNoProcessors
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range processors {
		p := p
		g.Go(func() error {
			return p.Run(gctx)
		})
	}
	return g.Wait()
}
