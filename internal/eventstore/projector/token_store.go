package projector

import (
	"context"

	"github.com/aevon-lab/eventstore/internal/eventstore/token"
)

// TokenStore persists the tracking token a named processor has advanced to,
// so it resumes from where it left off across restarts with the token a
// resuming reader should present next. Implementations are expected to be
// durable (a database row, a file) — an in-memory one only suits tests.
type TokenStore interface {
	Load(ctx context.Context, processorName string) (*token.Token, error)
	Save(ctx context.Context, processorName string, t token.Token) error
}
