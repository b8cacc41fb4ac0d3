package eventstore_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	. "github.com/aevon-lab/eventstore/internal/eventstore"
)

// newTestEngine builds an Engine over a fake StorageHooks implementation.
// The *sql.DB only exists to satisfy withTx's BeginTx/Commit calls — the
// fakeHooks never issues a real query against it — so every test must queue
// one ExpectBegin/ExpectCommit pair per Engine call it makes.
func newTestEngine(t *testing.T, clock Clock) (*Engine, sqlmock.Sqlmock, *fakeHooks) {
	t.Helper()
	return newTestEngineWithOptions(t, clock, DefaultOptions())
}

func newTestEngineWithOptions(t *testing.T, clock Clock, opts Options) (*Engine, sqlmock.Sqlmock, *fakeHooks) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hooks := newFakeHooks()

	eng, err := New(db, hooks, opts, clock, isFakeDuplicateKey)
	require.NoError(t, err)

	return eng, mock, hooks
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
