package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/eventstore/internal/eventstore"
	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return New(db, eventstore.DefaultSchema()), mock, db
}

func eventRowColumns() []string {
	return []string{
		"global_index", "event_id", "aggregate_id", "sequence_number",
		"aggregate_type", "timestamp", "payload_type", "payload_revision",
		"payload", "metadata",
	}
}

func TestAdapter_InsertEvents_AssignsGlobalIndexPerRow(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []eventstore.EventMessage{
		{EventID: "evt-1", AggregateID: "a1", SequenceNumber: 1, AggregateType: "acct", Timestamp: now, PayloadType: "deposited"},
		{EventID: "evt-2", AggregateID: "a1", SequenceNumber: 2, AggregateType: "acct", Timestamp: now, PayloadType: "withdrawn"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.insertEvent)).
		WithArgs("evt-1", "a1", int64(1), "acct", formatTimestamp(now), "deposited", 0, []byte(nil), []byte(nil)).
		WillReturnRows(sqlmock.NewRows([]string{"global_index"}).AddRow(int64(10)))
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.insertEvent)).
		WithArgs("evt-2", "a1", int64(2), "acct", formatTimestamp(now), "withdrawn", 0, []byte(nil), []byte(nil)).
		WillReturnRows(sqlmock.NewRows([]string{"global_index"}).AddRow(int64(11)))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = adapter.InsertEvents(context.Background(), tx, rows)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(10), rows[0].GlobalIndex)
	assert.Equal(t, int64(11), rows[1].GlobalIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_InsertEvents_PropagatesDriverError(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	driverErr := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.insertEvent)).WillReturnError(driverErr)
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = adapter.InsertEvents(context.Background(), tx, []eventstore.EventMessage{
		{EventID: "evt-1", AggregateID: "a1", SequenceNumber: 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, driverErr)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_InsertSnapshot_Success(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(adapter.q.insertSnapshot)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = adapter.InsertSnapshot(context.Background(), tx, eventstore.EventMessage{AggregateID: "a1", SequenceNumber: 5})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_InsertSnapshot_ConflictReturnsNoOpSentinel(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(adapter.q.insertSnapshot)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = adapter.InsertSnapshot(context.Background(), tx, eventstore.EventMessage{AggregateID: "a1", SequenceNumber: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, errSnapshotNoOp)
	assert.True(t, IsDuplicateKeyError(err))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_PruneSnapshotsBelow(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(adapter.q.pruneSnapshotsBelow)).
		WithArgs("a1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = adapter.PruneSnapshotsBelow(context.Background(), tx, "a1", 7)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SelectAggregateEvents_ReturnsScannedRows(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.selectAggregate)).
		WithArgs("a1", int64(1), 10).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow(int64(1), "evt-1", "a1", int64(1), "acct", formatTimestamp(now), "deposited", 0, []byte(`{"amount":"5"}`), []byte(nil)).
			AddRow(int64(2), "evt-2", "a1", int64(2), "acct", formatTimestamp(now), "withdrawn", 0, []byte(`{"amount":"2"}`), []byte(nil)),
		)
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	events, err := adapter.SelectAggregateEvents(context.Background(), tx, "a1", 1, 10)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].SequenceNumber)
	assert.Equal(t, now, events[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SelectLatestSnapshot_NoneExistsReturnsNilNil(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.selectLatestSnap)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(eventRowColumns()))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	snap, err := adapter.SelectLatestSnapshot(context.Background(), tx, "a1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SelectLatestSnapshot_Found(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.selectLatestSnap)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow(int64(0), "snap-7", "a1", int64(7), "acct", formatTimestamp(now), "ledger.snapshot", 0, []byte(`{"balance":"100"}`), []byte(nil)),
		)
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	snap, err := adapter.SelectLatestSnapshot(context.Background(), tx, "a1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NotNil(t, snap)
	assert.Equal(t, int64(7), snap.SequenceNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SelectTrackedEvents_PassesGapsAsArray(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.selectTracked)).
		WithArgs(int64(3), int64(13), pq.Array([]int64{2}), 10).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow(int64(2), "evt-2", "a1", int64(1), "acct", formatTimestamp(now), "deposited", 0, []byte(nil), []byte(nil)),
		)
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	events, err := adapter.SelectTrackedEvents(context.Background(), tx, 3, 13, []int64{2}, 10)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].GlobalIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SelectGapCandidates_Success(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.selectGapCandidates)).
		WithArgs(int64(5), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"global_index", "timestamp"}).
			AddRow(int64(6), formatTimestamp(now)),
		)
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	candidates, err := adapter.SelectGapCandidates(context.Background(), tx, 5, 8)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(6), candidates[0].GlobalIndex)
	assert.Equal(t, now, candidates[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SelectGapCandidates_UnparseableTimestampWrapsErrTimestampParse(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(adapter.q.selectGapCandidates)).
		WithArgs(int64(5), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"global_index", "timestamp"}).
			AddRow(int64(6), "not-a-timestamp"),
		)
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = adapter.SelectGapCandidates(context.Background(), tx, 5, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, engineerr.ErrTimestampParse)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"snapshot no-op sentinel", errSnapshotNoOp, true},
		{"postgres unique violation", &pq.Error{Code: "23505"}, true},
		{"postgres other error code", &pq.Error{Code: "42601"}, false},
		{"unrelated error", errors.New("boom"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyError(tc.err))
		})
	}
}

func TestValidateSchema(t *testing.T) {
	schema := eventstore.DefaultSchema()

	t.Run("both tables exist", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`)).
			WithArgs(schema.EventTable).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`)).
			WithArgs(schema.SnapshotTable).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, validateSchema(db, schema))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing table fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`)).
			WithArgs(schema.EventTable).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err = validateSchema(db, schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
