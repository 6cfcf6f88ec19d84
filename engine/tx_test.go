package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferro-orm/ferro"
)

func TestTransactionCommit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	handle, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(handle)
	assert.NoError(t, err, "handles are uuid strings")

	_, err = e.SaveRecord(ctx, "User", []byte(`{"name": "alice", "email": "a@x", "age": 30}`), handle)
	require.NoError(t, err)

	require.NoError(t, e.CommitTransaction(ctx, handle))

	n, err := e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTransactionRollback(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	handle, err := e.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = e.SaveRecord(ctx, "User", []byte(`{"name": "alice", "email": "a@x", "age": 30}`), handle)
	require.NoError(t, err)

	require.NoError(t, e.RollbackTransaction(ctx, handle))

	n, err := e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransactionStateMachine(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("commit_then_commit", func(t *testing.T) {
		handle, err := e.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, e.CommitTransaction(ctx, handle))

		err = e.CommitTransaction(ctx, handle)
		require.Error(t, err)
		assert.True(t, ferro.IsInvalidTransaction(err))
	})

	t.Run("commit_then_rollback", func(t *testing.T) {
		handle, err := e.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, e.CommitTransaction(ctx, handle))

		err = e.RollbackTransaction(ctx, handle)
		require.Error(t, err)
		assert.True(t, ferro.IsInvalidTransaction(err))
	})

	t.Run("rollback_then_use", func(t *testing.T) {
		handle, err := e.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, e.RollbackTransaction(ctx, handle))

		_, err = e.SaveRecord(ctx, "User", []byte(`{"name": "x", "email": "x@x", "age": 1}`), handle)
		require.Error(t, err)
		assert.True(t, ferro.IsInvalidTransaction(err))
	})

	t.Run("unknown_handle", func(t *testing.T) {
		err := e.CommitTransaction(ctx, uuid.NewString())
		require.Error(t, err)
		assert.True(t, ferro.IsInvalidTransaction(err))
	})
}

func TestIndependentTransactions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Two begins yield two unrelated handles; finishing one leaves the
	// other usable.
	h1, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	h2, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	require.NoError(t, e.RollbackTransaction(ctx, h1))
	require.NoError(t, e.CommitTransaction(ctx, h2))
}

func TestWithTransaction(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("commits_on_nil", func(t *testing.T) {
		err := e.WithTransaction(ctx, func(handle string) error {
			_, err := e.SaveRecord(ctx, "User", []byte(`{"name": "alice", "email": "a@x", "age": 30}`), handle)
			return err
		})
		require.NoError(t, err)

		n, err := e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("rolls_back_on_error", func(t *testing.T) {
		boom := errors.New("boom")
		err := e.WithTransaction(ctx, func(handle string) error {
			_, err := e.SaveRecord(ctx, "User", []byte(`{"name": "bob", "email": "b@x", "age": 20}`), handle)
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)

		n, err := e.CountFiltered(ctx, []byte(`{
			"model_name": "User",
			"where_clause": [{"column": "name", "operator": "==", "value": "bob", "is_compound": false}]
		}`), "")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rolls_back_on_panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = e.WithTransaction(ctx, func(handle string) error {
				panic("boom")
			})
		})
		// The engine remains usable afterwards.
		n, err := e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestCloseRollsBackOpenTransactions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	handle, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = e.SaveRecord(ctx, "User", []byte(`{"name": "alice", "email": "a@x", "age": 30}`), handle)
	require.NoError(t, err)

	require.NoError(t, e.Close())

	// The handle is gone with the pool.
	err = e.CommitTransaction(ctx, handle)
	require.Error(t, err)
	assert.True(t, ferro.IsInvalidTransaction(err))
}

func TestTransactionalReads(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	handle, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	pk, err := e.SaveRecord(ctx, "User", []byte(`{"name": "alice", "email": "a@x", "age": 30}`), handle)
	require.NoError(t, err)

	// Reads through the handle observe the transaction's own uncommitted
	// writes.
	n, err := e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), handle)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := e.FetchFiltered(ctx, []byte(`{
		"model_name": "User",
		"where_clause": [{"column": "name", "operator": "==", "value": "alice", "is_compound": false}]
	}`), handle)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	all, err := e.FetchAll(ctx, "User", handle)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	rec, err := e.FetchOne(ctx, "User", pk, handle)
	require.NoError(t, err)
	assert.Equal(t, "alice", (*rec)["name"])

	require.NoError(t, e.RollbackTransaction(ctx, handle))
	e.EvictInstance("User", pk)

	n, err = e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), "")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Reads against a finalized handle fail like writes do.
	_, err = e.CountFiltered(ctx, []byte(`{"model_name": "User"}`), handle)
	require.Error(t, err)
	assert.True(t, ferro.IsInvalidTransaction(err))
}
