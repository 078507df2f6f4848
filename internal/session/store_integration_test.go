package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ychsieh/ragchat/internal/session"
	"github.com/ychsieh/ragchat/internal/testutil"
)

func setupStore(t *testing.T) *session.Store {
	t.Helper()
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return session.New(testDB.Pool, testutil.DiscardLogger())
}

func TestStore_EnsureAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Ensure(ctx, id, "gemini-2.5-flash"))

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, "gemini-2.5-flash", sess.ModelName)
	assert.Zero(t, sess.MessageCount)

	// Idempotent: a second Ensure with a different model keeps the original.
	require.NoError(t, store.Ensure(ctx, id, "gemini-2.0-flash"))
	sess, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", sess.ModelName)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_AppendExchange(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Ensure(ctx, id, ""))
	require.NoError(t, store.AppendExchange(ctx, id, "first question", "first answer", "gemini-2.5-flash"))
	require.NoError(t, store.AppendExchange(ctx, id, "second question", "second answer", "gemini-2.5-flash"))

	messages, err := store.Messages(ctx, id, 100, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)

	// Dense, strictly increasing sequence with alternating roles.
	for i, msg := range messages {
		assert.Equal(t, int32(i+1), msg.Sequence)
	}
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, "first question", messages[0].Content)
	assert.Equal(t, session.RoleModel, messages[1].Role)
	assert.Equal(t, "first answer", messages[1].Content)
	assert.Equal(t, "second question", messages[2].Content)

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int32(4), sess.MessageCount)
}

func TestStore_AppendExchange_UnknownSession(t *testing.T) {
	store := setupStore(t)

	err := store.AppendExchange(context.Background(), uuid.New(), "q", "a", "m")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_AppendExchange_ConcurrentWritersKeepDenseSequences(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, store.Ensure(ctx, id, ""))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = store.AppendExchange(ctx, id, "q", "a", "m")
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	messages, err := store.Messages(ctx, id, 100, 0)
	require.NoError(t, err)
	require.Len(t, messages, writers*2)
	for i, msg := range messages {
		assert.Equal(t, int32(i+1), msg.Sequence, "sequence gap at position %d", i)
	}
}

func TestStore_Recent_KeepsNewestWindow(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, store.Ensure(ctx, id, ""))

	// 51 exchanges produce 102 messages, two more than the window.
	for i := range 51 {
		require.NoError(t, store.AppendExchange(ctx, id,
			"question", "answer", "m"),
			"exchange %d", i)
	}

	recent, err := store.Recent(ctx, id, 100)
	require.NoError(t, err)
	require.Len(t, recent, 100)

	// The oldest exchange fell out; the latest turns are present and the
	// order is still ascending.
	assert.Equal(t, int32(3), recent[0].Sequence)
	assert.Equal(t, int32(102), recent[len(recent)-1].Sequence)
}

func TestStore_Recent_ShortSessionReturnsAll(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, store.Ensure(ctx, id, ""))
	require.NoError(t, store.AppendExchange(ctx, id, "q", "a", "m"))

	recent, err := store.Recent(ctx, id, 100)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int32(1), recent[0].Sequence)
	assert.Equal(t, session.RoleUser, recent[0].Role)
}

func TestStore_Messages_Pagination(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, store.Ensure(ctx, id, ""))
	require.NoError(t, store.AppendExchange(ctx, id, "q1", "a1", "m"))
	require.NoError(t, store.AppendExchange(ctx, id, "q2", "a2", "m"))

	page, err := store.Messages(ctx, id, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int32(2), page[0].Sequence)
	assert.Equal(t, int32(3), page[1].Sequence)
}

func TestStore_ListAndDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	require.NoError(t, store.Ensure(ctx, first, ""))
	require.NoError(t, store.Ensure(ctx, second, ""))

	// Touch the first session so it sorts to the front.
	require.NoError(t, store.AppendExchange(ctx, first, "q", "a", "m"))

	sessions, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)

	require.NoError(t, store.Delete(ctx, first))
	assert.ErrorIs(t, store.Delete(ctx, first), session.ErrNotFound)

	// Messages were removed by CASCADE.
	messages, err := store.Messages(ctx, first, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
