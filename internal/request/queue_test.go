package request

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lusk/luskd/internal/database"
	"github.com/lusk/luskd/internal/testutil"
)

func TestQueue_EnqueueAndList(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	queue := NewQueue(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	id1, err := queue.Enqueue(ctx, QueuedSubmission{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)
	id2, err := queue.Enqueue(ctx, QueuedSubmission{
		MediaType:      MediaTypeTV,
		MediaID:        7,
		Seasons:        []int64{1, 3},
		QualityProfile: testutil.Int64Ptr(4),
		RootFolder:     testutil.StringPtr("/tv"),
	})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	items, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, id1, items[0].QueueID)
	assert.Equal(t, int64(42), items[0].MediaID)
	assert.Nil(t, items[0].QualityProfile)
	assert.Nil(t, items[0].RootFolder)

	assert.Equal(t, id2, items[1].QueueID)
	assert.Equal(t, MediaTypeTV, items[1].MediaType)
	assert.Equal(t, []int64{1, 3}, items[1].Seasons)
	require.NotNil(t, items[1].QualityProfile)
	assert.Equal(t, int64(4), *items[1].QualityProfile)
	require.NotNil(t, items[1].RootFolder)
	assert.Equal(t, "/tv", *items[1].RootFolder)
	assert.NotZero(t, items[1].CreatedAt)
}

func TestQueue_DeleteByIDIdempotent(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	queue := NewQueue(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, QueuedSubmission{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	require.NoError(t, queue.DeleteByID(ctx, id))
	require.NoError(t, queue.DeleteByID(ctx, id), "double delete is not an error")

	items, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	ctx := context.Background()

	queue := NewQueue(tdb.Conn, tdb.Logger)
	_, err := queue.Enqueue(ctx, QueuedSubmission{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	// Simulate a process restart: close and reopen the same database file.
	dbPath := filepath.Join(tdb.Path, "test.db")
	require.NoError(t, tdb.DB.Close())

	reopened, err := database.New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Migrate())

	items, err := NewQueue(reopened.Conn(), tdb.Logger).List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), items[0].MediaID)
}
