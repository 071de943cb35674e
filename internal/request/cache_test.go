package request

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lusk/luskd/internal/testutil"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	return NewCache(tdb.Conn, tdb.Logger)
}

func sampleRequest(id, mediaID int64) MediaRequest {
	return MediaRequest{
		ID:            id,
		MediaType:     MediaTypeMovie,
		MediaID:       mediaID,
		Title:         "Sample",
		Status:        StatusPending,
		RequestedDate: 1700000000000 + id,
	}
}

func TestCache_UpsertReplacesRow(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, sampleRequest(1, 42)))

	updated := sampleRequest(1, 42)
	updated.Status = StatusApproved
	updated.Title = "Renamed"
	require.NoError(t, cache.Upsert(ctx, updated))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusApproved, all[0].Status)
	assert.Equal(t, "Renamed", all[0].Title)
}

func TestCache_AllNewestFirst(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	old := sampleRequest(1, 10)
	old.RequestedDate = 1000
	recent := sampleRequest(2, 20)
	recent.RequestedDate = 2000
	require.NoError(t, cache.Upsert(ctx, old))
	require.NoError(t, cache.Upsert(ctx, recent))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].ID)
	assert.Equal(t, int64(1), all[1].ID)
}

func TestCache_ByStatus(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	pending := sampleRequest(1, 10)
	approved := sampleRequest(2, 20)
	approved.Status = StatusApproved
	require.NoError(t, cache.Upsert(ctx, pending))
	require.NoError(t, cache.Upsert(ctx, approved))

	rows, err := cache.ByStatus(ctx, StatusApproved)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].ID)
}

func TestCache_ByMediaID(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	row, err := cache.ByMediaID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, row, "missing media id yields nil, not an error")

	require.NoError(t, cache.Upsert(ctx, sampleRequest(1, 42)))

	row, err = cache.ByMediaID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.ID)
}

func TestCache_SeasonsRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	r := sampleRequest(1, 42)
	r.MediaType = MediaTypeTV
	r.Seasons = []int64{1, 2, 5}
	require.NoError(t, cache.Upsert(ctx, r))

	row, err := cache.ByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []int64{1, 2, 5}, row.Seasons)
}

func TestCache_DeleteByIDIdempotent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, sampleRequest(1, 42)))
	require.NoError(t, cache.DeleteByID(ctx, 1))
	require.NoError(t, cache.DeleteByID(ctx, 1), "double delete is not an error")

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCache_SubscribeEmitsSnapshots(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, sampleRequest(1, 10)))

	ch, cancel, err := cache.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()

	initial := <-ch
	require.Len(t, initial, 1, "subscribers receive the current snapshot immediately")

	require.NoError(t, cache.Upsert(ctx, sampleRequest(2, 20)))
	next := <-ch
	assert.Len(t, next, 2)

	require.NoError(t, cache.DeleteByID(ctx, 1))
	next = <-ch
	require.Len(t, next, 1)
	assert.Equal(t, int64(2), next[0].ID)
}

func TestCache_SubscribeCoalescesWhenSlow(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	ch, cancel, err := cache.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()
	<-ch // drain the initial snapshot

	// Three mutations without a read in between; a slow consumer gets the
	// latest state, not a backlog.
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, cache.Upsert(ctx, sampleRequest(i, i*10)))
	}

	snapshot := <-ch
	assert.Len(t, snapshot, 3)
}
