package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lusk/luskd/internal/history"
	"github.com/lusk/luskd/internal/overseerr"
	"github.com/lusk/luskd/internal/testutil"
)

// fakeServer is a scriptable ServerClient.
type fakeServer struct {
	mu          sync.Mutex
	submitCalls []int64
	// submitErr maps media id to the error its next submission returns.
	submitErr map[int64]error
	requests  []overseerr.MediaRequest
	listErr   error
	deleteErr error
}

func newFakeServer() *fakeServer {
	return &fakeServer{submitErr: make(map[int64]error)}
}

func (f *fakeServer) record(mediaID int64, mediaType string, seasons []int64) (*overseerr.MediaRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls = append(f.submitCalls, mediaID)
	if err := f.submitErr[mediaID]; err != nil {
		return nil, err
	}
	return &overseerr.MediaRequest{
		ID:        1000 + mediaID,
		MediaType: mediaType,
		MediaID:   mediaID,
		Title:     fmt.Sprintf("Title %d", mediaID),
		Status:    overseerr.WireStatusPending,
		CreatedAt: "2026-08-01T10:00:00.000Z",
		Seasons:   seasons,
	}, nil
}

func (f *fakeServer) SubmitMovie(ctx context.Context, movieID int64, profileID *int64, rootFolder *string) (*overseerr.MediaRequest, error) {
	return f.record(movieID, "movie", nil)
}

func (f *fakeServer) SubmitTV(ctx context.Context, tvID int64, seasons []int64, profileID *int64, rootFolder *string) (*overseerr.MediaRequest, error) {
	return f.record(tvID, "tv", seasons)
}

func (f *fakeServer) Requests(ctx context.Context, take, skip int) ([]overseerr.MediaRequest, error) {
	return f.requests, f.listErr
}

func (f *fakeServer) Request(ctx context.Context, requestID int64) (*overseerr.MediaRequest, error) {
	for i := range f.requests {
		if f.requests[i].ID == requestID {
			return &f.requests[i], nil
		}
	}
	return nil, &overseerr.StatusError{Code: 404, Message: "not found"}
}

func (f *fakeServer) DeleteRequest(ctx context.Context, requestID int64) error {
	return f.deleteErr
}

func (f *fakeServer) QualityProfiles(ctx context.Context) ([]overseerr.QualityProfile, error) {
	return []overseerr.QualityProfile{{ID: 1, Name: "HD-1080p"}}, nil
}

func (f *fakeServer) RootFolders(ctx context.Context) ([]overseerr.RootFolder, error) {
	return []overseerr.RootFolder{{ID: 1, Path: "/movies"}}, nil
}

func (f *fakeServer) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.submitCalls...)
}

type fakeTrigger struct {
	mu    sync.Mutex
	count int
}

func (t *fakeTrigger) TriggerDrain() {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()
}

func (t *fakeTrigger) triggers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

var errConn = errors.New("dial tcp 10.0.0.1:5055: i/o timeout")

func newTestService(t *testing.T) (*Service, *Cache, *Queue, *fakeServer, *fakeTrigger) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	cache := NewCache(tdb.Conn, tdb.Logger)
	queue := NewQueue(tdb.Conn, tdb.Logger)
	server := newFakeServer()
	trigger := &fakeTrigger{}

	svc := NewService(cache, queue, server, tdb.Logger)
	svc.SetDrainTrigger(trigger)
	return svc, cache, queue, server, trigger
}

func TestSubmit_SuccessWritesThrough(t *testing.T) {
	svc, cache, queue, _, trigger := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	assert.Equal(t, int64(1042), rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.False(t, rec.IsOfflineQueued)

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1042), all[0].ID)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
	assert.Equal(t, 0, trigger.triggers())
}

func TestSubmit_ConnectivityErrorDefers(t *testing.T) {
	svc, cache, queue, server, trigger := newTestService(t)
	ctx := context.Background()
	server.submitErr[42] = errConn

	rec, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err, "deferral must not look like an error to the caller")

	assert.Equal(t, int64(-42), rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.True(t, rec.IsOfflineQueued)
	assert.Equal(t, "Queued Request", rec.Title)

	row, err := cache.ByMediaID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(-42), row.ID)
	assert.True(t, row.IsOfflineQueued)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, int64(42), queued[0].MediaID)
	assert.Equal(t, MediaTypeMovie, queued[0].MediaType)

	assert.Equal(t, 1, trigger.triggers(), "deferral should trigger a drain")
}

func TestSubmit_TVDeferralKeepsSeasons(t *testing.T) {
	svc, _, queue, server, _ := newTestService(t)
	ctx := context.Background()
	server.submitErr[7] = errConn

	rec, err := svc.Submit(ctx, SubmitInput{
		MediaType: MediaTypeTV,
		MediaID:   7,
		Seasons:   []int64{1, 2, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "Queued TV Request", rec.Title)
	assert.Equal(t, []int64{1, 2, 5}, rec.Seasons)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, []int64{1, 2, 5}, queued[0].Seasons)
}

func TestSubmit_ApplicationErrorSurfaces(t *testing.T) {
	svc, cache, queue, server, trigger := newTestService(t)
	ctx := context.Background()
	server.submitErr[42] = &overseerr.StatusError{Code: 403, Message: "forbidden"}

	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.Error(t, err)
	assert.Equal(t, 403, overseerr.StatusCode(err))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "no optimistic row for a definitive rejection")

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
	assert.Equal(t, 0, trigger.triggers())
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	svc, cache, queue, server, _ := newTestService(t)
	ctx := context.Background()
	server.submitErr[42] = errConn

	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	assert.ErrorIs(t, err, ErrAlreadyRequested)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Len(t, queued, 1, "no second queue entry for the same media id")

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "no duplicate optimistic cache row")
}

func TestSubmit_InvalidMediaType(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), SubmitInput{MediaType: "book", MediaID: 1})
	assert.ErrorIs(t, err, ErrInvalidMediaType)
}

func TestDrain_EmptyQueueIsNoOp(t *testing.T) {
	svc, _, _, server, _ := newTestService(t)

	require.NoError(t, svc.Drain(context.Background()))
	assert.Empty(t, server.calls())
}

func TestDrain_ReplacesOptimisticRow(t *testing.T) {
	svc, cache, queue, server, _ := newTestService(t)
	ctx := context.Background()

	server.submitErr[42] = errConn
	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	// Network restored.
	delete(server.submitErr, 42)
	require.NoError(t, svc.Drain(ctx))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "exactly one row after confirmation")
	assert.Equal(t, int64(1042), all[0].ID)
	assert.Equal(t, "Title 42", all[0].Title)
	assert.False(t, all[0].IsOfflineQueued)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestDrain_PermanentFailureAbandons(t *testing.T) {
	svc, cache, queue, server, _ := newTestService(t)
	ctx := context.Background()

	server.submitErr[42] = errConn
	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	server.submitErr[42] = &overseerr.StatusError{Code: 409, Message: "already requested"}
	require.NoError(t, svc.Drain(ctx), "an abandoned item still counts as a completed cycle")

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued, "permanently rejected entry leaves the queue")

	// The optimistic row is rewritten as FAILED rather than left pending
	// or silently removed.
	row, err := cache.ByMediaID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, StatusFailed, row.Status)
	assert.False(t, row.IsOfflineQueued)

	// The next cycle must not replay it.
	before := len(server.calls())
	require.NoError(t, svc.Drain(ctx))
	assert.Equal(t, before, len(server.calls()))
}

func TestDrain_PartialProgress(t *testing.T) {
	svc, cache, queue, server, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		server.submitErr[id] = errConn
		_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: id})
		require.NoError(t, err)
	}

	// Items 1 and 3 recover; item 2 still cannot reach the server.
	delete(server.submitErr, 1)
	delete(server.submitErr, 3)

	err := svc.Drain(ctx)
	assert.ErrorIs(t, err, ErrDrainIncomplete)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, int64(2), queued[0].MediaID)

	for _, id := range []int64{1, 3} {
		row, err := cache.ByMediaID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, 1000+id, row.ID, "confirmed row for media %d", id)
	}

	row, err := cache.ByMediaID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(-2), row.ID, "undrained item keeps its optimistic row")
	assert.True(t, row.IsOfflineQueued)
}

func TestDrain_ProcessesSnapshotInOrder(t *testing.T) {
	svc, _, _, server, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []int64{5, 9, 3} {
		server.submitErr[id] = errConn
		_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: id})
		require.NoError(t, err)
	}
	server.submitErr = make(map[int64]error)
	submitted := len(server.calls())

	require.NoError(t, svc.Drain(ctx))
	assert.Equal(t, []int64{5, 9, 3}, server.calls()[submitted:], "drain follows enqueue order")
}

func TestRefresh_PreservesOfflineQueuedRows(t *testing.T) {
	svc, cache, queue, server, _ := newTestService(t)
	ctx := context.Background()

	server.submitErr[42] = errConn
	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	server.requests = []overseerr.MediaRequest{
		{ID: 7, MediaType: "movie", MediaID: 99, Title: "Server Movie", Status: overseerr.WireStatusApproved, CreatedAt: "2026-07-01T00:00:00Z"},
	}
	require.NoError(t, svc.Refresh(ctx))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	row, err := cache.ByMediaID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row, "refresh must not erase durable offline intent")
	assert.Equal(t, int64(-42), row.ID)

	row, err = cache.ByMediaID(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, StatusApproved, row.Status)

	queued, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Len(t, queued, 1, "refresh leaves the queue untouched")
}

func TestRefresh_DropsStaleConfirmedRows(t *testing.T) {
	svc, cache, _, server, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 10})
	require.NoError(t, err)

	server.requests = nil
	require.NoError(t, svc.Refresh(ctx))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCancel_RemovesCachedRow(t *testing.T) {
	svc, cache, _, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, rec.ID))

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCancel_NotFound(t *testing.T) {
	svc, _, _, server, _ := newTestService(t)
	server.deleteErr = &overseerr.StatusError{Code: 404, Message: "not found"}

	err := svc.Cancel(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestUpdateStatus_WritesThrough(t *testing.T) {
	svc, cache, _, server, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	server.requests = []overseerr.MediaRequest{
		{ID: rec.ID, MediaType: "movie", MediaID: 42, Title: "Title 42", Status: overseerr.WireStatusAvailable, CreatedAt: "2026-08-01T10:00:00.000Z"},
	}

	updated, err := svc.UpdateStatus(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, updated.Status)

	row, err := cache.ByMediaID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, StatusAvailable, row.Status)
}

func TestService_ByMediaID(t *testing.T) {
	svc, _, _, server, _ := newTestService(t)
	ctx := context.Background()

	row, err := svc.ByMediaID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, row)

	server.submitErr[42] = errConn
	_, err = svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	row, err = svc.ByMediaID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(-42), row.ID)
}

func TestIsMediaRequested(t *testing.T) {
	svc, _, _, server, _ := newTestService(t)
	ctx := context.Background()

	requested, err := svc.IsMediaRequested(ctx, 42)
	require.NoError(t, err)
	assert.False(t, requested)

	server.submitErr[42] = errConn
	_, err = svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	requested, err = svc.IsMediaRequested(ctx, 42)
	require.NoError(t, err)
	assert.True(t, requested, "a queued submission counts as requested")
}

func TestService_RecordsLifecycleEvents(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	ctx := context.Background()

	server := newFakeServer()
	activity := history.NewService(tdb.Conn, tdb.Logger)
	svc := NewService(NewCache(tdb.Conn, tdb.Logger), NewQueue(tdb.Conn, tdb.Logger), server, tdb.Logger)
	svc.SetActivityLog(activity)

	server.submitErr[42] = errConn
	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)

	delete(server.submitErr, 42)
	require.NoError(t, svc.Drain(ctx))

	result, err := activity.List(ctx, history.ListOptions{MediaID: 42})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, history.EventConfirmed, result.Items[0].EventType)
	require.NotNil(t, result.Items[0].RequestID)
	assert.Equal(t, int64(1042), *result.Items[0].RequestID)
	assert.Equal(t, history.EventDeferred, result.Items[1].EventType)
	assert.NotEmpty(t, result.Items[1].Detail)
}

func TestSubmit_AfterFailedRowResubmits(t *testing.T) {
	svc, cache, _, server, _ := newTestService(t)
	ctx := context.Background()

	server.submitErr[42] = errConn
	_, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)
	server.submitErr[42] = &overseerr.StatusError{Code: 409, Message: "already requested"}
	require.NoError(t, svc.Drain(ctx))

	// The FAILED row does not block a fresh attempt.
	delete(server.submitErr, 42)
	rec, err := svc.Submit(ctx, SubmitInput{MediaType: MediaTypeMovie, MediaID: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(1042), rec.ID)

	all, err := cache.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "stale FAILED row is replaced, not duplicated")
	assert.Equal(t, int64(1042), all[0].ID)
}
