package request

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lusk/luskd/internal/overseerr"
	"github.com/lusk/luskd/internal/testutil"
)

func TestFromServer(t *testing.T) {
	rec := fromServer(&overseerr.MediaRequest{
		ID:         101,
		MediaType:  "tv",
		MediaID:    7,
		Title:      "Some Show",
		PosterPath: testutil.StringPtr("/poster.jpg"),
		Status:     overseerr.WireStatusApproved,
		CreatedAt:  "2026-08-01T10:00:00.000Z",
		Seasons:    []int64{1, 2},
	})

	assert.Equal(t, int64(101), rec.ID)
	assert.Equal(t, MediaTypeTV, rec.MediaType)
	assert.Equal(t, StatusApproved, rec.Status)
	assert.Equal(t, int64(1785578400000), rec.RequestedDate)
	assert.Equal(t, []int64{1, 2}, rec.Seasons)
	assert.False(t, rec.IsOfflineQueued)
}

func TestStatusFromWire(t *testing.T) {
	assert.Equal(t, StatusPending, statusFromWire(overseerr.WireStatusPending))
	assert.Equal(t, StatusApproved, statusFromWire(overseerr.WireStatusApproved))
	assert.Equal(t, StatusDeclined, statusFromWire(overseerr.WireStatusDeclined))
	assert.Equal(t, StatusAvailable, statusFromWire(overseerr.WireStatusAvailable))
	assert.Equal(t, StatusPending, statusFromWire(99), "unknown codes fall back to pending")
}

func TestTimestampFromWire(t *testing.T) {
	assert.Equal(t, int64(1785578400000), timestampFromWire("2026-08-01T10:00:00.000Z"))
	assert.Equal(t, int64(1785578400000), timestampFromWire("2026-08-01T10:00:00Z"))

	// Malformed input falls back to now rather than zero.
	assert.Greater(t, timestampFromWire("not a timestamp"), int64(0))
}

func TestSeasonsCSV(t *testing.T) {
	assert.Equal(t, "", joinSeasons(nil))
	assert.Equal(t, "1,2,5", joinSeasons([]int64{1, 2, 5}))

	assert.Nil(t, parseSeasons(""))
	assert.Equal(t, []int64{1, 2, 5}, parseSeasons("1,2,5"))
	assert.Equal(t, []int64{3}, parseSeasons("3,junk"), "malformed elements are skipped")
}

func TestQueuedTitle(t *testing.T) {
	assert.Equal(t, "Queued Request", queuedTitle(MediaTypeMovie))
	assert.Equal(t, "Queued TV Request", queuedTitle(MediaTypeTV))
}
