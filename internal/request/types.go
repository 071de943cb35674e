// Package request implements the resilient-synchronization core: a
// write-through cache of the user's media requests, a durable offline queue
// for submissions deferred by connectivity failures, and the reconciler that
// replays the queue against the server.
package request

import (
	"strconv"
	"strings"
	"time"

	"github.com/lusk/luskd/internal/overseerr"
)

// MediaType is the kind of media a request targets.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// Status is the lifecycle status of a media request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusDeclined  Status = "DECLINED"
	StatusAvailable Status = "AVAILABLE"
	// StatusFailed marks an optimistic row whose queued submission was
	// permanently rejected by the server during a drain.
	StatusFailed Status = "FAILED"
)

// Titles shown on optimistic rows until the server confirms the request.
const (
	queuedMovieTitle = "Queued Request"
	queuedTVTitle    = "Queued TV Request"
)

// MediaRequest is the user-visible representation of a request. A positive
// id is server-assigned; a negative id (-mediaId) marks an optimistic row
// for a submission still sitting in the offline queue. Ids are not stable
// across the optimistic-to-confirmed transition.
type MediaRequest struct {
	ID              int64     `json:"id"`
	MediaType       MediaType `json:"mediaType"`
	MediaID         int64     `json:"mediaId"`
	Title           string    `json:"title"`
	PosterPath      *string   `json:"posterPath,omitempty"`
	Status          Status    `json:"status"`
	RequestedDate   int64     `json:"requestedDate"` // epoch millis
	Seasons         []int64   `json:"seasons,omitempty"`
	IsOfflineQueued bool      `json:"isOfflineQueued"`
}

// QueuedSubmission is one deferred request awaiting replay.
type QueuedSubmission struct {
	QueueID        int64     `json:"queueId"`
	MediaType      MediaType `json:"mediaType"`
	MediaID        int64     `json:"mediaId"`
	Seasons        []int64   `json:"seasons,omitempty"`
	QualityProfile *int64    `json:"qualityProfile,omitempty"`
	RootFolder     *string   `json:"rootFolder,omitempty"`
	CreatedAt      int64     `json:"createdAt"`
}

// SubmitInput are the parameters of a new submission.
type SubmitInput struct {
	MediaType      MediaType `json:"mediaType"`
	MediaID        int64     `json:"mediaId"`
	Seasons        []int64   `json:"seasons,omitempty"`
	QualityProfile *int64    `json:"qualityProfile,omitempty"`
	RootFolder     *string   `json:"rootFolder,omitempty"`
}

// fromServer maps a server record to the domain model.
func fromServer(r *overseerr.MediaRequest) MediaRequest {
	return MediaRequest{
		ID:            r.ID,
		MediaType:     mediaTypeFromWire(r.MediaType),
		MediaID:       r.MediaID,
		Title:         r.Title,
		PosterPath:    r.PosterPath,
		Status:        statusFromWire(r.Status),
		RequestedDate: timestampFromWire(r.CreatedAt),
		Seasons:       r.Seasons,
	}
}

func mediaTypeFromWire(s string) MediaType {
	if strings.EqualFold(s, "tv") {
		return MediaTypeTV
	}
	return MediaTypeMovie
}

func statusFromWire(code int) Status {
	switch code {
	case overseerr.WireStatusApproved:
		return StatusApproved
	case overseerr.WireStatusDeclined:
		return StatusDeclined
	case overseerr.WireStatusAvailable:
		return StatusAvailable
	default:
		return StatusPending
	}
}

// timestampFromWire parses the server's ISO 8601 created_at into epoch
// millis, falling back to the current time on malformed input.
func timestampFromWire(s string) int64 {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UnixMilli()
		}
	}
	return time.Now().UnixMilli()
}

func queuedTitle(mt MediaType) string {
	if mt == MediaTypeTV {
		return queuedTVTitle
	}
	return queuedMovieTitle
}

// joinSeasons encodes a season list as CSV for storage.
func joinSeasons(seasons []int64) string {
	if len(seasons) == 0 {
		return ""
	}
	parts := make([]string, len(seasons))
	for i, s := range seasons {
		parts[i] = strconv.FormatInt(s, 10)
	}
	return strings.Join(parts, ",")
}

// parseSeasons decodes a CSV season list, skipping malformed elements.
func parseSeasons(csv string) []int64 {
	if csv == "" {
		return nil
	}
	var seasons []int64
	for _, part := range strings.Split(csv, ",") {
		if n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			seasons = append(seasons, n)
		}
	}
	return seasons
}
