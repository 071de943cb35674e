package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lusk/luskd/internal/history"
	"github.com/lusk/luskd/internal/overseerr"
)

var (
	// ErrAlreadyRequested is returned when a submission targets a media id
	// that already has a cached request (confirmed or queued).
	ErrAlreadyRequested = errors.New("media already requested")
	// ErrRequestNotFound is returned when the server does not know the
	// request id.
	ErrRequestNotFound = errors.New("request not found")
	// ErrDrainIncomplete signals that a drain cycle left connectivity-failed
	// submissions in the queue and should be re-run later.
	ErrDrainIncomplete = errors.New("drain left queued submissions behind")
	// ErrInvalidMediaType is returned for submissions that are neither movie
	// nor tv.
	ErrInvalidMediaType = errors.New("invalid media type")
)

// ServerClient is the surface of the media server client the reconciler
// uses. Satisfied by *overseerr.Client.
type ServerClient interface {
	SubmitMovie(ctx context.Context, movieID int64, profileID *int64, rootFolder *string) (*overseerr.MediaRequest, error)
	SubmitTV(ctx context.Context, tvID int64, seasons []int64, profileID *int64, rootFolder *string) (*overseerr.MediaRequest, error)
	Requests(ctx context.Context, take, skip int) ([]overseerr.MediaRequest, error)
	Request(ctx context.Context, requestID int64) (*overseerr.MediaRequest, error)
	DeleteRequest(ctx context.Context, requestID int64) error
	QualityProfiles(ctx context.Context) ([]overseerr.QualityProfile, error)
	RootFolders(ctx context.Context) ([]overseerr.RootFolder, error)
}

// DrainTrigger schedules a drain run at the next opportunity. Satisfied by
// the scheduler's drain runner.
type DrainTrigger interface {
	TriggerDrain()
}

// ActivityLog records request lifecycle events. Satisfied by
// *history.Service.
type ActivityLog interface {
	Record(ctx context.Context, e history.Entry) error
}

// StatusReporter receives the outcome of server interactions. Satisfied by
// *health.Monitor.
type StatusReporter interface {
	ReportOnline()
	ReportOffline(err error)
}

// Service reconciles local request state with the server: it submits new
// requests, defers them to the offline queue when the server is unreachable,
// and drains the queue once connectivity returns.
type Service struct {
	cache       *Cache
	queue       *Queue
	client      ServerClient
	trigger     DrainTrigger
	broadcaster *EventBroadcaster
	activity    ActivityLog
	status      StatusReporter
	logger      zerolog.Logger
	refreshTake int
	now         func() time.Time
}

// NewService creates the reconciler service.
func NewService(cache *Cache, queue *Queue, client ServerClient, logger zerolog.Logger) *Service {
	return &Service{
		cache:       cache,
		queue:       queue,
		client:      client,
		logger:      logger.With().Str("component", "sync").Logger(),
		refreshTake: 100,
		now:         time.Now,
	}
}

// SetDrainTrigger attaches the scheduler hook fired after each deferral.
func (s *Service) SetDrainTrigger(t DrainTrigger) { s.trigger = t }

// SetBroadcaster attaches the websocket event broadcaster.
func (s *Service) SetBroadcaster(b *EventBroadcaster) { s.broadcaster = b }

// SetActivityLog attaches the lifecycle event recorder.
func (s *Service) SetActivityLog(a ActivityLog) { s.activity = a }

// SetStatusReporter attaches the server reachability monitor.
func (s *Service) SetStatusReporter(r StatusReporter) { s.status = r }

// SetRefreshTake overrides the page size used by Refresh.
func (s *Service) SetRefreshTake(take int) {
	if take > 0 {
		s.refreshTake = take
	}
}

// Submit submits a media request. On a connectivity failure the submission
// is captured durably in the offline queue and an optimistic record is
// returned with a nil error; the caller must not treat deferral as failure.
// Application errors from the server propagate unchanged.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*MediaRequest, error) {
	if input.MediaType != MediaTypeMovie && input.MediaType != MediaTypeTV {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMediaType, input.MediaType)
	}

	existing, err := s.cache.ByMediaID(ctx, input.MediaID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != StatusFailed {
		return nil, ErrAlreadyRequested
	}

	record, err := s.submitToServer(ctx, input.MediaType, input.MediaID, input.Seasons, input.QualityProfile, input.RootFolder)
	if err == nil {
		confirmed := fromServer(record)
		if err := s.cache.Upsert(ctx, confirmed); err != nil {
			return nil, err
		}
		// A resubmission after a FAILED outcome leaves a stale negative row.
		if existing != nil && existing.ID != confirmed.ID {
			if err := s.cache.DeleteByID(ctx, existing.ID); err != nil {
				return nil, err
			}
		}
		s.logger.Info().
			Int64("requestId", confirmed.ID).
			Int64("mediaId", confirmed.MediaID).
			Str("mediaType", string(confirmed.MediaType)).
			Msg("request confirmed")
		s.reportOnline()
		s.broadcaster.RequestCreated(confirmed)
		s.recordEvent(ctx, history.Entry{
			EventType: history.EventSubmitted,
			MediaType: string(confirmed.MediaType),
			MediaID:   confirmed.MediaID,
			RequestID: &confirmed.ID,
		})
		return &confirmed, nil
	}

	if !overseerr.IsConnectivityError(err) {
		return nil, err
	}

	return s.deferSubmission(ctx, input, err)
}

// deferSubmission captures a submission that failed on connectivity: queue
// entry first, then the optimistic cache row, then a drain trigger.
func (s *Service) deferSubmission(ctx context.Context, input SubmitInput, cause error) (*MediaRequest, error) {
	queueID, err := s.queue.Enqueue(ctx, QueuedSubmission{
		MediaType:      input.MediaType,
		MediaID:        input.MediaID,
		Seasons:        input.Seasons,
		QualityProfile: input.QualityProfile,
		RootFolder:     input.RootFolder,
	})
	if err != nil {
		return nil, err
	}

	optimistic := MediaRequest{
		ID:              -input.MediaID,
		MediaType:       input.MediaType,
		MediaID:         input.MediaID,
		Title:           queuedTitle(input.MediaType),
		Status:          StatusPending,
		RequestedDate:   s.now().UnixMilli(),
		Seasons:         input.Seasons,
		IsOfflineQueued: true,
	}
	if err := s.cache.Upsert(ctx, optimistic); err != nil {
		return nil, err
	}

	s.logger.Info().
		Err(cause).
		Int64("queueId", queueID).
		Int64("mediaId", input.MediaID).
		Str("mediaType", string(input.MediaType)).
		Msg("server unreachable, submission deferred to offline queue")

	s.reportOffline(cause)
	s.broadcaster.RequestCreated(optimistic)
	s.recordEvent(ctx, history.Entry{
		EventType: history.EventDeferred,
		MediaType: string(input.MediaType),
		MediaID:   input.MediaID,
		Detail:    cause.Error(),
	})
	if s.trigger != nil {
		s.trigger.TriggerDrain()
	}
	return &optimistic, nil
}

// Drain replays every queued submission against the server. It walks a
// snapshot of the queue taken at cycle start: confirmed items replace their
// optimistic rows and leave the queue; permanently rejected items leave the
// queue with their optimistic row rewritten as FAILED; connectivity failures
// leave the entry in place for the next cycle. Returns ErrDrainIncomplete
// when any entry remains.
func (s *Service) Drain(ctx context.Context) error {
	items, err := s.queue.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	cycleID := uuid.NewString()
	log := s.logger.With().Str("cycleId", cycleID).Logger()
	log.Info().Int("queued", len(items)).Msg("draining offline queue")

	var confirmed, abandoned int
	for _, item := range items {
		record, err := s.submitToServer(ctx, item.MediaType, item.MediaID, item.Seasons, item.QualityProfile, item.RootFolder)
		switch {
		case err == nil:
			if err := s.confirmQueued(ctx, item, fromServer(record)); err != nil {
				return err
			}
			confirmed++

		case overseerr.IsApplicationError(err):
			// Permanent rejection: abandon without replay.
			if err := s.abandonQueued(ctx, item, err); err != nil {
				return err
			}
			abandoned++

		default:
			// Connectivity failure: keep the entry, continue with the rest.
			s.reportOffline(err)
			log.Warn().Err(err).
				Int64("queueId", item.QueueID).
				Int64("mediaId", item.MediaID).
				Msg("replay failed, submission stays queued")
		}
	}

	remaining := len(items) - confirmed - abandoned
	log.Info().
		Int("confirmed", confirmed).
		Int("abandoned", abandoned).
		Int("remaining", remaining).
		Msg("drain cycle finished")
	s.broadcaster.QueueDrained(DrainEventPayload{
		CycleID:   cycleID,
		Confirmed: confirmed,
		Abandoned: abandoned,
		Remaining: remaining,
	})

	if remaining > 0 {
		return ErrDrainIncomplete
	}
	return nil
}

// confirmQueued writes through the authoritative record, removes the stale
// optimistic row, and deletes the queue entry — in that order, so a crash
// between steps leaves at worst a harmless duplicate replay.
func (s *Service) confirmQueued(ctx context.Context, item QueuedSubmission, confirmed MediaRequest) error {
	if err := s.cache.Upsert(ctx, confirmed); err != nil {
		return err
	}
	if confirmed.ID != -item.MediaID {
		if err := s.cache.DeleteByID(ctx, -item.MediaID); err != nil {
			return err
		}
	}
	if err := s.queue.DeleteByID(ctx, item.QueueID); err != nil {
		return err
	}
	s.logger.Info().
		Int64("queueId", item.QueueID).
		Int64("requestId", confirmed.ID).
		Int64("mediaId", confirmed.MediaID).
		Msg("queued submission confirmed by server")
	s.reportOnline()
	s.broadcaster.RequestUpdated(confirmed)
	s.recordEvent(ctx, history.Entry{
		EventType: history.EventConfirmed,
		MediaType: string(confirmed.MediaType),
		MediaID:   confirmed.MediaID,
		RequestID: &confirmed.ID,
	})
	return nil
}

// abandonQueued drops a permanently rejected queue entry. The optimistic row
// is not deleted but rewritten as FAILED so the user sees the rejection
// instead of a request that silently vanishes.
func (s *Service) abandonQueued(ctx context.Context, item QueuedSubmission, cause error) error {
	if row, err := s.cache.ByMediaID(ctx, item.MediaID); err != nil {
		return err
	} else if row != nil && row.IsOfflineQueued {
		failed := *row
		failed.Status = StatusFailed
		failed.IsOfflineQueued = false
		if err := s.cache.Upsert(ctx, failed); err != nil {
			return err
		}
		s.broadcaster.RequestUpdated(failed)
	}
	if err := s.queue.DeleteByID(ctx, item.QueueID); err != nil {
		return err
	}
	s.logger.Warn().Err(cause).
		Int64("queueId", item.QueueID).
		Int64("mediaId", item.MediaID).
		Msg("queued submission permanently rejected, abandoned")
	s.recordEvent(ctx, history.Entry{
		EventType: history.EventAbandoned,
		MediaType: string(item.MediaType),
		MediaID:   item.MediaID,
		Detail:    cause.Error(),
	})
	return nil
}

// Cancel cancels a request on the server and removes it from the cache.
func (s *Service) Cancel(ctx context.Context, requestID int64) error {
	existing, err := s.cache.ByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.client.DeleteRequest(ctx, requestID); err != nil {
		if overseerr.StatusCode(err) == 404 {
			return fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
		}
		return err
	}
	if err := s.cache.DeleteByID(ctx, requestID); err != nil {
		return err
	}
	if existing != nil {
		s.broadcaster.RequestDeleted(*existing)
		s.recordEvent(ctx, history.Entry{
			EventType: history.EventCancelled,
			MediaType: string(existing.MediaType),
			MediaID:   existing.MediaID,
			RequestID: &existing.ID,
		})
	}
	return nil
}

// Refresh replaces the cache with the server's request list. Optimistic
// offline-queued rows survive the refresh: durable intent must not be erased
// by a pull-to-refresh, and the queue itself is untouched.
func (s *Service) Refresh(ctx context.Context) error {
	records, err := s.client.Requests(ctx, s.refreshTake, 0)
	if err != nil {
		return err
	}

	all, err := s.cache.All(ctx)
	if err != nil {
		return err
	}
	var preserved []MediaRequest
	serverMediaIDs := make(map[int64]bool, len(records))
	for _, r := range records {
		serverMediaIDs[r.MediaID] = true
	}
	for _, row := range all {
		if row.IsOfflineQueued && !serverMediaIDs[row.MediaID] {
			preserved = append(preserved, row)
		}
	}

	if err := s.cache.DeleteAll(ctx); err != nil {
		return err
	}
	for _, r := range records {
		if err := s.cache.Upsert(ctx, fromServer(&r)); err != nil {
			return err
		}
	}
	for _, row := range preserved {
		if err := s.cache.Upsert(ctx, row); err != nil {
			return err
		}
	}

	s.logger.Info().Int("count", len(records)).Int("preserved", len(preserved)).Msg("request cache refreshed from server")
	s.broadcaster.RequestsRefreshed(len(records))
	return nil
}

// UpdateStatus fetches the current server record for a request and writes
// it through the cache.
func (s *Service) UpdateStatus(ctx context.Context, requestID int64) (*MediaRequest, error) {
	record, err := s.client.Request(ctx, requestID)
	if err != nil {
		if overseerr.StatusCode(err) == 404 {
			return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
		}
		return nil, err
	}
	updated := fromServer(record)
	if err := s.cache.Upsert(ctx, updated); err != nil {
		return nil, err
	}
	s.broadcaster.RequestUpdated(updated)
	return &updated, nil
}

// IsMediaRequested reports whether a request already exists for the media
// id, queued or confirmed.
func (s *Service) IsMediaRequested(ctx context.Context, mediaID int64) (bool, error) {
	row, err := s.cache.ByMediaID(ctx, mediaID)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// All returns every cached request.
func (s *Service) All(ctx context.Context) ([]MediaRequest, error) {
	return s.cache.All(ctx)
}

// ByStatus returns cached requests with the given status.
func (s *Service) ByStatus(ctx context.Context, status Status) ([]MediaRequest, error) {
	return s.cache.ByStatus(ctx, status)
}

// ByMediaID returns the cached request for a media id, queued or confirmed,
// or nil when none exists.
func (s *Service) ByMediaID(ctx context.Context, mediaID int64) (*MediaRequest, error) {
	return s.cache.ByMediaID(ctx, mediaID)
}

// Queued returns a snapshot of the offline queue.
func (s *Service) Queued(ctx context.Context) ([]QueuedSubmission, error) {
	return s.queue.List(ctx)
}

// Watch subscribes to cache snapshots; see Cache.Subscribe.
func (s *Service) Watch(ctx context.Context) (<-chan []MediaRequest, func(), error) {
	return s.cache.Subscribe(ctx)
}

// QualityProfiles lists the quality profiles available for submissions.
func (s *Service) QualityProfiles(ctx context.Context) ([]overseerr.QualityProfile, error) {
	return s.client.QualityProfiles(ctx)
}

// RootFolders lists the root folders available for submissions.
func (s *Service) RootFolders(ctx context.Context) ([]overseerr.RootFolder, error) {
	return s.client.RootFolders(ctx)
}

// recordEvent appends a lifecycle event. Recording failures are logged and
// never surfaced; bookkeeping must not fail the operation that produced it.
func (s *Service) recordEvent(ctx context.Context, e history.Entry) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event", string(e.EventType)).Msg("failed to record history event")
	}
}

func (s *Service) reportOnline() {
	if s.status != nil {
		s.status.ReportOnline()
	}
}

func (s *Service) reportOffline(err error) {
	if s.status != nil {
		s.status.ReportOffline(err)
	}
}

func (s *Service) submitToServer(ctx context.Context, mt MediaType, mediaID int64, seasons []int64, profileID *int64, rootFolder *string) (*overseerr.MediaRequest, error) {
	if mt == MediaTypeTV {
		return s.client.SubmitTV(ctx, mediaID, seasons, profileID, rootFolder)
	}
	return s.client.SubmitMovie(ctx, mediaID, profileID, rootFolder)
}
