package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Cache is the persistent write-through cache of the user's request list.
// Upserts fully replace prior rows; that is what makes the
// optimistic-to-confirmed transition a replacement rather than a merge.
// Every mutation pushes a fresh snapshot to subscribers.
type Cache struct {
	db     *sql.DB
	logger zerolog.Logger

	mu       sync.Mutex
	watchers map[int]chan []MediaRequest
	nextID   int
}

// NewCache creates a cache over the user_requests table.
func NewCache(db *sql.DB, logger zerolog.Logger) *Cache {
	return &Cache{
		db:       db,
		logger:   logger.With().Str("component", "request-cache").Logger(),
		watchers: make(map[int]chan []MediaRequest),
	}
}

// Upsert inserts or fully replaces the row with the same id.
func (c *Cache) Upsert(ctx context.Context, r MediaRequest) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_requests
			(id, media_type, media_id, title, poster_path, status, requested_date, seasons, is_offline_queued, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.MediaType), r.MediaID, r.Title, r.PosterPath,
		string(r.Status), r.RequestedDate, joinSeasons(r.Seasons),
		r.IsOfflineQueued, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert request %d: %w", r.ID, err)
	}
	c.notify(ctx)
	return nil
}

// DeleteByID removes the row with the given id. Deleting a missing id is
// not an error.
func (c *Cache) DeleteByID(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM user_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.notify(ctx)
	}
	return nil
}

// DeleteAll removes every cached row.
func (c *Cache) DeleteAll(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM user_requests`); err != nil {
		return fmt.Errorf("failed to clear request cache: %w", err)
	}
	c.notify(ctx)
	return nil
}

// All returns every cached request, newest first.
func (c *Cache) All(ctx context.Context) ([]MediaRequest, error) {
	return c.query(ctx, `
		SELECT id, media_type, media_id, title, poster_path, status, requested_date, seasons, is_offline_queued
		FROM user_requests ORDER BY requested_date DESC, id DESC`)
}

// ByStatus returns cached requests with the given status, newest first.
func (c *Cache) ByStatus(ctx context.Context, status Status) ([]MediaRequest, error) {
	return c.query(ctx, `
		SELECT id, media_type, media_id, title, poster_path, status, requested_date, seasons, is_offline_queued
		FROM user_requests WHERE status = ? ORDER BY requested_date DESC, id DESC`, string(status))
}

// ByID returns the cached request with the given id, or nil when none
// exists.
func (c *Cache) ByID(ctx context.Context, id int64) (*MediaRequest, error) {
	rows, err := c.query(ctx, `
		SELECT id, media_type, media_id, title, poster_path, status, requested_date, seasons, is_offline_queued
		FROM user_requests WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ByMediaID returns the cached request for a media id, or nil when none
// exists. Used by duplicate detection before a new submission.
func (c *Cache) ByMediaID(ctx context.Context, mediaID int64) (*MediaRequest, error) {
	rows, err := c.query(ctx, `
		SELECT id, media_type, media_id, title, poster_path, status, requested_date, seasons, is_offline_queued
		FROM user_requests WHERE media_id = ? LIMIT 1`, mediaID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Subscribe returns a channel that receives a full snapshot of the cache
// after every change, plus the current snapshot immediately. The returned
// cancel function releases the subscription.
func (c *Cache) Subscribe(ctx context.Context) (<-chan []MediaRequest, func(), error) {
	snapshot, err := c.All(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []MediaRequest, 1)
	ch <- snapshot

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// notify pushes the current snapshot to all subscribers. A slow subscriber
// only ever sees the latest snapshot; intermediate ones are dropped.
func (c *Cache) notify(ctx context.Context) {
	c.mu.Lock()
	hasWatchers := len(c.watchers) > 0
	c.mu.Unlock()
	if !hasWatchers {
		return
	}

	snapshot, err := c.All(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read snapshot for subscribers")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- snapshot:
		default:
			// Replace the stale pending snapshot with the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (c *Cache) query(ctx context.Context, q string, args ...any) ([]MediaRequest, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query request cache: %w", err)
	}
	defer rows.Close()

	var result []MediaRequest
	for rows.Next() {
		var r MediaRequest
		var mediaType, status, seasons string
		var posterPath sql.NullString
		if err := rows.Scan(&r.ID, &mediaType, &r.MediaID, &r.Title, &posterPath,
			&status, &r.RequestedDate, &seasons, &r.IsOfflineQueued); err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		r.MediaType = MediaType(mediaType)
		r.Status = Status(status)
		r.Seasons = parseSeasons(seasons)
		if posterPath.Valid {
			r.PosterPath = &posterPath.String
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to iterate request rows: %w", err)
	}
	return result, nil
}
