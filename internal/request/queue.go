package request

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Queue is the durable store of submissions deferred by connectivity
// failures. Entries survive restarts until a replay either confirms them or
// abandons them on a permanent rejection.
type Queue struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewQueue creates a queue over the offline_requests table.
func NewQueue(db *sql.DB, logger zerolog.Logger) *Queue {
	return &Queue{
		db:     db,
		logger: logger.With().Str("component", "offline-queue").Logger(),
	}
}

// Enqueue persists a deferred submission and returns its queue id.
// Duplicate content is a caller concern; the queue accepts anything.
func (q *Queue) Enqueue(ctx context.Context, sub QueuedSubmission) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO offline_requests (media_type, media_id, seasons, quality_profile, root_folder, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(sub.MediaType), sub.MediaID, joinSeasons(sub.Seasons),
		sub.QualityProfile, sub.RootFolder, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue submission for media %d: %w", sub.MediaID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue id: %w", err)
	}
	q.logger.Debug().Int64("queueId", id).Int64("mediaId", sub.MediaID).Msg("submission queued")
	return id, nil
}

// List returns a snapshot of all queued submissions in enqueue order.
// Entries added after the snapshot is taken are not reflected.
func (q *Queue) List(ctx context.Context) ([]QueuedSubmission, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, media_type, media_id, seasons, quality_profile, root_folder, created_at
		FROM offline_requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list offline queue: %w", err)
	}
	defer rows.Close()

	var result []QueuedSubmission
	for rows.Next() {
		var sub QueuedSubmission
		var mediaType, seasons string
		var qualityProfile sql.NullInt64
		var rootFolder sql.NullString
		if err := rows.Scan(&sub.QueueID, &mediaType, &sub.MediaID, &seasons,
			&qualityProfile, &rootFolder, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		sub.MediaType = MediaType(mediaType)
		sub.Seasons = parseSeasons(seasons)
		if qualityProfile.Valid {
			sub.QualityProfile = &qualityProfile.Int64
		}
		if rootFolder.Valid {
			sub.RootFolder = &rootFolder.String
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return result, nil
}

// DeleteByID removes a queue entry. Deleting a missing id is not an error.
func (q *Queue) DeleteByID(ctx context.Context, queueID int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM offline_requests WHERE id = ?`, queueID); err != nil {
		return fmt.Errorf("failed to delete queue entry %d: %w", queueID, err)
	}
	return nil
}
