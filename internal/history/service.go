// Package history keeps a durable log of request lifecycle events: what was
// submitted, deferred, confirmed, abandoned, or cancelled, and when.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service records and lists lifecycle events over the request_history table.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record appends one lifecycle event. Recording is best-effort bookkeeping:
// callers log the error but never fail the operation that produced the event.
func (s *Service) Record(ctx context.Context, e Entry) error {
	createdAt := e.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_history (event_type, media_type, media_id, request_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.EventType), e.MediaType, e.MediaID, e.RequestID, e.Detail, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event for media %d: %w", e.EventType, e.MediaID, err)
	}
	return nil
}

// List returns lifecycle events, newest first, filtered and paginated.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	where := "WHERE 1=1"
	args := []any{}
	if opts.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, opts.EventType)
	}
	if opts.MediaID != 0 {
		where += " AND media_id = ?"
		args = append(args, opts.MediaID)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM request_history "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	query := `
		SELECT id, event_type, media_type, media_id, request_id, detail, created_at
		FROM request_history ` + where + `
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0, opts.PageSize)
	for rows.Next() {
		var e Entry
		var eventType string
		var requestID sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &eventType, &e.MediaType, &e.MediaID, &requestID, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.EventType = EventType(eventType)
		if requestID.Valid {
			e.RequestID = &requestID.Int64
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	totalPages := int((total + int64(opts.PageSize) - 1) / int64(opts.PageSize))
	return &ListResponse{
		Items:      items,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

// Prune removes events older than the cutoff and returns the number removed.
func (s *Service) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_history WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("removed", n).Msg("pruned old history entries")
	}
	return n, nil
}
