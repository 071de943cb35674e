package history

// EventType is the kind of lifecycle event recorded for a request.
type EventType string

const (
	// EventSubmitted marks a submission the server confirmed directly.
	EventSubmitted EventType = "submitted"
	// EventDeferred marks a submission captured in the offline queue after a
	// connectivity failure.
	EventDeferred EventType = "deferred"
	// EventConfirmed marks a queued submission the server accepted during a
	// replay.
	EventConfirmed EventType = "confirmed"
	// EventAbandoned marks a queued submission the server permanently
	// rejected during a replay.
	EventAbandoned EventType = "abandoned"
	// EventCancelled marks a request cancelled by the user.
	EventCancelled EventType = "cancelled"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        int64     `json:"id"`
	EventType EventType `json:"eventType"`
	MediaType string    `json:"mediaType"`
	MediaID   int64     `json:"mediaId"`
	RequestID *int64    `json:"requestId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt int64     `json:"createdAt"` // epoch millis
}

// ListOptions filters and paginates a history listing.
type ListOptions struct {
	EventType string
	MediaID   int64
	Page      int
	PageSize  int
}

// ListResponse is a paginated history listing.
type ListResponse struct {
	Items      []Entry `json:"items"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalCount int64   `json:"totalCount"`
	TotalPages int     `json:"totalPages"`
}
