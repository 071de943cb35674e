package request

// Event types pushed to UI consumers over the websocket hub.
const (
	EventRequestCreated    = "request:created"
	EventRequestUpdated    = "request:updated"
	EventRequestDeleted    = "request:deleted"
	EventRequestsRefreshed = "requests:refreshed"
	EventQueueDrained      = "queue:drained"
)

// RequestEventPayload describes one request in a change event.
type RequestEventPayload struct {
	RequestID       int64     `json:"requestId"`
	MediaType       MediaType `json:"mediaType"`
	MediaID         int64     `json:"mediaId"`
	Title           string    `json:"title"`
	Status          Status    `json:"status"`
	IsOfflineQueued bool      `json:"isOfflineQueued"`
}

// DrainEventPayload summarizes a completed drain cycle.
type DrainEventPayload struct {
	CycleID   string `json:"cycleId"`
	Confirmed int    `json:"confirmed"`
	Abandoned int    `json:"abandoned"`
	Remaining int    `json:"remaining"`
}

// Broadcaster pushes messages to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// EventBroadcaster publishes request lifecycle events to the hub. A nil hub
// disables broadcasting.
type EventBroadcaster struct {
	hub Broadcaster
}

// NewEventBroadcaster creates a broadcaster backed by hub.
func NewEventBroadcaster(hub Broadcaster) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

func (b *EventBroadcaster) request(event string, r MediaRequest) {
	if b == nil || b.hub == nil {
		return
	}
	b.hub.Broadcast(event, RequestEventPayload{
		RequestID:       r.ID,
		MediaType:       r.MediaType,
		MediaID:         r.MediaID,
		Title:           r.Title,
		Status:          r.Status,
		IsOfflineQueued: r.IsOfflineQueued,
	})
}

// RequestCreated announces a new cached request, optimistic or confirmed.
func (b *EventBroadcaster) RequestCreated(r MediaRequest) { b.request(EventRequestCreated, r) }

// RequestUpdated announces a replaced or rewritten cached request.
func (b *EventBroadcaster) RequestUpdated(r MediaRequest) { b.request(EventRequestUpdated, r) }

// RequestDeleted announces a removed cached request.
func (b *EventBroadcaster) RequestDeleted(r MediaRequest) { b.request(EventRequestDeleted, r) }

// RequestsRefreshed announces a bulk refresh from the server.
func (b *EventBroadcaster) RequestsRefreshed(count int) {
	if b == nil || b.hub == nil {
		return
	}
	b.hub.Broadcast(EventRequestsRefreshed, map[string]int{"count": count})
}

// QueueDrained announces the outcome of a drain cycle.
func (b *EventBroadcaster) QueueDrained(p DrainEventPayload) {
	if b == nil || b.hub == nil {
		return
	}
	b.hub.Broadcast(EventQueueDrained, p)
}
