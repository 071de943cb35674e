package logger

import (
	"encoding/json"
	"sync"
)

// Broadcaster pushes messages to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// Entry is a parsed log entry kept for streaming and the recent-logs API.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// StreamWriter implements io.Writer on zerolog's JSON output. It keeps a
// bounded ring of recent entries and forwards each one to the hub when set.
type StreamWriter struct {
	buffer *ring[Entry]
	mu     sync.RWMutex
	hub    Broadcaster
}

// NewStreamWriter creates a stream writer holding up to size recent entries.
func NewStreamWriter(size int) *StreamWriter {
	return &StreamWriter{buffer: newRing[Entry](size)}
}

// SetHub attaches the broadcaster. May be called after logging has started.
func (w *StreamWriter) SetHub(hub Broadcaster) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hub = hub
}

// Write implements io.Writer. Malformed entries are dropped silently so a
// logging problem can never fail the caller's log call.
func (w *StreamWriter) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	entry := Entry{Fields: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "time":
			entry.Timestamp, _ = v.(string)
		case "level":
			entry.Level, _ = v.(string)
		case "component":
			entry.Component, _ = v.(string)
		case "message":
			entry.Message, _ = v.(string)
		default:
			entry.Fields[k] = v
		}
	}

	w.buffer.push(entry)

	w.mu.RLock()
	hub := w.hub
	w.mu.RUnlock()
	if hub != nil {
		hub.Broadcast("logs:entry", entry)
	}

	return len(p), nil
}

// Recent returns the buffered entries, oldest first.
func (w *StreamWriter) Recent() []Entry {
	return w.buffer.all()
}

// ring is a fixed-size circular buffer.
type ring[T any] struct {
	items []T
	head  int
	count int
	mu    sync.RWMutex
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := len(r.items)
	r.items[(r.head+r.count)%size] = item
	if r.count < size {
		r.count++
	} else {
		r.head = (r.head + 1) % size
	}
}

func (r *ring[T]) all() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}
