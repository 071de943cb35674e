// Package health tracks the reachability of the remote media server.
// State is in-memory and resets on restart; the durable offline queue is
// what carries intent across restarts, not this monitor.
package health

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Broadcaster pushes status transitions to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// ServerStatus is the current view of server reachability.
type ServerStatus struct {
	Online      bool       `json:"online"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	// Since is when the current online/offline streak started.
	Since *time.Time `json:"since,omitempty"`
}

// Monitor records the outcome of every server interaction and exposes the
// aggregate reachability state. Until the first report comes in the server
// is assumed online, so a fresh start never blocks an eager submission.
type Monitor struct {
	mu          sync.RWMutex
	status      ServerStatus
	broadcaster Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

// NewMonitor creates a connectivity monitor.
func NewMonitor(logger zerolog.Logger) *Monitor {
	return &Monitor{
		status: ServerStatus{Online: true},
		logger: logger.With().Str("component", "health").Logger(),
		now:    time.Now,
	}
}

// SetBroadcaster attaches the websocket broadcaster for transition events.
func (m *Monitor) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	m.broadcaster = b
	m.mu.Unlock()
}

// ReportOnline records a successful server interaction.
func (m *Monitor) ReportOnline() {
	m.report(true, "")
}

// ReportOffline records a failed server interaction.
func (m *Monitor) ReportOffline(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.report(false, msg)
}

func (m *Monitor) report(online bool, errMsg string) {
	m.mu.Lock()
	now := m.now()
	transition := m.status.Online != online || m.status.LastChecked == nil
	m.status.Online = online
	m.status.LastChecked = &now
	m.status.LastError = errMsg
	if transition {
		m.status.Since = &now
	}
	status := m.status
	b := m.broadcaster
	m.mu.Unlock()

	if !transition {
		return
	}
	if online {
		m.logger.Info().Msg("media server reachable")
	} else {
		m.logger.Warn().Str("error", errMsg).Msg("media server unreachable")
	}
	if b != nil {
		b.Broadcast("server:status", status)
	}
}

// Status returns the current reachability state.
func (m *Monitor) Status() ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// HandleStatus reports server reachability.
// GET /api/v1/health/server
func (m *Monitor) HandleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, m.Status())
}
