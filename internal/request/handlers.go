package request

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lusk/luskd/internal/overseerr"
)

// Handlers provides HTTP handlers for request operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new request handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers request routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/requests", h.Submit)
	g.GET("/requests", h.List)
	g.GET("/requests/media/:mediaId", h.ByMedia)
	g.GET("/requests/:id/status", h.Status)
	g.DELETE("/requests/:id", h.Cancel)
	g.POST("/requests/refresh", h.Refresh)
	g.GET("/requests/options/profiles", h.QualityProfiles)
	g.GET("/requests/options/rootfolders", h.RootFolders)
	g.GET("/sync/queue", h.Queue)
	g.POST("/sync/drain", h.Drain)
}

// Submit submits a new media request.
// POST /api/v1/requests
func (h *Handlers) Submit(c echo.Context) error {
	var input SubmitInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if input.MediaID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "mediaId must be positive")
	}

	record, err := h.service.Submit(c.Request().Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidMediaType):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrAlreadyRequested):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return serverError(err)
		}
	}

	status := http.StatusCreated
	if record.IsOfflineQueued {
		// Deferred submissions are accepted, not yet confirmed.
		status = http.StatusAccepted
	}
	return c.JSON(status, record)
}

// List returns cached requests, optionally filtered by status.
// GET /api/v1/requests?status=PENDING
func (h *Handlers) List(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		result []MediaRequest
		err    error
	)
	if status := c.QueryParam("status"); status != "" {
		result, err = h.service.ByStatus(ctx, Status(status))
	} else {
		result, err = h.service.All(ctx)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if result == nil {
		result = []MediaRequest{}
	}
	return c.JSON(http.StatusOK, result)
}

// ByMedia returns the cached request for a media id, if any.
// GET /api/v1/requests/media/:mediaId
func (h *Handlers) ByMedia(c echo.Context) error {
	mediaID, err := strconv.ParseInt(c.Param("mediaId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	row, err := h.service.ByMediaID(c.Request().Context(), mediaID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if row == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no request for this media")
	}
	return c.JSON(http.StatusOK, row)
}

// Status fetches the current server status of a request and writes it
// through the cache.
// GET /api/v1/requests/:id/status
func (h *Handlers) Status(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}
	record, err := h.service.UpdateStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return serverError(err)
	}
	return c.JSON(http.StatusOK, record)
}

// Cancel cancels a request on the server and locally.
// DELETE /api/v1/requests/:id
func (h *Handlers) Cancel(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}
	if err := h.service.Cancel(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return serverError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Refresh re-reads the request list from the server.
// POST /api/v1/requests/refresh
func (h *Handlers) Refresh(c echo.Context) error {
	if err := h.service.Refresh(c.Request().Context()); err != nil {
		return serverError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// QualityProfiles lists quality profiles for advanced submissions.
// GET /api/v1/requests/options/profiles
func (h *Handlers) QualityProfiles(c echo.Context) error {
	profiles, err := h.service.QualityProfiles(c.Request().Context())
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, profiles)
}

// RootFolders lists root folders for advanced submissions.
// GET /api/v1/requests/options/rootfolders
func (h *Handlers) RootFolders(c echo.Context) error {
	folders, err := h.service.RootFolders(c.Request().Context())
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, folders)
}

// Queue returns the offline queue snapshot.
// GET /api/v1/sync/queue
func (h *Handlers) Queue(c echo.Context) error {
	queued, err := h.service.Queued(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if queued == nil {
		queued = []QueuedSubmission{}
	}
	return c.JSON(http.StatusOK, queued)
}

// Drain triggers a drain run at the next opportunity.
// POST /api/v1/sync/drain
func (h *Handlers) Drain(c echo.Context) error {
	if h.service.trigger != nil {
		h.service.trigger.TriggerDrain()
	}
	return c.NoContent(http.StatusAccepted)
}

// serverError maps an upstream failure onto the local API: connectivity
// problems surface as 502, server rejections keep their status code.
func serverError(err error) *echo.HTTPError {
	if code := overseerr.StatusCode(err); code != 0 {
		return echo.NewHTTPError(code, err.Error())
	}
	if overseerr.IsConnectivityError(err) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
