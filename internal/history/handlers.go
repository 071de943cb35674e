package history

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for the history log.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new history handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers history routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/history", h.List)
}

// List returns lifecycle events, newest first.
// GET /api/v1/history?eventType=deferred&mediaId=42&page=1&pageSize=50
func (h *Handlers) List(c echo.Context) error {
	opts := ListOptions{
		EventType: c.QueryParam("eventType"),
	}
	if v := c.QueryParam("mediaId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
		}
		opts.MediaID = id
	}
	if v := c.QueryParam("page"); v != "" {
		opts.Page, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("pageSize"); v != "" {
		opts.PageSize, _ = strconv.Atoi(v)
	}

	result, err := h.service.List(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
