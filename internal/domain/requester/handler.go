package requester

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agendamiento/citas/internal/platform/auth"
	"github.com/agendamiento/citas/pkg/pagination"
)

// Handler exposes staff-facing requester lookups. Citizen-facing intake
// happens through the booking flow, not here.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(staff *echo.Group) {
	g := staff.Group("", auth.RequireRole("admin", "asesor"))
	g.GET("/requesters/:id", h.Get)
	g.GET("/requesters", h.Lookup)
	g.GET("/requesters/history", h.History)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	q, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "requester not found")
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) Lookup(c echo.Context) error {
	docType := c.QueryParam("document_type")
	docNumber := c.QueryParam("document_number")
	if docType == "" || docNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document_type and document_number are required")
	}
	q, err := h.svc.Latest(c.Request().Context(), docType, docNumber)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "requester not found")
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) History(c echo.Context) error {
	docType := c.QueryParam("document_type")
	docNumber := c.QueryParam("document_number")
	if docType == "" || docNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document_type and document_number are required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), docType, docNumber, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
