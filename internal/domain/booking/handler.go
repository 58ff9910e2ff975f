package booking

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/agendamiento/citas/internal/domain/requester"
	"github.com/agendamiento/citas/internal/platform/auth"
)

// Handler exposes the booking API: a public surface for citizens and a staff
// surface behind authentication.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the citizen-facing routes on public and the
// authenticated routes on staff.
func (h *Handler) RegisterRoutes(public, staff *echo.Group) {
	public.GET("/availability", h.PublicAvailability)
	public.POST("/bookings", h.PublicBook)
	public.POST("/appointments/lookup", h.Lookup)
	public.POST("/appointments/cancel", h.PublicCancel)

	g := staff.Group("", auth.RequireRole("admin", "asesor"))
	g.GET("/availability", h.StaffAvailability)
	g.GET("/agenda", h.DayAgenda)
	g.GET("/appointments/:id", h.Get)
	g.POST("/appointments", h.StaffBook)
	g.POST("/appointments/:id/cancel", h.StaffCancel)
	g.POST("/appointments/:id/outcome", h.RecordOutcome)
	g.POST("/appointments/:id/reschedule", h.Reschedule)
	g.GET("/outcomes", h.DayOutcomes)
	g.GET("/blocks", h.ListBlocks)
	g.POST("/blocks", h.CreateBlock)
	g.DELETE("/blocks/:id", h.DeleteBlock)
}

// httpError maps domain errors onto HTTP statuses.
func httpError(err error) error {
	var (
		validation *ValidationError
		conflict   *ConflictError
		notCancel  *NotCancellableError
		recorded   *AlreadyRecordedError
		mismatch   *requester.IdentityMismatchError
	)
	switch {
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, conflict.Error())
	case errors.As(err, &notCancel):
		return echo.NewHTTPError(http.StatusConflict, notCancel.Error())
	case errors.As(err, &recorded):
		return echo.NewHTTPError(http.StatusConflict, recorded.Error())
	case errors.As(err, &mismatch):
		return echo.NewHTTPError(http.StatusForbidden, mismatch.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

// -- Public handlers --

func (h *Handler) availability(c echo.Context, channel string) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), date.Year(), date.Month(), date.Day(), channel)
	if err != nil {
		return httpError(err)
	}
	if slots == nil {
		slots = []Slot{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":  c.QueryParam("date"),
		"slots": slots,
	})
}

func (h *Handler) PublicAvailability(c echo.Context) error {
	return h.availability(c, ChannelPublic)
}

// publicBookRequest is the citizen booking payload: intake form plus slot.
type publicBookRequest struct {
	requester.Requester
	Start time.Time `json:"start"`
	Topic string    `json:"topic"`
	Notes *string   `json:"notes"`
}

func (h *Handler) PublicBook(c echo.Context) error {
	var req publicBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	intake := req.Requester
	appt, err := h.svc.Book(c.Request().Context(), BookRequest{
		Intake:  &intake,
		Start:   req.Start,
		Channel: ChannelPublic,
		Topic:   req.Topic,
		Notes:   req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

// identityRequest carries the fields a citizen must present to act on an
// existing appointment.
type identityRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
}

func (h *Handler) Lookup(c echo.Context) error {
	var req identityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.LookupActive(c.Request().Context(), req.DocumentType, req.DocumentNumber, req.Phone, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) PublicCancel(c echo.Context) error {
	var req identityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.CancelByRequester(c.Request().Context(), req.DocumentType, req.DocumentNumber, req.Phone, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// -- Staff handlers --

func (h *Handler) StaffAvailability(c echo.Context) error {
	return h.availability(c, ChannelStaff)
}

func (h *Handler) DayAgenda(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	items, err := h.svc.DayAgenda(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// staffBookRequest books on behalf of a citizen (intake set) or reserves a
// slot for internal use (intake omitted).
type staffBookRequest struct {
	Intake *requester.Requester `json:"intake"`
	Start  time.Time            `json:"start"`
	Topic  string               `json:"topic"`
	Notes  *string              `json:"notes"`
}

func (h *Handler) StaffBook(c echo.Context) error {
	var req staffBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	book := BookRequest{
		Intake:  req.Intake,
		Start:   req.Start,
		Channel: ChannelStaff,
		Topic:   req.Topic,
		Notes:   req.Notes,
	}
	if req.Intake == nil {
		book.StaffUserID = auth.UserIDFromContext(c.Request().Context())
	}

	appt, err := h.svc.Book(c.Request().Context(), book)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) StaffCancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.CancelByStaff(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type outcomeRequest struct {
	Result string  `json:"result"`
	Notes  *string `json:"notes"`
}

func (h *Handler) RecordOutcome(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req outcomeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	recordedBy := auth.UserIDFromContext(c.Request().Context())
	o, err := h.svc.RecordOutcome(c.Request().Context(), id, req.Result, req.Notes, recordedBy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.Reschedule(c.Request().Context(), id, req.Start)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) DayOutcomes(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	items, err := h.svc.DayOutcomes(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Outcome{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListBlocks(c echo.Context) error {
	from, err := parseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
	}
	to, err := parseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
	}
	items, err := h.svc.ListBlocks(c.Request().Context(), from, to)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*AvailabilityBlock{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateBlock(c echo.Context) error {
	var b AvailabilityBlock
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.CreatedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.CreateBlock(c.Request().Context(), &b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) DeleteBlock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteBlock(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
