package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shift-signup/internal/model"
	"github.com/iliyamo/shift-signup/internal/service"
)

// AdminHandler serves the slot management and booking views.  Read routes
// are open to every admin role; writes are limited to super admins by the
// router.
type AdminHandler struct {
	Svc *service.BookingService
}

func NewAdminHandler(svc *service.BookingService) *AdminHandler {
	if svc == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Svc: svc}
}

type slotReq struct {
	WorkDate string `json:"work_date"`
	SlotName string `json:"slot_name"`
	IsOpen   *bool  `json:"is_open"` // defaults to true on create, unchanged on update
	Capacity int    `json:"capacity"`
}

func (r slotReq) input(defaultOpen bool) model.SlotInput {
	open := defaultOpen
	if r.IsOpen != nil {
		open = *r.IsOpen
	}
	return model.SlotInput{WorkDate: r.WorkDate, SlotName: r.SlotName, IsOpen: open, Capacity: r.Capacity}
}

// ListSlots handles GET /v1/admin/slots?preview=N.  Every slot is returned
// with its counter and up to N booking records; without preview all records
// are attached.
func (h *AdminHandler) ListSlots(c echo.Context) error {
	preview := 0
	if q := c.QueryParam("preview"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "field": "preview", "message": "must be a non-negative integer"})
		}
		preview = n
	}
	slots, err := h.Svc.AllSlots(c.Request().Context(), preview)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

// Bookings handles GET /v1/admin/slots/:id/bookings.
func (h *AdminHandler) Bookings(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	s, err := h.Svc.Slot(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	bookings, err := h.Svc.SlotBookings(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slot": s, "bookings": bookings})
}

// CreateSlot handles POST /v1/admin/slots.
func (h *AdminHandler) CreateSlot(c echo.Context) error {
	var req slotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	s, err := h.Svc.CreateSlot(c.Request().Context(), req.input(true))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// UpdateSlot handles PUT /v1/admin/slots/:id.
func (h *AdminHandler) UpdateSlot(c echo.Context) error {
	var req slotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	cur, err := h.Svc.Slot(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	s, err := h.Svc.UpdateSlot(ctx, id, req.input(cur.IsOpen))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// DeleteSlot handles DELETE /v1/admin/slots/:id.  Deleting an unknown slot
// succeeds.
func (h *AdminHandler) DeleteSlot(c echo.Context) error {
	if err := h.Svc.DeleteSlot(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteBooking handles DELETE /v1/admin/slots/:id/bookings/:ref.  The
// reference is the booking's employee_id, percent-encoded in the path.
func (h *AdminHandler) DeleteBooking(c echo.Context) error {
	ref := bookingRef(c)
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking reference"})
	}
	b, err := h.Svc.CancelBooking(c.Request().Context(), c.Param("id"), ref)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": b})
}

// bookingRef returns the decoded :ref parameter.  Echo routes on URL.Path,
// which is already decoded, unless the request carried a non-canonical
// encoding; only then is the parameter still escaped.
func bookingRef(c echo.Context) string {
	ref := c.Param("ref")
	if c.Request().URL.RawPath == "" {
		return ref
	}
	if dec, err := url.PathUnescape(ref); err == nil {
		return dec
	}
	return ""
}
