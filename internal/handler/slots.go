package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shift-signup/internal/service"
)

// SlotHandler serves the public slot listing and signup endpoints.
type SlotHandler struct {
	Svc *service.BookingService
}

func NewSlotHandler(svc *service.BookingService) *SlotHandler {
	if svc == nil {
		panic("nil service passed to NewSlotHandler")
	}
	return &SlotHandler{Svc: svc}
}

type signupReq struct {
	Name    string `json:"name"`
	IDLast4 string `json:"id_last_4"`
	IDFull  string `json:"id_full"` // employee-signup only
}

type employeeReq struct {
	Name   string `json:"name"`
	IDFull string `json:"id_full"`
	Phone  string `json:"phone"`
}

// ListOpen handles GET /v1/slots.
func (h *SlotHandler) ListOpen(c echo.Context) error {
	slots, err := h.Svc.OpenSlots(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

// Get handles GET /v1/slots/:id.
func (h *SlotHandler) Get(c echo.Context) error {
	s, err := h.Svc.Slot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slot": s, "remaining": s.Remaining()})
}

// Signup handles POST /v1/slots/:id/signup: a booking identified by name
// and the last four digits of the credential.
func (h *SlotHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	res, err := h.Svc.Signup(ctx, c.Param("id"), req.Name, req.IDLast4)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, signedUp(res))
}

// EmployeeSignup handles POST /v1/slots/:id/employee-signup for registered
// employees, identified by full credential or by name and suffix.
func (h *SlotHandler) EmployeeSignup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	res, err := h.Svc.EmployeeSignup(ctx, c.Param("id"), req.Name, req.IDLast4, req.IDFull)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, signedUp(res))
}

// RegisterEmployee handles POST /v1/employees.
func (h *SlotHandler) RegisterEmployee(c echo.Context) error {
	var req employeeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	id, err := h.Svc.RegisterEmployee(c.Request().Context(), req.Name, req.IDFull, req.Phone)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

func signedUp(res service.SignupResult) echo.Map {
	return echo.Map{
		"message":   "signup successful",
		"work_date": res.Slot.WorkDate,
		"slot_name": res.Slot.SlotName,
		"slot":      res.Slot,
		"booking":   res.Booking,
	}
}
