package handler // handler defines the HTTP handlers of the API

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shift-signup/internal/middleware"
	"github.com/iliyamo/shift-signup/internal/repository"
	"github.com/iliyamo/shift-signup/internal/service"
)

// busyRetryAfter is the Retry-After hint, in seconds, sent with system_busy.
const busyRetryAfter = 1

// getUserID returns the admin ID stored by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		return t, nil
	case string:
		return strconv.ParseUint(t, 10, 64)
	}
	return 0, errors.New("invalid user_id in context")
}

// writeError maps a service or repository error to its HTTP response.  Every
// rejected signup names the condition that failed.
func writeError(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "field": ve.Field, "message": ve.Message})
	}
	switch {
	case errors.Is(err, repository.ErrSlotNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "slot_not_found", "message": "the slot does not exist"})
	case errors.Is(err, repository.ErrEmployeeNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "employee_not_found", "message": "no registered employee matches"})
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking_not_found", "message": "no such booking for this slot"})
	case errors.Is(err, repository.ErrSlotClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot_closed", "message": "registration for this slot is closed"})
	case errors.Is(err, repository.ErrAlreadyBooked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already_booked", "message": "you have already booked this slot"})
	case errors.Is(err, repository.ErrSlotFull):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot_full", "message": "this slot is full"})
	case errors.Is(err, repository.ErrAmbiguousEmployee):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ambiguous_employee", "message": "several employees match; sign up with the full credential"})
	case errors.Is(err, repository.ErrDuplicateCredential):
		return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_credential", "message": "this credential is already registered"})
	case errors.Is(err, repository.ErrUsernameExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "username_exists", "message": "username already exists"})
	case errors.Is(err, repository.ErrBusy):
		c.Response().Header().Set("Retry-After", strconv.Itoa(busyRetryAfter))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "system_busy", "message": "too many concurrent signups, please retry"})
	}
	log.Printf("request failed method=%s path=%s err=%v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage_error"})
}
