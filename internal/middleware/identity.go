package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// actorID identifies the caller for rate limiting: the admin ID when a
// token was accepted, "anon" otherwise.
func actorID(c echo.Context) string {
	if uid, ok := c.Get(CtxUserID).(uint64); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
