package middleware

import (
	"expvar"
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
)

// RequestLogger writes one key=value line per request and counts requests
// and error responses in expvar.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let Echo write the error so the logged status is final.
				c.Error(err)
			}
			status := c.Response().Status
			requestsTotal.Add(1)
			if status >= 400 {
				requestsErrors.Add(1)
			}
			req := c.Request()
			log.Printf("request method=%s path=%s status=%d duration_ms=%d actor=%s request_id=%s",
				req.Method, req.URL.Path, status, time.Since(start).Milliseconds(), actorID(c), req.Header.Get(echo.HeaderXRequestID))
			return nil
		}
	}
}
