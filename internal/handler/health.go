package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health reports service liveness.  The general rate limiter bypasses
// this path so monitoring probes are never throttled.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
