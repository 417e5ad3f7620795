package audit

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// GetIPAddress extracts the client IP, preferring proxy headers.
func GetIPAddress(c echo.Context) string {
	if ip := c.Request().Header.Get("X-Forwarded-For"); ip != "" {
		// first hop is the client
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := c.Request().Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return c.RealIP()
}

// GetUserAgent extracts the user agent string
func GetUserAgent(c echo.Context) string {
	return c.Request().UserAgent()
}

// GetRequestContext extracts common context from Echo context
func GetRequestContext(c echo.Context) (ipAddress, userAgent string) {
	return GetIPAddress(c), GetUserAgent(c)
}
