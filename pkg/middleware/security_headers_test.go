package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serveWithHeaders(cfg SecurityHeadersConfig, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	err := SecurityHeaders(cfg)(h)(e.NewContext(req, rec))
	return rec, err
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestSecurityHeaders_Defaults(t *testing.T) {
	rec, err := serveWithHeaders(SecurityHeadersConfig{}, okHandler)
	assert.NoError(t, err)

	d := DefaultSecurityHeadersConfig()
	assert.Equal(t, d.ContentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Permissions-Policy"), "camera=()")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_Custom(t *testing.T) {
	rec, err := serveWithHeaders(SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "same-origin",
		StrictTransport:       true,
	}, okHandler)
	assert.NoError(t, err)

	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "same-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, DefaultSecurityHeadersConfig().PermissionsPolicy, rec.Header().Get("Permissions-Policy"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestSecurityHeaders_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	rec, err := serveWithHeaders(SecurityHeadersConfig{}, func(echo.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}
