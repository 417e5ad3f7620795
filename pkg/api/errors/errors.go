// Package errors writes API error responses without exposing internal details.
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// Respond maps err onto an HTTP status and JSON body. Domain errors keep their message
// (and details, for validation); anything else is logged and reported generically.
func Respond(c echo.Context, log logger.Logger, err error) error {
	var de *domain.DomainError
	if stderrors.As(err, &de) {
		switch de.Code {
		case domain.ErrCodeValidation:
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: de.Message,
				Details: de.Details,
			})
		case domain.ErrCodeBadRequest:
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "bad_request", Message: de.Message})
		case domain.ErrCodeNotFound:
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: de.Message})
		case domain.ErrCodeConflict:
			return ConflictError(c, de.Message)
		case domain.ErrCodeUnauthorized:
			return UnauthorizedError(c)
		case domain.ErrCodeForbidden:
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: de.Message})
		}
		return InternalError(c, log, err)
	}

	var he *echo.HTTPError
	if stderrors.As(err, &he) && he.Code < http.StatusInternalServerError {
		return c.JSON(he.Code, models.ErrorResponse{
			Error:   "bad_request",
			Message: http.StatusText(he.Code),
		})
	}

	return InternalError(c, log, err)
}

// BindError reports a body that could not be decoded.
func BindError(c echo.Context, log logger.Logger, err error) error {
	log.Debug("request binding failed", "path", c.Request().URL.Path, "error", err)
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request body. Please check your input and try again.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, log logger.Logger, err error) error {
	log.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// ForbiddenError returns a generic forbidden error
func ForbiddenError(c echo.Context) error {
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "You do not have permission to access this resource.",
	})
}

// ConflictError returns a conflict error; message is safe to expose.
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}
