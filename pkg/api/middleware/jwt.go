// Package middleware authenticates API requests.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/auth"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// Context keys set for authenticated requests.
const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	UserRoleKey  = "user_role"
)

// UserLookup resolves the token subject so deactivated accounts are rejected.
type UserLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// JWTMiddleware creates a JWT authentication middleware. When users is nil the token
// claims are trusted without a lookup.
func JWTMiddleware(cfg auth.TokenConfig, users UserLookup) echo.MiddlewareFunc {
	return jwtMiddleware(cfg, users, false)
}

// JWTFromQueryOrHeader also accepts the token as a ?token= query parameter.
// This is useful for download links where headers cannot be easily set.
func JWTFromQueryOrHeader(cfg auth.TokenConfig, users UserLookup) echo.MiddlewareFunc {
	return jwtMiddleware(cfg, users, true)
}

func jwtMiddleware(cfg auth.TokenConfig, users UserLookup, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, failure := bearerToken(c, allowQuery)
			if failure != nil {
				return c.JSON(http.StatusUnauthorized, failure)
			}

			claims, err := auth.ValidateJWT(token, cfg)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Token is invalid or expired",
				})
			}

			role := claims.Role
			if users != nil {
				ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
				defer cancel()

				user, err := users.Get(ctx, claims.UserID)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
						Error:   "user_not_found",
						Message: "User account not found",
					})
				}
				if !user.IsActive {
					return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
						Error:   "account_inactive",
						Message: "This account has been deactivated",
					})
				}
				// the stored role wins over a stale token
				role = user.Role
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(UserEmailKey, claims.Email)
			c.Set(UserRoleKey, role)

			return next(c)
		}
	}
}

func bearerToken(c echo.Context, allowQuery bool) (string, *models.ErrorResponse) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", &models.ErrorResponse{
				Error:   "invalid_token_format",
				Message: "Authorization header must be 'Bearer {token}'",
			}
		}
		return parts[1], nil
	}

	if allowQuery {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", &models.ErrorResponse{
			Error:   "missing_token",
			Message: "Authorization header or token query parameter is required",
		}
	}

	return "", &models.ErrorResponse{
		Error:   "missing_token",
		Message: "Authorization header is required",
	}
}

// CurrentUserID returns the authenticated caller, or "" outside the middleware.
func CurrentUserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}

// CurrentRole returns the authenticated caller's role.
func CurrentRole(c echo.Context) models.Role {
	role, _ := c.Get(UserRoleKey).(models.Role)
	return role
}

// CurrentUser returns the caller as injected by the middleware.
func CurrentUser(c echo.Context) models.CurrentUser {
	return models.CurrentUser{ID: CurrentUserID(c), Role: CurrentRole(c)}
}
