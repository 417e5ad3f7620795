package middleware

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// RequireRoles ensures the authenticated user holds one of roles.
// Apply it AFTER the JWT middleware, which stores the caller's role.
func RequireRoles(roles ...models.Role) echo.MiddlewareFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id, _ := c.Get("user_id").(string); id == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Authentication required",
				})
			}

			role, _ := c.Get("user_role").(models.Role)
			if !allowed[role] {
				required := make([]string, len(roles))
				for i, r := range roles {
					required[i] = string(r)
				}
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   "insufficient_permissions",
					Message: "This action requires a different role",
					Details: required,
				})
			}

			return next(c)
		}
	}
}

// RequireAdmin allows admins only.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRoles(models.RoleAdmin)
}

// RequireManager allows admins and sales heads.
func RequireManager() echo.MiddlewareFunc {
	return RequireRoles(models.RoleAdmin, models.RoleSalesHead)
}
