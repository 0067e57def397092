package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenControllerCore/internal/types"
	"github.com/gin-gonic/gin"
)

const permissionsKey = "permissions"

// Authenticator validates bearer tokens. When required is false, callers
// without a token are treated as fully privileged; a token that is present
// must still be valid.
type Authenticator struct {
	jwtHandler *JWTHandler
	required   bool
}

func NewAuthenticator(jwtHandler *JWTHandler, required bool) *Authenticator {
	return &Authenticator{jwtHandler: jwtHandler, required: required}
}

func (a *Authenticator) Required() bool {
	return a.required
}

// ValidateToken returns the permissions a token grants.
func (a *Authenticator) ValidateToken(token string) ([]Permission, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	return RoleToPermissions(claims.Role), nil
}

// AuthMiddleware validates tokens and enforces authentication
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if a.required {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					types.NewErrorResponse(types.ErrorCode(types.AreaAuth, http.StatusUnauthorized), "Missing authorization header", nil))
				return
			}
			c.Set(permissionsKey, AllPermissions)
			c.Next()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.ErrorCode(types.AreaAuth, http.StatusUnauthorized), "Invalid authorization header format", nil))
			return
		}

		permissions, err := a.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.ErrorCode(types.AreaAuth, http.StatusUnauthorized), "Invalid or expired token", err.Error()))
			return
		}

		c.Set(permissionsKey, permissions)
		c.Next()
	}
}

// RequirePermission checks if the caller has the required permission
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get(permissionsKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse(types.ErrorCode(types.AreaAuth, http.StatusForbidden), "No permissions found", nil))
			return
		}

		if !HasPermission(perms.([]Permission), required) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse(types.ErrorCode(types.AreaAuth, http.StatusForbidden), "Insufficient permissions",
					fmt.Sprintf("required: %s", required)))
			return
		}

		c.Next()
	}
}
