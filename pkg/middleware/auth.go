package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wekezahq/nexus/pkg/common"
)

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey = "user_id"
	// UserRoleKey is the context key for the authenticated user's role
	UserRoleKey = "user_role"
)

// Claims represents the JWT claims used by the platform
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the bearer token and stores the user identity on
// the request context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.ErrorResponse(c, http.StatusUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid authorization header")
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole aborts the request unless the authenticated user has the given role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(UserRoleKey) != role {
			common.ErrorResponse(c, http.StatusForbidden, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID extracts the authenticated user ID from gin context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetString(UserIDKey)
	if raw == "" {
		return uuid.Nil, common.NewUnauthorizedError("user not authenticated")
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.NewUnauthorizedError("invalid user identity")
	}
	return userID, nil
}
