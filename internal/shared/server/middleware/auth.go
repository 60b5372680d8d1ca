package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"referral-backend/internal/shared/auth"
	"referral-backend/internal/shared/server/respond"
)

const (
	userIDKey     = "userId"
	practiceIDKey = "practiceId"
	userEmailKey  = "userEmail"
	userNameKey   = "userName"
)

// Auth validates JWTs and stores identity in context. Every caller belongs
// to exactly one practice; tokens without a practice claim are rejected so
// practice scoping can never silently widen.
func Auth(env string) gin.HandlerFunc {
	_ = env
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := auth.VerifyJWT(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		if claims.PracticeID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "token has no practice scope", nil)
			return
		}

		c.Set(userIDKey, claims.Sub)
		c.Set(practiceIDKey, claims.PracticeID)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		if claims.Name != "" {
			c.Set(userNameKey, claims.Name)
		}
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// PracticeIDFromContext fetches the practice scope set by the auth
// middleware.
func PracticeIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(practiceIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}

// UserNameFromContext fetches the user name set by the auth middleware.
func UserNameFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userNameKey)
	if name, ok := val.(string); ok {
		return name
	}
	return ""
}
