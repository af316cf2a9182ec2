package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"village_market/internal/models"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	sessionKey  = "session"
	tokenCookie = "access_token"
)

type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.Session, error)
}

// Session resolves the caller once per request and stores it on the gin
// context. Requests without a usable token continue anonymously.
func Session(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.Next()
			return
		}

		session, err := resolver.ResolveSession(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, services.ErrUnauthorized) {
				log.Printf("session resolution failed: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
				return
			}
			c.Next()
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireSession rejects anonymous callers with 401.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireRole rejects anonymous callers with 401 and callers outside roles
// with 403.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, r := range roles {
			if session.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CurrentSession(c *gin.Context) *models.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	session, _ := v.(*models.Session)
	return session
}

// TokenFromRequest reads the bearer header, then the access_token cookie,
// then the token query parameter (browsers cannot set headers on websocket
// upgrades).
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}
