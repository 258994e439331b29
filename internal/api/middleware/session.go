package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qzr8/dealer_go_portal/internal/auth"
	"github.com/qzr8/dealer_go_portal/internal/model"
	"github.com/qzr8/dealer_go_portal/internal/pkg/response"
)

const (
	SessionIDKey  = "sessionID"
	SessionKey    = "session"
	SessionCookie = "portal_session"
)

// Session resolves the portal session from the cookie or the Authorization
// header and rejects requests without one.
func Session(store *auth.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := sessionID(c)
		if id == "" {
			response.AuthError(c, "login required")
			c.Abort()
			return
		}

		session, ok := store.Get(id)
		if !ok {
			response.AuthError(c, "session expired, please log in again")
			c.Abort()
			return
		}

		c.Set(SessionIDKey, id)
		c.Set(SessionKey, session)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	authHeader := c.GetHeader("Authorization")
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return token
	}
	// websocket clients cannot set headers, they pass the session in the query
	return c.Query("session")
}

// GetSession returns the session placed on the context by the middleware.
func GetSession(c *gin.Context) (*model.Session, bool) {
	v, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	session, ok := v.(*model.Session)
	return session, ok
}

// GetSessionID returns the portal session ID for the current request.
func GetSessionID(c *gin.Context) (string, bool) {
	v, exists := c.Get(SessionIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
