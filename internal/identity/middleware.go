// Package identity resolves who a request belongs to. There is no authentication: the
// ids only scope rate limits, conversations and profiles.
package identity

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "session_id"
	UserHeader    = "X-User-ID"

	identityContextKey = "identity"
	maxIDLength        = 128
)

var validID = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// Identity is the resolved request scope.
type Identity struct {
	// ClientID is the network address used for rate limiting.
	ClientID  string
	SessionID string
	UserID    string
}

// Middleware stores the request Identity in the gin context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityContextKey, Resolve(c))
		c.Next()
	}
}

// Resolve reads the session id from the header, then the cookie, falling back to the
// client address. The user id falls back to the session id.
func Resolve(c *gin.Context) Identity {
	id := Identity{ClientID: c.ClientIP()}
	if id.ClientID == "" {
		id.ClientID = "unknown"
	}
	id.SessionID = sanitize(c.GetHeader(SessionHeader))
	if id.SessionID == "" {
		if cookie, err := c.Cookie(SessionCookie); err == nil {
			id.SessionID = sanitize(cookie)
		}
	}
	if id.SessionID == "" {
		id.SessionID = id.ClientID
	}
	id.UserID = sanitize(c.GetHeader(UserHeader))
	if id.UserID == "" {
		id.UserID = id.SessionID
	}
	return id
}

// FromContext returns the identity stored by Middleware, resolving it on demand when the
// middleware did not run.
func FromContext(c *gin.Context) Identity {
	if val, ok := c.Get(identityContextKey); ok {
		if id, ok := val.(Identity); ok {
			return id
		}
	}
	return Resolve(c)
}

// WithSession returns id scoped to sessionID when it is usable.
func (id Identity) WithSession(sessionID string) Identity {
	s := sanitize(sessionID)
	if s == "" {
		return id
	}
	if id.UserID == id.SessionID {
		id.UserID = s
	}
	id.SessionID = s
	return id
}

func sanitize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxIDLength || !validID.MatchString(v) {
		return ""
	}
	return v
}
