package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const corsAllowHeaders = "Content-Type, X-Session-ID, X-User-ID"

// cors admits same-origin requests (no Origin header, or an Origin whose host is the
// request host), origins on the allow-list, and loopback origins in dev mode. Anything
// else is rejected with 403.
func (h *Handler) cors() gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(h.opts.AllowedOrigins))
	for _, o := range h.opts.AllowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !sameOrigin(origin, c.Request.Host) && !originAllowed(origin, allowed, h.opts.DevMode) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msgOriginDenied, "success": false})
			return
		}
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Add("Vary", "Origin")
		header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Max-Age", "86400")
		c.Next()
	}
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func originAllowed(origin string, allowed map[string]struct{}, devMode bool) bool {
	if _, ok := allowed[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
		return true
	}
	if !devMode {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		return true
	}
	return false
}

// RequestLogger logs one line per request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		evt := logger.Info()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		} else if status >= http.StatusBadRequest {
			evt = logger.Warn()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		evt.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
