package middleware

import (
	"net"
	"net/http"
	"strings"

	"snapnow/utils"

	"github.com/gin-gonic/gin"
)

// rateLimitKey identifies the caller: the session user when already
// known, otherwise the client address.
func rateLimitKey(c *gin.Context) string {
	if id := c.GetString(utils.ContextUserID); id != "" {
		return "user:" + id
	}
	return "ip:" + clientIP(c.Request)
}

// clientIP prefers the first valid X-Forwarded-For hop, then X-Real-IP,
// then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
