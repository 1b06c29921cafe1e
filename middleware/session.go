package middleware

import (
	"net/http"
	"strings"

	"snapnow/config"
	"snapnow/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionAuthMiddleware resolves the caller from the session cookie that
// the web and mobile clients send with credentials. A bearer token is
// accepted as well so native clients without a cookie jar still work.
func SessionAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := sessionToken(c)
		if tokenString == "" {
			utils.JSONError(c, http.StatusUnauthorized, "Insufficient authorization", "missing session")
			return
		}

		userID, err := utils.ExtractIDFromToken(tokenString)
		if err != nil || userID == "" {
			requestLogger(c).Debug("Rejected session token", zap.Error(err))
			utils.JSONError(c, http.StatusUnauthorized, "Insufficient authorization", "invalid or expired session")
			return
		}

		c.Set(utils.ContextUserID, userID)
		c.Set(utils.ContextLogger, requestLogger(c).With(zap.String("userID", userID)))
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(config.AppConfig.SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
