package backend

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
)

// AuthScheme is the Authorization scheme devices and apps use.
const AuthScheme = "Apartment"

const apiKeyContextKey = "apiKey"

// apartmentAuth resolves the apartment from "Authorization: Apartment <key>".
func (s *Server) apartmentAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != AuthScheme || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	key := strings.TrimSpace(parts[1])
	if len(s.allowed) > 0 && !s.allowed[key] {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "unknown apartment key",
		})
		return
	}

	c.Set(apiKeyContextKey, key)
	c.Next()
}

// requestLogger logs every request with its firmware header.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("Backend request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("fw_version", c.GetHeader("X-FW-Version")),
		)
	}
}

// maskKey keeps enough of a key to tell apartments apart in logs.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
