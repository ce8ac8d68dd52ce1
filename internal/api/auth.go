package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/threatscore/internal/logging"
)

// ──────────────────────────────────────────────────────────────────
// Bearer Token Authentication Middleware
//
// If token is empty, every request is allowed (dev mode). Otherwise
// every request must carry: Authorization: Bearer <token>
// ──────────────────────────────────────────────────────────────────

// AuthMiddleware returns a Gin middleware that validates bearer tokens
// against the configured auth token. An empty token disables auth
// entirely — acceptable for local development, never for a deployment
// reachable outside the cluster.
func AuthMiddleware(token string, log *logging.Logger) gin.HandlerFunc {
	if token == "" && os.Getenv("GIN_MODE") == "release" && log != nil {
		log.Warn("server.auth_token is not set in release mode; protected endpoints are unauthenticated")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing Authorization header",
				"hint":  "use: Authorization: Bearer <token>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid Authorization header format"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
