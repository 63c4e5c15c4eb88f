package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TokenAuth returns a middleware enforcing a static API token. Clients
// pass the token via the X-API-Key header or an Authorization bearer.
// An empty configured token disables enforcement entirely.
func TokenAuth(token string) gin.HandlerFunc {
	// Compare digests so the check takes constant time regardless of how
	// much of the token matches.
	want := sha256.Sum256([]byte(token))

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				provided = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if provided == "" {
			log.Debug().
				Str("ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Msg("Auth: no API token provided")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API token required",
				"message": "provide the token via X-API-Key header or Authorization: Bearer <token>",
			})
			c.Abort()
			return
		}

		got := sha256.Sum256([]byte(provided))
		if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
			log.Warn().
				Str("ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Msg("Auth: invalid API token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid API token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
