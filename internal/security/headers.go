// Package security adds standard hardening headers to every response.
package security

import (
	"github.com/gin-gonic/gin"
)

// Headers returns middleware that sets the baseline security headers. HSTS
// is opt-in because the service often runs behind a TLS-terminating proxy.
func Headers(enableHSTS bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if enableHSTS {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
