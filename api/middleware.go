package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drawsync/drawsync/internal/slogging"
)

// CORS middleware to handle Cross-Origin Resource Sharing. All origins are
// permitted on the HTTP surface.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger logs each HTTP request with method, path, status and latency.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		slogging.Get().Info("%s %s -> %d (%s)",
			c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// Recovery converts panics into a 500 response. Outside dev mode the panic
// detail is withheld from the response body.
func Recovery(devMode bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slogging.Get().Error("panic handling %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)

		message := "Internal server error"
		if devMode {
			if s, ok := recovered.(string); ok {
				message = s
			}
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": message})
	})
}
