package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger logs each HTTP request's method, path, status and duration,
// tagging the entry with the caller's identity and, for deployment
// routes, the deployment_id path parameter — the two pieces of context an
// operator chasing a deployment through the logs actually needs.
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		fields := logrus.Fields{
			"method":    method,
			"path":      path,
			"status":    statusCode,
			"duration":  duration.String(),
			"client_ip": c.ClientIP(),
		}
		if owner, err := GetOwner(c); err == nil {
			fields["owner"] = owner
		}
		if deploymentID := c.Param("id"); deploymentID != "" {
			fields["deployment_id"] = deploymentID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
		} else {
			if statusCode >= 500 {
				entry.Error("Internal server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request completed")
			}
		}
	}
}
