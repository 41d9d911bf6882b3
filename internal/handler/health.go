package handler

import (
	"net/http"

	"milista/internal/store"

	"github.com/gin-gonic/gin"
)

// Health reports liveness plus store reachability.
func Health(st store.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"store":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
