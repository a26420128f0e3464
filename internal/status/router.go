package status

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhpark-dev/video-relay/internal/tenant"
)

// Broker is the connectivity view the status API exposes.
type Broker interface {
	IsConnected() bool
	BoundTenants() []string
}

// Dependencies holds all dependencies needed by the status API
type Dependencies struct {
	Logger *slog.Logger
	Store  tenant.Store
	Broker Broker
}

// SetupRouter configures and returns the Gin router for the status API
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"service":          "video-relay",
			"broker_connected": deps.Broker.IsConnected(),
		})
	})

	r.GET("/tenants", func(c *gin.Context) {
		ids, err := deps.Store.ListTenantIDs(c.Request.Context())
		if err != nil {
			deps.Logger.Error("Failed to list tenants", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list tenants",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tenants":       ids,
			"bound_tenants": deps.Broker.BoundTenants(),
		})
	})

	return r
}
